package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_KnownPlatforms(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Platform
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", PlatformYouTube},
		{"youtube short link", "https://youtu.be/dQw4w9WgXcQ", PlatformYouTube},
		{"youtube nocookie", "https://www.youtube-nocookie.com/embed/x", PlatformYouTube},
		{"twitter", "https://twitter.com/user/status/123", PlatformTwitter},
		{"x.com", "https://x.com/user/status/123", PlatformTwitter},
		{"mobile twitter", "https://mobile.twitter.com/user/status/1", PlatformTwitter},
		{"facebook watch", "https://fb.watch/abc123/", PlatformFacebook},
		{"facebook mobile", "https://m.facebook.com/video/123", PlatformFacebook},
		{"tiktok", "https://www.tiktok.com/@user/video/123", PlatformTikTok},
		{"tiktok short", "https://vm.tiktok.com/ZMabc/", PlatformTikTok},
		{"instagram", "https://www.instagram.com/reel/abc/", PlatformInstagram},
		{"hls stream", "https://cdn.example.com/live/stream.m3u8", PlatformSegmented},
		{"direct mp4", "https://cdn.foo/clip.mp4", PlatformDirect},
		{"direct webm", "https://cdn.foo/clip.webm", PlatformDirect},
		{"unmatched", "https://video.example/watch?id=42", PlatformUnknown},
		{"garbage", "not a url at all", PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.url))
		})
	}
}

func TestClassify_CaseInsensitiveDomain(t *testing.T) {
	assert.Equal(t, PlatformYouTube, Classify("HTTPS://WWW.YOUTUBE.COM/watch?v=X"))
	assert.Equal(t, PlatformTwitter, Classify("https://X.COM/user/status/1"))
}

func TestClassify_Idempotent(t *testing.T) {
	urls := []string{
		"https://www.youtube.com/watch?v=x",
		"https://cdn.foo/clip.mp4",
		"https://video.example/watch?id=42",
		"",
	}
	for _, u := range urls {
		first := Classify(u)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Classify(u), "classification must be deterministic for %q", u)
		}
	}
}

func TestClassify_DomainSuffixNotFooled(t *testing.T) {
	// A hostile domain merely containing a platform name must not match.
	assert.Equal(t, PlatformUnknown, Classify("https://notyoutube.com.evil.example/watch"))
	assert.Equal(t, PlatformUnknown, Classify("https://fakeyoutube.com/watch"))
}

func TestValidatePlatform(t *testing.T) {
	assert.True(t, ValidatePlatform(PlatformYouTube))
	assert.True(t, ValidatePlatform(PlatformUnknown))
	assert.False(t, ValidatePlatform(Platform("vimeo")))
}
