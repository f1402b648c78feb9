package domain

import (
	"net/url"
	"path"
	"strings"
)

// Platform represents the source platform for a media URL
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformSegmented Platform = "segmented" // HLS/m3u8 stream links
	PlatformDirect    Platform = "direct"    // plain media file URLs
	PlatformUnknown   Platform = "generic-unknown"
)

var platformDomains = map[Platform][]string{
	PlatformYouTube:   {"youtube.com", "youtu.be", "youtube-nocookie.com"},
	PlatformTwitter:   {"twitter.com", "x.com", "mobile.twitter.com", "mobile.x.com"},
	PlatformFacebook:  {"facebook.com", "fb.com", "fb.watch", "m.facebook.com"},
	PlatformTikTok:    {"tiktok.com", "vm.tiktok.com", "m.tiktok.com"},
	PlatformInstagram: {"instagram.com", "instagr.am"},
}

// classifyOrder fixes the match order so overlapping domain suffixes
// cannot flip the result between calls.
var classifyOrder = []Platform{
	PlatformYouTube,
	PlatformTwitter,
	PlatformFacebook,
	PlatformTikTok,
	PlatformInstagram,
}

var directMediaExts = []string{".mp4", ".mkv", ".avi", ".webm", ".mov", ".m4v"}

// Classify maps a URL to its platform tag. It is pure and total: an
// unparseable or unrecognized URL yields PlatformUnknown, never an error.
// Domain matching is case-insensitive.
func Classify(rawURL string) Platform {
	lower := strings.ToLower(strings.TrimSpace(rawURL))

	u, err := url.Parse(lower)
	if err != nil || u.Host == "" {
		// Fall back to substring heuristics for bare or malformed inputs.
		return classifyByHeuristic(lower)
	}

	host := u.Hostname()
	for _, p := range classifyOrder {
		for _, d := range platformDomains[p] {
			if host == d || strings.HasSuffix(host, "."+d) {
				return p
			}
		}
	}

	if strings.HasSuffix(u.Path, ".m3u8") || strings.Contains(lower, "m3u8") {
		return PlatformSegmented
	}

	ext := path.Ext(u.Path)
	for _, e := range directMediaExts {
		if ext == e {
			return PlatformDirect
		}
	}

	return PlatformUnknown
}

func classifyByHeuristic(lower string) Platform {
	if strings.Contains(lower, "m3u8") {
		return PlatformSegmented
	}
	for _, e := range directMediaExts {
		if strings.HasSuffix(lower, e) {
			return PlatformDirect
		}
	}
	return PlatformUnknown
}

// ValidatePlatform checks if a platform tag is one the engine knows about
func ValidatePlatform(p Platform) bool {
	switch p {
	case PlatformYouTube, PlatformTwitter, PlatformFacebook, PlatformTikTok,
		PlatformInstagram, PlatformSegmented, PlatformDirect, PlatformUnknown:
		return true
	}
	return false
}
