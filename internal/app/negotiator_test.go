package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

func TestNegotiate_NeverEmpty(t *testing.T) {
	n := NewNegotiator()

	platforms := []domain.Platform{
		domain.PlatformYouTube, domain.PlatformTwitter, domain.PlatformTikTok,
		domain.PlatformDirect, domain.PlatformUnknown,
	}
	tiers := []domain.QualityTier{
		domain.Tier4K, domain.Tier1080p, domain.Tier360p,
		domain.TierAudio, domain.TierBest, domain.QualityTier("bogus"),
	}

	for _, p := range platforms {
		for _, tier := range tiers {
			profiles := n.Negotiate(p, tier, nil)
			require.NotEmpty(t, profiles, "platform=%s tier=%s", p, tier)
			last := profiles[len(profiles)-1]
			assert.Equal(t, domain.TierBest, last.TierLabel, "catch-all profile must close the list")
			assert.NotEmpty(t, last.FormatSelector)
		}
	}
}

func TestNegotiate_StaticLadderRespectsCeiling(t *testing.T) {
	n := NewNegotiator()

	profiles := n.Negotiate(domain.PlatformYouTube, domain.Tier720p, nil)
	// 720p, 480p, 360p, then the catch-all.
	require.Len(t, profiles, 4)
	assert.Equal(t, domain.Tier720p, profiles[0].TierLabel)
	assert.Equal(t, domain.Tier480p, profiles[1].TierLabel)
	assert.Equal(t, domain.Tier360p, profiles[2].TierLabel)
	assert.Equal(t, domain.TierBest, profiles[3].TierLabel)
}

func TestNegotiate_AudioTier(t *testing.T) {
	n := NewNegotiator()

	profiles := n.Negotiate(domain.PlatformYouTube, domain.TierAudio, nil)
	require.Len(t, profiles, 2)
	assert.Equal(t, domain.TierAudio, profiles[0].TierLabel)
	assert.Contains(t, profiles[0].FormatSelector, "bestaudio")
	assert.Equal(t, "m4a", profiles[0].ExpectedContainer)
}

func TestNegotiate_AvailableFormatsDeduplicatedAndSorted(t *testing.T) {
	n := NewNegotiator()

	available := []domain.MediaFormat{
		{FormatID: "a", Height: 1080, HasVideo: true},
		{FormatID: "b", Height: 1088, HasVideo: true}, // same 1080p bucket
		{FormatID: "c", Height: 480, HasVideo: true},
		{FormatID: "d", Height: 2160, HasVideo: true}, // above requested ceiling
		{FormatID: "e", Height: 720, HasVideo: true},
		{FormatID: "f", Height: 0, HasVideo: false, HasAudio: true}, // audio-only ignored
	}

	profiles := n.Negotiate(domain.PlatformYouTube, domain.Tier1080p, available)
	// 1080p, 720p, 480p from introspection, plus catch-all.
	require.Len(t, profiles, 4)
	assert.Equal(t, domain.Tier1080p, profiles[0].TierLabel)
	assert.Equal(t, domain.Tier720p, profiles[1].TierLabel)
	assert.Equal(t, domain.Tier480p, profiles[2].TierLabel)
}

func TestNegotiate_AvailableFormatsCappedAtSix(t *testing.T) {
	n := NewNegotiator()

	available := []domain.MediaFormat{
		{Height: 2160, HasVideo: true},
		{Height: 1440, HasVideo: true},
		{Height: 1080, HasVideo: true},
		{Height: 720, HasVideo: true},
		{Height: 480, HasVideo: true},
		{Height: 360, HasVideo: true},
	}

	profiles := n.Negotiate(domain.PlatformYouTube, domain.Tier4K, available)
	// Six buckets plus the catch-all.
	assert.Len(t, profiles, 7)
}

func TestNegotiate_AllFormatsFilteredFallsBackToLadder(t *testing.T) {
	n := NewNegotiator()

	// Everything above the requested tier: filter empties the list, so
	// the static ladder must kick in instead of returning only best-effort.
	available := []domain.MediaFormat{
		{Height: 2160, HasVideo: true},
		{Height: 1440, HasVideo: true},
	}

	profiles := n.Negotiate(domain.PlatformYouTube, domain.Tier360p, available)
	require.Len(t, profiles, 2)
	assert.Equal(t, domain.Tier360p, profiles[0].TierLabel)
	assert.Equal(t, domain.TierBest, profiles[1].TierLabel)
}
