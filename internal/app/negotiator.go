package app

import (
	"fmt"
	"sort"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

const maxProfiles = 6

// staticLadder is the descending fallback used when no prior
// introspection of the asset is available.
var staticLadder = []domain.QualityTier{
	domain.Tier4K,
	domain.Tier1440p,
	domain.Tier1080p,
	domain.Tier720p,
	domain.Tier480p,
	domain.Tier360p,
}

// Negotiator turns a platform and requested tier into an ordered list of
// acquisition profiles for the racer, best first.
type Negotiator struct{}

// NewNegotiator creates a negotiator
func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

// Negotiate produces the profile list for one request. The result is
// never empty: a catch-all best-effort profile is always appended so the
// racer has something to attempt even when introspection failed.
func (n *Negotiator) Negotiate(platform domain.Platform, tier domain.QualityTier, available []domain.MediaFormat) []domain.QualityProfile {
	var profiles []domain.QualityProfile

	switch {
	case tier == domain.TierAudio:
		profiles = append(profiles, domain.QualityProfile{
			TierLabel:         domain.TierAudio,
			FormatSelector:    "bestaudio[ext=m4a]/bestaudio/best",
			ExpectedContainer: "m4a",
		})
	case len(available) > 0:
		profiles = n.fromAvailable(tier, available)
	default:
		profiles = n.fromStaticLadder(tier)
	}

	profiles = append(profiles, domain.QualityProfile{
		TierLabel:         domain.TierBest,
		FormatSelector:    "best/worst",
		ExpectedContainer: "mp4",
	})
	return profiles
}

// fromAvailable filters introspected formats to the requested tier or
// below, deduplicates by resolution bucket, and caps the list.
func (n *Negotiator) fromAvailable(tier domain.QualityTier, available []domain.MediaFormat) []domain.QualityProfile {
	ceiling := tier.Height()
	if ceiling == 0 { // "best" or unrecognized tier: no cap
		ceiling = domain.Tier4K.Height()
	}

	sorted := make([]domain.MediaFormat, 0, len(available))
	for _, f := range available {
		if f.HasVideo && f.Height > 0 && f.Height <= ceiling {
			sorted = append(sorted, f)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Height > sorted[j].Height })

	seen := make(map[domain.QualityTier]bool)
	var profiles []domain.QualityProfile
	for _, f := range sorted {
		bucket := domain.TierForHeight(f.Height)
		if bucket == "" || seen[bucket] {
			continue
		}
		seen[bucket] = true
		profiles = append(profiles, videoProfile(bucket))
		if len(profiles) >= maxProfiles {
			break
		}
	}

	if len(profiles) == 0 {
		return n.fromStaticLadder(tier)
	}
	return profiles
}

func (n *Negotiator) fromStaticLadder(tier domain.QualityTier) []domain.QualityProfile {
	ceiling := tier.Height()
	if ceiling == 0 {
		ceiling = domain.Tier4K.Height()
	}

	var profiles []domain.QualityProfile
	for _, t := range staticLadder {
		if t.Height() > ceiling {
			continue
		}
		profiles = append(profiles, videoProfile(t))
	}
	return profiles
}

func videoProfile(t domain.QualityTier) domain.QualityProfile {
	h := t.Height()
	return domain.QualityProfile{
		TierLabel: t,
		FormatSelector: fmt.Sprintf(
			"best[height<=%d][ext=mp4]/bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%d]",
			h, h, h),
		ExpectedContainer: "mp4",
	}
}
