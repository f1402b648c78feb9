package domain

// QualityTier is the caller-requested quality target
type QualityTier string

const (
	Tier4K    QualityTier = "4K"
	Tier1440p QualityTier = "1440p"
	Tier1080p QualityTier = "1080p"
	Tier720p  QualityTier = "720p"
	Tier480p  QualityTier = "480p"
	Tier360p  QualityTier = "360p"
	TierAudio QualityTier = "audio"
	TierBest  QualityTier = "best"
)

// Height returns the pixel height bucket for a video tier, 0 for audio/best
func (t QualityTier) Height() int {
	switch t {
	case Tier4K:
		return 2160
	case Tier1440p:
		return 1440
	case Tier1080p:
		return 1080
	case Tier720p:
		return 720
	case Tier480p:
		return 480
	case Tier360p:
		return 360
	}
	return 0
}

// TierForHeight buckets a raw pixel height into the nearest standard tier.
// Heights below 360 fall through to the empty tier.
func TierForHeight(height int) QualityTier {
	switch {
	case height >= 2160:
		return Tier4K
	case height >= 1440:
		return Tier1440p
	case height >= 1080:
		return Tier1080p
	case height >= 720:
		return Tier720p
	case height >= 480:
		return Tier480p
	case height >= 360:
		return Tier360p
	}
	return ""
}

// QualityProfile is one quality/format target the strategies attempt.
// FormatSelector is an opaque platform-specific selector string handed
// verbatim to the extraction utility.
type QualityProfile struct {
	TierLabel         QualityTier
	FormatSelector    string
	ExpectedContainer string
}

// MediaFormat is one entry from a prior introspection of the asset
type MediaFormat struct {
	FormatID  string  `json:"format_id"`
	Height    int     `json:"height"`
	HasVideo  bool    `json:"has_video"`
	HasAudio  bool    `json:"has_audio"`
	SizeBytes int64   `json:"size_bytes"`
	Ext       string  `json:"ext"`
	Bitrate   float64 `json:"bitrate"`
}
