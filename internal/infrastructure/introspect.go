package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// Introspector probes an asset without downloading it, listing the
// formats the source exposes. Negotiation uses the result to build
// profiles from what actually exists instead of the static ladder.
type Introspector struct {
	cfg    domain.StrategiesConfig
	runner domain.ToolRunner
	logger *zap.Logger
}

// NewIntrospector creates the asset prober
func NewIntrospector(cfg domain.StrategiesConfig, runner domain.ToolRunner, logger *zap.Logger) *Introspector {
	return &Introspector{cfg: cfg, runner: runner, logger: logger}
}

// Analyze returns the available formats and metadata for a URL
func (i *Introspector) Analyze(ctx context.Context, sourceURL string) ([]domain.MediaFormat, domain.MediaMetadata, error) {
	result, err := i.runner.Run(ctx, domain.Command{
		Binary: i.cfg.YTDLPBinary,
		Args: []string{
			"-J",
			"--no-playlist",
			"--no-warnings",
			"--socket-timeout", "30",
			"--user-agent", i.cfg.UserAgent,
			sourceURL,
		},
		Timeout: 90 * time.Second,
	})
	if err != nil {
		return nil, domain.MediaMetadata{}, err
	}
	if result.ExitCode != 0 {
		kind := classifyExtractorFailure(result.Stderr)
		return nil, domain.MediaMetadata{}, domain.NewStrategyError(kind,
			fmt.Errorf("probe exited with %d: %s", result.ExitCode, lastLine(result.Stderr)))
	}

	var payload struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Uploader    string  `json:"uploader"`
		Duration    float64 `json:"duration"`
		Formats     []struct {
			FormatID string  `json:"format_id"`
			Height   int     `json:"height"`
			VCodec   string  `json:"vcodec"`
			ACodec   string  `json:"acodec"`
			Filesize int64   `json:"filesize"`
			Ext      string  `json:"ext"`
			TBR      float64 `json:"tbr"`
		} `json:"formats"`
	}
	if err := json.Unmarshal([]byte(result.Stdout), &payload); err != nil {
		return nil, domain.MediaMetadata{}, domain.NewStrategyError(domain.FailureUnsupported,
			fmt.Errorf("probe output is not valid json: %w", err))
	}

	formats := make([]domain.MediaFormat, 0, len(payload.Formats))
	for _, f := range payload.Formats {
		formats = append(formats, domain.MediaFormat{
			FormatID:  f.FormatID,
			Height:    f.Height,
			HasVideo:  f.VCodec != "" && f.VCodec != "none",
			HasAudio:  f.ACodec != "" && f.ACodec != "none",
			SizeBytes: f.Filesize,
			Ext:       f.Ext,
			Bitrate:   f.TBR,
		})
	}
	meta := domain.MediaMetadata{
		Title:       payload.Title,
		Description: payload.Description,
		Uploader:    payload.Uploader,
		Duration:    int(payload.Duration),
	}
	return formats, meta, nil
}
