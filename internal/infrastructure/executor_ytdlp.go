package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// YTDLPExecutor is the package-based acquisition strategy: it shells out
// to the external extraction utility through the tool runner and retries
// transient failures with exponential backoff.
type YTDLPExecutor struct {
	cfg    domain.StrategiesConfig
	runner domain.ToolRunner
	logger *zap.Logger
}

// NewYTDLPExecutor creates the package-based strategy
func NewYTDLPExecutor(cfg domain.StrategiesConfig, runner domain.ToolRunner, logger *zap.Logger) *YTDLPExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLPExecutor{cfg: cfg, runner: runner, logger: logger}
}

// Kind implements StrategyExecutor
func (e *YTDLPExecutor) Kind() domain.StrategyKind { return domain.StrategyPackage }

// Applicable implements StrategyExecutor. The extraction utility has
// extractors for every supported platform plus generic/direct links, so
// the toggle is the only gate.
func (e *YTDLPExecutor) Applicable(*domain.DownloadRequest) bool {
	return e.cfg.PackageEnabled
}

// Acquire implements StrategyExecutor
func (e *YTDLPExecutor) Acquire(ctx context.Context, request *domain.DownloadRequest, profile domain.QualityProfile) (*domain.StrategyOutcome, error) {
	attemptDir := filepath.Join(request.TempDir, "package-"+string(profile.TierLabel))
	if err := os.MkdirAll(attemptDir, 0755); err != nil {
		return nil, domain.NewStrategyError(domain.FailureUnknown, err)
	}

	outcome, err := e.acquireWithRetries(ctx, request, profile, attemptDir, "")
	if err != nil {
		os.RemoveAll(attemptDir)
		return nil, err
	}
	return outcome, nil
}

// acquireWithRetries is shared with the cookie strategy, which passes a
// materialized cookie file.
func (e *YTDLPExecutor) acquireWithRetries(ctx context.Context, request *domain.DownloadRequest, profile domain.QualityProfile, attemptDir, cookieFile string) (*domain.StrategyOutcome, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt, e.cfg.RetryBase, e.cfg.RetryCap); err != nil {
				return nil, domain.NewStrategyError(domain.FailureUnknown, err)
			}
			e.logger.Debug("retrying extraction",
				zap.String("request_id", request.ID), zap.Int("attempt", attempt))
		}
		if err := ctx.Err(); err != nil {
			return nil, domain.NewStrategyError(domain.FailureUnknown, err)
		}

		outcome, err := e.runOnce(ctx, request, profile, attemptDir, cookieFile)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if !domain.KindOf(err).Retryable() || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (e *YTDLPExecutor) runOnce(ctx context.Context, request *domain.DownloadRequest, profile domain.QualityProfile, attemptDir, cookieFile string) (*domain.StrategyOutcome, error) {
	args := e.buildArgs(request, profile, attemptDir, cookieFile)

	result, err := e.runner.Run(ctx, domain.Command{
		Binary: e.cfg.YTDLPBinary,
		Args:   args,
	})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		kind := classifyExtractorFailure(result.Stderr)
		return nil, domain.NewStrategyError(kind,
			fmt.Errorf("extractor exited with %d: %s", result.ExitCode, lastLine(result.Stderr)))
	}

	mediaPath, err := findMediaFile(attemptDir)
	if err != nil {
		return nil, domain.NewStrategyError(domain.FailureUnknown, err)
	}

	meta := readInfoSidecar(mediaPath)
	meta.Platform = request.Platform
	meta.AudioOnly = profile.TierLabel == domain.TierAudio

	return &domain.StrategyOutcome{
		Strategy: e.Kind(),
		Success:  true,
		FilePath: mediaPath,
		Metadata: meta,
	}, nil
}

func (e *YTDLPExecutor) buildArgs(request *domain.DownloadRequest, profile domain.QualityProfile, attemptDir, cookieFile string) []string {
	args := []string{
		"--format", profile.FormatSelector,
		"--output", "%(title).100s.%(ext)s",
		"-P", attemptDir,
		"--write-info-json",
		"--restrict-filenames",
		"--no-playlist",
		"--no-check-certificates",
		"--no-warnings",
		"--socket-timeout", "60",
		"--user-agent", e.cfg.UserAgent,
	}
	if profile.TierLabel != domain.TierAudio {
		args = append(args, "--merge-output-format", profile.ExpectedContainer, "--prefer-ffmpeg")
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	return append(args, request.SourceURL)
}

// sleepBackoff waits base*2^(attempt-1) capped, bailing on cancellation
func sleepBackoff(ctx context.Context, attempt int, base, ceiling time.Duration) error {
	delay := base << (attempt - 1)
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var mediaExts = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".avi": true,
	".mov": true, ".m4v": true, ".m4a": true, ".mp3": true, ".opus": true,
}

// findMediaFile returns the largest media file in dir. The extraction
// utility may leave thumbnails and sidecars next to it.
func findMediaFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var best string
	var bestSize int64
	for _, entry := range entries {
		if entry.IsDir() || !mediaExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, entry.Name())
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no media file produced in %s", dir)
	}
	return best, nil
}

// readInfoSidecar parses the .info.json next to a media file. Missing
// or malformed sidecars yield zero-value metadata, never an error.
func readInfoSidecar(mediaPath string) domain.MediaMetadata {
	sidecar := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".info.json"
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return domain.MediaMetadata{}
	}

	var info struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Uploader    string  `json:"uploader"`
		Duration    float64 `json:"duration"`
	}
	if json.Unmarshal(data, &info) != nil {
		return domain.MediaMetadata{}
	}
	return domain.MediaMetadata{
		Title:       info.Title,
		Description: info.Description,
		Uploader:    info.Uploader,
		Duration:    int(info.Duration),
	}
}

// classifyExtractorFailure maps stderr patterns to the failure taxonomy
func classifyExtractorFailure(stderr string) domain.FailureKind {
	lower := strings.ToLower(stderr)
	switch {
	case containsAny(lower, "sign in", "login required", "authentication", "private video", "cookies"):
		return domain.FailureAuthRequired
	case containsAny(lower, "http error 404", "not available", "does not exist", "video unavailable", "no longer available"):
		return domain.FailureNotFound
	case containsAny(lower, "http error 429", "rate limit", "too many requests"):
		return domain.FailureRateLimited
	case containsAny(lower, "timed out", "timeout", "connection reset", "unable to connect", "network is unreachable"):
		return domain.FailureNetworkTimeout
	case containsAny(lower, "unsupported url", "no video formats", "requested format is not available"):
		return domain.FailureUnsupported
	}
	return domain.FailureUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
