// Package compress shrinks downloaded files under the delivery size
// budget with a descending ladder of re-encode presets.
package compress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// ProgressNotifier receives stage labels while the pipeline works
type ProgressNotifier interface {
	StageChange(stage domain.Stage, label string)
}

// Pipeline applies progressively more aggressive transcoding presets
// until the file fits the budget or the ladder is exhausted. The worker
// slot semaphore is shared across all requests so concurrent
// compressions cannot exhaust system CPU/IO.
type Pipeline struct {
	cfg    domain.CompressConfig
	runner domain.ToolRunner
	slots  *semaphore.Weighted
	logger *zap.Logger
}

// NewPipeline creates a pipeline with a bounded worker pool
func NewPipeline(cfg domain.CompressConfig, runner domain.ToolRunner, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	slots := cfg.WorkerSlots
	if slots < 1 {
		slots = 1
	}
	return &Pipeline{
		cfg:    cfg,
		runner: runner,
		slots:  semaphore.NewWeighted(slots),
		logger: logger,
	}
}

// EnsureWithinBudget returns the original path untouched when the file
// already fits. Otherwise it re-encodes: a single fast pass for small
// inputs, the descending ladder for large ones. Every rejected
// intermediate is deleted; on total failure ErrBudgetUnattainable is
// returned with no intermediates left on disk.
func (p *Pipeline) EnsureWithinBudget(ctx context.Context, filePath string, budget int64, notify ProgressNotifier) (string, int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("stat input: %w", err)
	}
	size := info.Size()
	if size <= budget {
		return filePath, size, nil
	}

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return "", 0, domain.ErrCancelled
	}
	defer p.slots.Release(1)

	if size < p.cfg.FastPassCutoff {
		if outPath, outSize, ok := p.fastPass(ctx, filePath, size, budget, notify); ok {
			return outPath, outSize, nil
		}
	}

	return p.runLadder(ctx, filePath, size, budget, notify)
}

// fastPass is the speed-optimized single re-encode for small inputs
func (p *Pipeline) fastPass(ctx context.Context, filePath string, inputSize, budget int64, notify ProgressNotifier) (string, int64, bool) {
	if notify != nil {
		notify.StageChange(domain.StageCompressing, "Compressing (fast pass)")
	}

	outPath := p.outputPath(filePath, "fast")
	args := ffmpegArgs(filePath, outPath, ffmpeg.KwArgs{
		"c:v":      "libx264",
		"preset":   p.cfg.FastPassPreset,
		"crf":      strconv.Itoa(p.cfg.FastPassCRF),
		"c:a":      "aac",
		"b:a":      p.cfg.FastPassAudio,
		"movflags": "+faststart",
		"threads":  "0",
	})

	outSize, err := p.transcode(ctx, args, outPath, p.timeoutFor(inputSize))
	if err != nil {
		p.logger.Warn("fast-pass compression failed", zap.Error(err))
		return "", 0, false
	}
	if outSize > budget {
		os.Remove(outPath)
		return "", 0, false
	}
	return outPath, outSize, true
}

// runLadder walks the descending level list until one fits
func (p *Pipeline) runLadder(ctx context.Context, filePath string, inputSize, budget int64, notify ProgressNotifier) (string, int64, error) {
	timeout := p.timeoutFor(inputSize)

	for i, level := range p.cfg.Levels {
		if err := ctx.Err(); err != nil {
			return "", 0, domain.ErrCancelled
		}
		if notify != nil {
			notify.StageChange(domain.StageCompressing,
				fmt.Sprintf("Compressing to %dp (level %d/%d)", level.TargetHeight, i+1, len(p.cfg.Levels)))
		}

		outPath := p.outputPath(filePath, fmt.Sprintf("%dp", level.TargetHeight))
		args := ffmpegArgs(filePath, outPath, ffmpeg.KwArgs{
			"vf":       fmt.Sprintf("scale=-2:%d", level.TargetHeight),
			"c:v":      "libx264",
			"preset":   level.Preset,
			"crf":      strconv.Itoa(level.CRF),
			"maxrate":  level.VideoBitrate,
			"bufsize":  doubleBitrate(level.VideoBitrate),
			"c:a":      "aac",
			"b:a":      level.AudioBitrate,
			"movflags": "+faststart",
			"threads":  "0",
		})

		outSize, err := p.transcode(ctx, args, outPath, timeout)
		if err != nil {
			// Level failures are recovered locally: try the next one.
			p.logger.Warn("compression level failed",
				zap.Int("target_height", level.TargetHeight), zap.Error(err))
			continue
		}
		if outSize <= budget {
			p.logger.Info("compression succeeded",
				zap.Int("target_height", level.TargetHeight),
				zap.Int64("input_bytes", inputSize),
				zap.Int64("output_bytes", outSize))
			return outPath, outSize, nil
		}
		os.Remove(outPath)
	}

	return "", 0, domain.ErrBudgetUnattainable
}

// transcode runs one ffmpeg invocation through the tool runner and
// returns the resulting output size. A missing or empty output counts
// as failure; the partial file is removed.
func (p *Pipeline) transcode(ctx context.Context, args []string, outPath string, timeout time.Duration) (int64, error) {
	result, err := p.runner.Run(ctx, domain.Command{
		Binary:  p.cfg.FFmpegBinary,
		Args:    args,
		Timeout: timeout,
	})
	if err != nil {
		os.Remove(outPath)
		return 0, err
	}
	if result.ExitCode != 0 {
		os.Remove(outPath)
		return 0, fmt.Errorf("ffmpeg exited with %d: %s", result.ExitCode, tail(result.Stderr))
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outPath)
		return 0, fmt.Errorf("transcode produced no output")
	}
	return info.Size(), nil
}

// timeoutFor scales the invocation timeout to the input size, capped at
// the configured hard ceiling.
func (p *Pipeline) timeoutFor(inputSize int64) time.Duration {
	perGB := p.cfg.TimeoutPerInputG
	if perGB <= 0 {
		return p.cfg.TimeoutCeiling
	}
	gb := float64(inputSize) / float64(1<<30)
	scaled := time.Duration(float64(perGB) * gb)
	if scaled < time.Minute {
		scaled = time.Minute
	}
	if p.cfg.TimeoutCeiling > 0 && scaled > p.cfg.TimeoutCeiling {
		scaled = p.cfg.TimeoutCeiling
	}
	return scaled
}

func (p *Pipeline) outputPath(inputPath, suffix string) string {
	dir := filepath.Dir(inputPath)
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(dir, fmt.Sprintf("%s_%s.mp4", base, suffix))
}

// ffmpegArgs builds the argv (minus the binary itself) via ffmpeg-go,
// so flag ordering and quoting follow the library, while execution
// stays on the shared tool runner. The overwrite flag is prepended by
// hand so the output path stays the final argument.
func ffmpegArgs(inputPath, outPath string, kwargs ffmpeg.KwArgs) []string {
	cmd := ffmpeg.Input(inputPath).
		Output(outPath, kwargs).
		Compile()
	return append([]string{"-y"}, cmd.Args[1:]...)
}

func doubleBitrate(rate string) string {
	trimmed := strings.TrimSuffix(rate, "k")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return rate
	}
	return strconv.Itoa(n*2) + "k"
}

func tail(s string) string {
	const max = 200
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
