// Package progress converts raw byte-counter samples into throttled,
// human-presentable speed/ETA updates.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

const speedWindow = 5 // delta samples kept for the moving average

// Reporter is a stateful, throttled sink for one request's progress.
// Report never blocks the producing component and never propagates sink
// failures; a dead delivery channel costs a log line, not the request.
type Reporter struct {
	requestID string
	sink      domain.ProgressSink
	logger    *zap.Logger
	interval  time.Duration
	now       func() time.Time

	mu           sync.Mutex
	lastEmit     time.Time
	lastSample   time.Time
	lastBytes    int64
	maxBytes     int64
	currentStage domain.Stage
	speedSamples []float64
}

// NewReporter creates a reporter for one request. Interval is the
// minimum wall-clock spacing between emissions (≈1.2s in production).
func NewReporter(requestID string, sink domain.ProgressSink, interval time.Duration, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		requestID: requestID,
		sink:      sink,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Report feeds one raw sample. Emission is rate-limited to one update
// per interval regardless of call frequency; bytesDone regressions
// (e.g. a restarted stream) are clamped so emitted values stay
// non-decreasing within a stage.
func (r *Reporter) Report(sample domain.ProgressSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := sample.At
	if now.IsZero() {
		now = r.now()
	}

	stageChanged := sample.Stage != r.currentStage
	if stageChanged {
		r.currentStage = sample.Stage
		r.lastBytes = 0
		r.maxBytes = 0
		r.speedSamples = nil
		r.lastSample = time.Time{}
	}

	if sample.BytesDone < r.maxBytes {
		sample.BytesDone = r.maxBytes
	}
	r.maxBytes = sample.BytesDone

	// Accumulate a speed delta even for throttled calls so the average
	// reflects real throughput, not just emission instants.
	if !r.lastSample.IsZero() && sample.BytesDone > r.lastBytes {
		elapsed := now.Sub(r.lastSample).Seconds()
		if elapsed > 0 {
			r.pushSpeed(float64(sample.BytesDone-r.lastBytes) / elapsed)
		}
	}
	r.lastSample = now
	r.lastBytes = sample.BytesDone

	if !stageChanged && !r.lastEmit.IsZero() && now.Sub(r.lastEmit) < r.interval {
		return
	}
	r.lastEmit = now
	r.emitLocked(sample, now)
}

// StageChange forces an emission carrying a human-readable label for a
// state-machine transition, bypassing the throttle.
func (r *Reporter) StageChange(stage domain.Stage, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.currentStage = stage
	r.lastBytes = 0
	r.maxBytes = 0
	r.speedSamples = nil
	r.lastSample = time.Time{}
	r.lastEmit = now

	r.emit(domain.ProgressUpdate{
		RequestID:  r.requestID,
		Stage:      stage,
		StageLabel: label,
		At:         now,
	})
}

func (r *Reporter) pushSpeed(bytesPerSec float64) {
	r.speedSamples = append(r.speedSamples, bytesPerSec)
	if len(r.speedSamples) > speedWindow {
		r.speedSamples = r.speedSamples[1:]
	}
}

func (r *Reporter) averageSpeed() float64 {
	if len(r.speedSamples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range r.speedSamples {
		sum += s
	}
	return sum / float64(len(r.speedSamples))
}

func (r *Reporter) emitLocked(sample domain.ProgressSample, now time.Time) {
	update := domain.ProgressUpdate{
		RequestID:  r.requestID,
		Stage:      sample.Stage,
		StageLabel: string(sample.Stage),
		BytesDone:  sample.BytesDone,
		BytesTotal: sample.BytesTotal,
		At:         now,
	}

	if sample.BytesTotal > 0 {
		update.Percent = float64(sample.BytesDone) * 100 / float64(sample.BytesTotal)
	}

	avg := r.averageSpeed()
	if avg > 0 {
		update.SpeedText = humanize.Bytes(uint64(avg)) + "/s"
		// ETA is suppressed when the total is unknown or the rate is zero.
		if sample.BytesTotal > sample.BytesDone {
			update.ETAText = formatETA(float64(sample.BytesTotal-sample.BytesDone) / avg)
		}
	}

	r.emit(update)
}

func (r *Reporter) emit(update domain.ProgressUpdate) {
	if r.sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("progress sink panicked",
				zap.String("request_id", r.requestID),
				zap.Any("panic", rec))
		}
	}()
	r.sink.Emit(update)
}

func formatETA(seconds float64) string {
	if seconds < 1 {
		return "1s"
	}
	if seconds < 60 {
		return fmt.Sprintf("%.0fs", seconds)
	}
	return fmt.Sprintf("%dm%ds", int(seconds)/60, int(seconds)%60)
}
