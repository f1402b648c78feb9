package domain

import "time"

// Stage labels the phase a progress sample belongs to
type Stage string

const (
	StagePreparing   Stage = "Preparing"
	StageDownloading Stage = "Downloading"
	StageVerifying   Stage = "Verifying"
	StageUploading   Stage = "Uploading"
	StageCompressing Stage = "Compressing"
)

// ProgressSample is a raw byte-counter snapshot. Ephemeral: consumed by
// the progress reporter to derive a smoothed rate, never persisted.
// BytesTotal is zero when the total size is unknown.
type ProgressSample struct {
	BytesDone  int64
	BytesTotal int64
	Stage      Stage
	At         time.Time
}

// ProgressUpdate is a throttled, human-presentable emission derived from
// raw samples by the reporter.
type ProgressUpdate struct {
	RequestID  string    `json:"request_id"`
	Stage      Stage     `json:"stage"`
	StageLabel string    `json:"stage_label"`
	BytesDone  int64     `json:"bytes_done"`
	BytesTotal int64     `json:"bytes_total"`
	Percent    float64   `json:"percent"`
	SpeedText  string    `json:"speed,omitempty"`
	ETAText    string    `json:"eta,omitempty"`
	At         time.Time `json:"at"`
}

// ProgressSink receives throttled updates. Emission failures are the
// sink's problem: the engine logs and keeps going, it never fails a
// request because a progress channel went away.
type ProgressSink interface {
	Emit(update ProgressUpdate)
}

// ProgressSinkFunc adapts a function to the ProgressSink interface
type ProgressSinkFunc func(update ProgressUpdate)

// Emit implements ProgressSink
func (f ProgressSinkFunc) Emit(update ProgressUpdate) { f(update) }
