package domain

import "time"

// RecordOutcome is the terminal disposition persisted for one request
type RecordOutcome string

const (
	OutcomeDelivered RecordOutcome = "delivered"
	OutcomeFailed    RecordOutcome = "failed"
	OutcomeCancelled RecordOutcome = "cancelled"
)

// DownloadRecord is the terminal history entry for one request. This is
// an audit trail, not a work queue: records are written once, after the
// state machine reaches a terminal state.
type DownloadRecord struct {
	ID          string        `json:"id" gorm:"primaryKey"`
	URL         string        `json:"url" gorm:"not null"`
	Platform    Platform      `json:"platform" gorm:"index"`
	Tier        QualityTier   `json:"tier"`
	Outcome     RecordOutcome `json:"outcome" gorm:"not null;index"`
	Strategy    StrategyKind  `json:"strategy,omitempty"`
	FailureKind string        `json:"failure_kind,omitempty"`
	SizeBytes   int64         `json:"size_bytes"`
	Compressed  bool          `json:"compressed"`
	ElapsedMS   int64         `json:"elapsed_ms"`
	CreatedAt   time.Time     `json:"created_at" gorm:"autoCreateTime"`
}

// HistoryStats aggregates terminal records for the stats endpoint
type HistoryStats struct {
	Total      int64 `json:"total"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
	Compressed int64 `json:"compressed"`
}

// HistoryRepository persists terminal request records
type HistoryRepository interface {
	// Record writes one terminal entry
	Record(record *DownloadRecord) error

	// Recent returns the newest records, most recent first
	Recent(limit int) ([]*DownloadRecord, error)

	// Stats aggregates counts across all records
	Stats() (*HistoryStats, error)
}
