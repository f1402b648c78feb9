package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestState represents the orchestrator's position in the download state machine
type RequestState string

const (
	StatePending     RequestState = "pending"
	StateClassified  RequestState = "classified"
	StateNegotiated  RequestState = "negotiated"
	StateRacing      RequestState = "racing"
	StateDownloaded  RequestState = "downloaded"
	StateSizeChecked RequestState = "size_checked"
	StateCompressing RequestState = "compressing"
	StateReady       RequestState = "ready"
	StateDelivered   RequestState = "delivered"
	StateFailed      RequestState = "failed"
)

// IsTerminal reports whether the state machine has finished with this request
func (s RequestState) IsTerminal() bool {
	return s == StateDelivered || s == StateFailed
}

// AuthContext is an opaque per-platform credential bundle. Cookie values are
// keyed by cookie name; the engine never interprets them beyond writing them
// into a transient cookie store for an executor attempt.
type AuthContext struct {
	Platform     Platform
	CookieDomain string
	Cookies      map[string]string
}

// Empty reports whether the bundle carries no usable credentials
func (a AuthContext) Empty() bool {
	return len(a.Cookies) == 0
}

// AuthProvider supplies credential bundles keyed by platform tag.
// Implementations live outside the core; the orchestrator treats the
// result as read-only.
type AuthProvider interface {
	AuthFor(platform Platform) AuthContext
}

// ProgressFunc receives raw byte-counter samples from whichever
// executor is live for the request.
type ProgressFunc func(sample ProgressSample)

// DownloadRequest is the unit of work owned by one orchestrator run.
// Immutable after creation; Progress is the shared reporter hook bound
// by the orchestrator before racing starts.
type DownloadRequest struct {
	ID              string
	SourceURL       string
	Platform        Platform
	RequestedTier   QualityTier
	Auth            AuthContext
	SizeBudgetBytes int64
	TempDir         string
	Progress        ProgressFunc
	CreatedAt       time.Time
}

// ReportProgress forwards a sample to the bound reporter, if any
func (r *DownloadRequest) ReportProgress(sample ProgressSample) {
	if r.Progress != nil {
		r.Progress(sample)
	}
}

// NewDownloadRequest creates a request handle for one orchestration run
func NewDownloadRequest(sourceURL string, tier QualityTier, sizeBudget int64) *DownloadRequest {
	return &DownloadRequest{
		ID:              uuid.New().String(),
		SourceURL:       sourceURL,
		RequestedTier:   tier,
		SizeBudgetBytes: sizeBudget,
		CreatedAt:       time.Now(),
	}
}

// MediaMetadata describes the acquired asset
type MediaMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Uploader    string   `json:"uploader"`
	Duration    int      `json:"duration"` // seconds
	Platform    Platform `json:"platform"`
	AudioOnly   bool     `json:"audio_only"`
}

// DeliverableArtifact is the terminal output of a successful request.
// Ownership transfers to the delivery collaborator, which is responsible
// for eventual removal of the file.
type DeliverableArtifact struct {
	FilePath  string        `json:"file_path"`
	SizeBytes int64         `json:"size_bytes"`
	Metadata  MediaMetadata `json:"metadata"`
}

// Delivery receives the finished artifact. Implemented by the chat/web
// front end, not by the engine. Deliver must fully consume
// artifact.FilePath before returning: the file lives in the request's
// scratch directory, which the orchestrator removes as soon as Deliver
// returns. Implementations that need the bytes later must copy them.
type Delivery interface {
	Deliver(request *DownloadRequest, artifact *DeliverableArtifact) error
}
