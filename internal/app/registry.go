package app

import (
	"sort"
	"sync"
	"time"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

const maxRegistryEntries = 200

// RequestStatus is the live view of one request exposed to the API
type RequestStatus struct {
	ID        string                      `json:"id"`
	URL       string                      `json:"url"`
	Platform  domain.Platform             `json:"platform"`
	Tier      domain.QualityTier          `json:"tier"`
	State     domain.RequestState         `json:"state"`
	Progress  *domain.ProgressUpdate      `json:"progress,omitempty"`
	Error     string                      `json:"error,omitempty"`
	Artifact  *domain.DeliverableArtifact `json:"artifact,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Registry tracks in-flight and recently finished requests in memory.
// Terminal outcomes also go to the history store; this exists so the
// API can answer status and progress queries without touching disk.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RequestStatus
	cancels map[string]func()
}

// NewRegistry creates an empty request registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*RequestStatus),
		cancels: make(map[string]func()),
	}
}

// Add registers a new request in the pending state
func (r *Registry) Add(request *domain.DownloadRequest, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.entries[request.ID] = &RequestStatus{
		ID:        request.ID,
		URL:       request.SourceURL,
		Platform:  request.Platform,
		Tier:      request.RequestedTier,
		State:     domain.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cancel != nil {
		r.cancels[request.ID] = cancel
	}
	r.pruneLocked()
}

// SetState records a state machine transition
func (r *Registry) SetState(id string, state domain.RequestState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		entry.State = state
		entry.UpdatedAt = time.Now()
	}
}

// SetPlatform records the classified platform
func (r *Registry) SetPlatform(id string, platform domain.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		entry.Platform = platform
		entry.UpdatedAt = time.Now()
	}
}

// SetProgress stores the latest throttled progress update
func (r *Registry) SetProgress(id string, update domain.ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		entry.Progress = &update
		entry.UpdatedAt = time.Now()
	}
}

// Finish moves a request to its terminal state
func (r *Registry) Finish(id string, artifact *domain.DeliverableArtifact, failure error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
	entry, ok := r.entries[id]
	if !ok {
		return
	}
	entry.UpdatedAt = time.Now()
	if failure != nil {
		entry.State = domain.StateFailed
		entry.Error = domain.UserMessage(failure)
		return
	}
	entry.State = domain.StateDelivered
	entry.Artifact = artifact
}

// Get returns the status for one request
func (r *Registry) Get(id string) (*RequestStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	snapshot := *entry
	return &snapshot, true
}

// Cancel aborts an in-flight request. Returns false when the request is
// unknown or already terminal.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// List returns all tracked requests, newest first
func (r *Registry) List() []*RequestStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RequestStatus, 0, len(r.entries))
	for _, entry := range r.entries {
		snapshot := *entry
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// pruneLocked drops the oldest terminal entries once the registry grows
// past its cap. In-flight requests are never evicted.
func (r *Registry) pruneLocked() {
	if len(r.entries) <= maxRegistryEntries {
		return
	}
	terminal := make([]*RequestStatus, 0)
	for _, entry := range r.entries {
		if entry.State.IsTerminal() {
			terminal = append(terminal, entry)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.Before(terminal[j].UpdatedAt)
	})
	for _, entry := range terminal {
		if len(r.entries) <= maxRegistryEntries {
			break
		}
		delete(r.entries, entry.ID)
	}
}
