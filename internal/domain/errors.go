package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why an executor attempt or a whole request failed
type FailureKind string

const (
	FailureAuthRequired   FailureKind = "auth_required"
	FailureNotFound       FailureKind = "not_found"
	FailureRateLimited    FailureKind = "rate_limited"
	FailureNetworkTimeout FailureKind = "network_timeout"
	FailureUnsupported    FailureKind = "unsupported"
	FailureUnknown        FailureKind = "unknown"
)

// Retryable reports whether an attempt with this failure kind is worth
// repeating against the same strategy.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureRateLimited, FailureNetworkTimeout, FailureUnknown:
		return true
	}
	return false
}

// StrategyError is an executor-level failure carrying its classification
type StrategyError struct {
	Kind  FailureKind
	Cause error
}

func (e *StrategyError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *StrategyError) Unwrap() error { return e.Cause }

// NewStrategyError wraps a cause with its failure classification
func NewStrategyError(kind FailureKind, cause error) *StrategyError {
	return &StrategyError{Kind: kind, Cause: cause}
}

// KindOf extracts the failure kind from an error chain, defaulting to unknown
func KindOf(err error) FailureKind {
	var se *StrategyError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetworkTimeout
	}
	return FailureUnknown
}

// ExhaustedError is the terminal failure when every executor for every
// profile failed. It retains each attempt's cause for diagnostics; the
// caller-facing message stays short and stable.
type ExhaustedError struct {
	Causes []AttemptFailure
}

// AttemptFailure records one failed executor attempt
type AttemptFailure struct {
	Strategy StrategyKind
	Profile  QualityTier
	Kind     FailureKind
	Err      error
}

func (e *ExhaustedError) Error() string {
	return "all download strategies exhausted"
}

// Detail renders the per-attempt cause chain for logging
func (e *ExhaustedError) Detail() string {
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		parts = append(parts, fmt.Sprintf("%s/%s: %s", c.Strategy, c.Profile, c.Kind))
	}
	return strings.Join(parts, "; ")
}

// Sentinel errors surfaced to the caller. Each maps to a short,
// user-presentable message; diagnostics travel in the wrapped chain.
var (
	ErrBudgetUnattainable = errors.New("file cannot be shrunk below the delivery size limit")
	ErrCancelled          = errors.New("request cancelled")
)

// UserMessage maps a terminal error to its stable caller-facing string
func UserMessage(err error) string {
	var ex *ExhaustedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ex):
		return "download failed: no acquisition method could fetch this link"
	case errors.Is(err, ErrBudgetUnattainable):
		return "download failed: file is too large to deliver even after compression"
	case errors.Is(err, ErrCancelled):
		return "download cancelled"
	}
	return "download failed"
}
