package domain

import "context"

// StrategyKind identifies one acquisition method. The constant values
// double as the deterministic tie-break order: when two strategies
// succeed in the same scheduling tick, the lexicographically smaller
// kind wins.
type StrategyKind string

const (
	StrategyAPI     StrategyKind = "api"
	StrategyCookie  StrategyKind = "cookie"
	StrategyPackage StrategyKind = "package"
)

// StrategyOutcome is the result of one executor attempt. Exactly one
// successful outcome is retained per request; losers are discarded after
// cancellation and their files removed.
type StrategyOutcome struct {
	Strategy StrategyKind
	Success  bool
	FilePath string
	Metadata MediaMetadata
	Err      error
}

// StrategyExecutor is one acquisition method behind a uniform capability.
// Acquire must honor ctx cancellation promptly: it checks the signal
// between blocking sub-steps and aborts within the configured grace
// period, releasing any subprocess and file handles before returning.
type StrategyExecutor interface {
	// Kind returns the strategy identity used for racing and tie-breaks
	Kind() StrategyKind

	// Applicable reports whether this strategy can attempt the given
	// platform at all (e.g. the cookie strategy needs credentials).
	Applicable(request *DownloadRequest) bool

	// Acquire fetches the asset for one quality profile into the
	// request's temp dir, returning the outcome or a classified error.
	Acquire(ctx context.Context, request *DownloadRequest, profile QualityProfile) (*StrategyOutcome, error)
}
