package app

import (
	"context"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// Racer runs the applicable strategy executors concurrently for one
// request, profile by profile in priority order. The first success wins
// and cancels its siblings; lower-priority profiles are only attempted
// when every executor for the current one failed.
type Racer struct {
	executors []domain.StrategyExecutor
	logger    *zap.Logger
}

// NewRacer creates a racer over a fixed executor set
func NewRacer(executors []domain.StrategyExecutor, logger *zap.Logger) *Racer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Racer{executors: executors, logger: logger}
}

type raceResult struct {
	outcome *domain.StrategyOutcome
	err     error
	kind    domain.StrategyKind
}

// Race attempts the profiles best-first. On total failure it returns an
// ExhaustedError aggregating every executor's cause. Context
// cancellation surfaces as ErrCancelled, distinguishable from failure.
func (r *Racer) Race(ctx context.Context, request *domain.DownloadRequest, profiles []domain.QualityProfile) (*domain.StrategyOutcome, error) {
	var causes []domain.AttemptFailure

	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			return nil, domain.ErrCancelled
		}

		applicable := r.applicableExecutors(request)
		if len(applicable) == 0 {
			break
		}

		outcome, profileCauses, err := r.raceProfile(ctx, request, profile, applicable)
		causes = append(causes, profileCauses...)
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			r.logger.Info("strategy race won",
				zap.String("request_id", request.ID),
				zap.String("strategy", string(outcome.Strategy)),
				zap.String("tier", string(profile.TierLabel)))
			return outcome, nil
		}
	}

	return nil, &domain.ExhaustedError{Causes: causes}
}

// raceProfile launches every applicable executor for one profile and
// returns the winning outcome, or nil with the collected failures.
func (r *Racer) raceProfile(ctx context.Context, request *domain.DownloadRequest, profile domain.QualityProfile, executors []domain.StrategyExecutor) (*domain.StrategyOutcome, []domain.AttemptFailure, error) {
	profileCtx, cancel := context.WithCancel(ctx)

	results := make(chan raceResult, len(executors))
	var wg sync.WaitGroup
	for _, exec := range executors {
		wg.Add(1)
		go func(exec domain.StrategyExecutor) {
			defer wg.Done()
			outcome, err := exec.Acquire(profileCtx, request, profile)
			results <- raceResult{outcome: outcome, err: err, kind: exec.Kind()}
		}(exec)
	}

	// Release the cancel signal only after every executor returned, so
	// losers observe it and clean up before the context dies.
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	defer func() {
		cancel()
		<-finished
		// A loser may still have slipped a late success into the buffer;
		// its file must not outlive the race.
		drainResults(results)
	}()

	var causes []domain.AttemptFailure
	received := 0
	for received < len(executors) {
		var res raceResult
		select {
		case res = <-results:
		case <-ctx.Done():
			cancel()
			<-finished
			drainResults(results)
			return nil, causes, domain.ErrCancelled
		}
		received++

		if res.err != nil || res.outcome == nil || !res.outcome.Success {
			causes = append(causes, domain.AttemptFailure{
				Strategy: res.kind,
				Profile:  profile.TierLabel,
				Kind:     domain.KindOf(res.err),
				Err:      res.err,
			})
			continue
		}

		// A success: stop the siblings, then collect any other success
		// already queued in the same tick and tie-break deterministically.
		cancel()
		winner := r.settleTie(res, results, &received, len(executors), profile, &causes)
		return winner, causes, nil
	}

	return nil, causes, nil
}

// settleTie drains results that arrived in the same scheduling tick as
// the first success. Among simultaneous successes the lexicographically
// first strategy kind wins; the losers' files are removed.
func (r *Racer) settleTie(first raceResult, results chan raceResult, received *int, total int, profile domain.QualityProfile, causes *[]domain.AttemptFailure) *domain.StrategyOutcome {
	successes := []raceResult{first}
	for *received < total {
		select {
		case res := <-results:
			*received++
			if res.err == nil && res.outcome != nil && res.outcome.Success {
				successes = append(successes, res)
			} else {
				*causes = append(*causes, domain.AttemptFailure{
					Strategy: res.kind,
					Profile:  profile.TierLabel,
					Kind:     domain.KindOf(res.err),
					Err:      res.err,
				})
			}
		default:
			// Nothing else queued: the remaining executors were cancelled
			// and will report on the channel after we return; the deferred
			// wait in raceProfile keeps the context alive until they do.
			*received = total
		}
	}

	sort.Slice(successes, func(i, j int) bool { return successes[i].kind < successes[j].kind })
	winner := successes[0]
	for _, loser := range successes[1:] {
		if loser.outcome.FilePath != "" {
			if err := os.Remove(loser.outcome.FilePath); err != nil && !os.IsNotExist(err) {
				r.logger.Warn("failed to remove losing outcome file",
					zap.String("path", loser.outcome.FilePath), zap.Error(err))
			}
		}
	}
	return winner.outcome
}

func (r *Racer) applicableExecutors(request *domain.DownloadRequest) []domain.StrategyExecutor {
	var out []domain.StrategyExecutor
	for _, e := range r.executors {
		if e.Applicable(request) {
			out = append(out, e)
		}
	}
	return out
}

func drainResults(results chan raceResult) {
	for {
		select {
		case res := <-results:
			if res.outcome != nil && res.outcome.Success && res.outcome.FilePath != "" {
				os.Remove(res.outcome.FilePath)
			}
		default:
			return
		}
	}
}
