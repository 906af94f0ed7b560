package retrieval

import (
	"context"
	"fmt"
	"time"
)

// Source wraps one external retrieval engine behind a uniform contract.
// Implementations return candidates sorted by their own notion of relevance,
// best first, and must not re-rank. Fetch should honor ctx cancellation.
type Source interface {
	// Name returns the engine identifier used in profiles and results.
	Name() string

	// Deferred reports whether the source is expensive enough that the
	// early-exit guard may skip it (graph traversal, remote indexes).
	Deferred() bool

	// Fetch returns up to limit ranked candidates for the query.
	Fetch(ctx context.Context, q Query, limit int) ([]Candidate, error)
}

// sourceLogger is the minimal logger interface used by the fetch wrapper.
type sourceLogger interface {
	Warn(msg string, args ...any)
}

// fetchOutcome carries one guarded source invocation's result back to the
// orchestrator.
type fetchOutcome struct {
	engine     string
	candidates []Candidate
	failure    *SourceUnavailableError
}

// guardedFetch invokes a source under its own timeout with fail-open
// semantics: timeouts, errors and panics all degrade to an empty candidate
// list plus a SourceUnavailable condition instead of aborting the query.
// Returned candidates get their engine attribution and 1-based ranks
// normalized; list order is preserved.
func guardedFetch(ctx context.Context, src Source, q Query, limit int, timeout time.Duration, log sourceLogger) fetchOutcome {
	out := fetchOutcome{engine: src.Name()}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	candidates, err := func() (candidates []Candidate, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("source panic: %v", r)
			}
		}()
		return src.Fetch(ctx, q, limit)
	}()

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		out.failure = &SourceUnavailableError{Engine: src.Name(), Cause: err}
		if log != nil {
			log.Warn("candidate source unavailable", "engine", src.Name(), "error", err)
		}
		return out
	}

	for i := range candidates {
		candidates[i].Engine = src.Name()
		candidates[i].Rank = i + 1
	}
	out.candidates = candidates
	return out
}
