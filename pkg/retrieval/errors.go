package retrieval

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is returned when a query carries neither text nor filters.
var ErrInvalidQuery = errors.New("retrieval: query must contain text or filters")

// SourceUnavailableError reports that one candidate source failed or timed
// out. It is absorbed by the orchestrator: fusion continues with the
// remaining sources.
type SourceUnavailableError struct {
	Engine string
	Cause  error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.Engine, e.Cause)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Cause }

// AllSourcesUnavailableError reports that every queried source failed for a
// query. Callers use it to distinguish infrastructure failure from a genuine
// zero-match result.
type AllSourcesUnavailableError struct {
	Failures []*SourceUnavailableError
}

func (e *AllSourcesUnavailableError) Error() string {
	engines := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		engines[i] = f.Engine
	}
	return fmt.Sprintf("all sources unavailable: %s", strings.Join(engines, ", "))
}

// InvalidProfileError reports a malformed or out-of-range weight profile
// detected at read or update time. The policy store falls back to the last
// known-good profile; the query path never crashes on it.
type InvalidProfileError struct {
	Name   string
	Reason string
}

func (e *InvalidProfileError) Error() string {
	return fmt.Sprintf("invalid weight profile %q: %s", e.Name, e.Reason)
}

// UnknownProfileError reports a forced profile override naming a profile
// that does not exist.
type UnknownProfileError struct {
	Name string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown weight profile %q", e.Name)
}
