// Package retrieval implements the hybrid fusion and adaptive weighting core:
// it fans a query out to independent candidate sources, fuses their ranked
// lists into one ordered result, and tunes per-engine fusion weights from
// observed feedback.
package retrieval

import "time"

// Well-known engine identifiers for the built-in candidate sources.
const (
	EngineVector  = "vector"
	EngineLexical = "lexical"
	EngineGraph   = "graph"
)

// Fusion strategy identifiers.
const (
	StrategyRRF   = "rrf"
	StrategyScore = "score"
)

// Query is an immutable retrieval request. It is created per call and
// discarded once the call completes.
type Query struct {
	// Text is the raw query text.
	Text string

	// Filters are optional structured metadata filters (AND logic).
	Filters map[string]string

	// Depth is a caller-supplied traversal-depth hint for graph sources.
	// Zero means source default.
	Depth int
}

// Options control a single Retrieve call.
type Options struct {
	// Limit is the maximum number of fused results to return.
	Limit int

	// ForceProfile overrides classifier-driven profile selection with a
	// named deterministic profile. Intended for testing and operations.
	ForceProfile string

	// BypassCache forces a fresh retrieval even when a cached result exists.
	BypassCache bool
}

// Label is the categorical shape of a query.
type Label string

const (
	// LabelIdentifier marks identifier-like queries (ticket numbers, IDs,
	// exact tokens) that lexical engines resolve best.
	LabelIdentifier Label = "identifier"

	// LabelFactual marks structured factual queries.
	LabelFactual Label = "factual"

	// LabelAbstract marks semantic or conceptual queries that benefit from
	// dense-vector similarity.
	LabelAbstract Label = "abstract"
)

// Classification is the derived shape of one query: a scalar resonance value
// and the label it maps to. Computed once per query, immutable.
type Classification struct {
	Resonance float64 `json:"resonance"`
	Label     Label   `json:"label"`
}

// Candidate is a single retrieval hit from one engine. Engines return
// candidates sorted best-first; the fusion layer never re-ranks raw lists.
type Candidate struct {
	// Engine is the source engine identifier.
	Engine string `json:"engine"`

	// ID is the opaque item identifier.
	ID string `json:"id"`

	// Score is the engine-local raw score on an engine-specific scale.
	Score float64 `json:"score"`

	// Rank is the engine-local 1-based rank.
	Rank int `json:"rank"`
}

// Contribution records one engine's share of a fused result for
// explainability.
type Contribution struct {
	Engine string  `json:"engine"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// FusedResult is one row of the final ranking. Item identifiers are unique
// within one fused list: when several engines return the same item their
// contributions are merged, never duplicated.
type FusedResult struct {
	ID            string         `json:"id"`
	Score         float64        `json:"score"`
	Contributions []Contribution `json:"contributions"`
}

// Status indicates the health of the retrieval that produced a result list.
type Status string

const (
	// StatusNormal means every queried source responded.
	StatusNormal Status = "normal"

	// StatusDegraded means at least one source failed or timed out while
	// others succeeded.
	StatusDegraded Status = "degraded"

	// StatusUnavailable means every source failed; the empty result is an
	// infrastructure failure, not a zero-match.
	StatusUnavailable Status = "unavailable"
)

// Result is the outcome of one Retrieve call.
type Result struct {
	Items          []FusedResult  `json:"items"`
	Status         Status         `json:"status"`
	Classification Classification `json:"classification"`

	// Profile is the name of the weight profile in effect.
	Profile string `json:"profile"`

	// FailedSources lists engines that failed or timed out.
	FailedSources []string `json:"failed_sources,omitempty"`

	// SkippedSources lists engines the early-exit guard skipped.
	SkippedSources []string `json:"skipped_sources,omitempty"`

	// Miss is true when the miss recorder declared this retrieval a miss.
	Miss bool `json:"miss"`
}

// Feedback is an explicit relevance signal for one retrieved item.
type Feedback struct {
	// ItemID identifies the item the signal refers to.
	ItemID string `json:"item_id"`

	// QueryText is the query the item was retrieved for.
	QueryText string `json:"query_text"`

	// Engines lists the engines that contributed the item.
	Engines []string `json:"engines"`

	// Rank is the item's 1-based position in the fused list. Used for
	// reciprocal-rank reward shaping; zero is treated as rank 1.
	Rank int `json:"rank"`

	// Relevant is the explicit relevance label.
	Relevant bool `json:"relevant"`
}

// FailureEvent records a retrieval miss: a query whose fused results held
// nothing above the relevance floor. Append-only, never mutated.
type FailureEvent struct {
	ID             string         `json:"id"`
	QueryText      string         `json:"query_text"`
	Classification Classification `json:"classification"`
	Engines        []string       `json:"engines"`
	Profile        string         `json:"profile"`
	TopScore       float64        `json:"top_score"`
	Timestamp      time.Time      `json:"timestamp"`
}
