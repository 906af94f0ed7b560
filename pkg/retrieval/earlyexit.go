package retrieval

// GuardConfig configures the early-exit guard.
type GuardConfig struct {
	// Enabled turns the guard on. When off, every source is always queried.
	Enabled bool

	// PrimaryEngine is the engine whose result count drives the decision.
	// Empty selects the profile's highest-weighted engine at call time.
	PrimaryEngine string

	// MinResults is the specificity threshold N: skipping is only permitted
	// when the primary engine returned fewer than N items.
	MinResults int

	// ConfidenceThreshold is the raw top-score level at which a narrow
	// primary result counts as high-confidence, promoting the lexical-first
	// profile regardless of the query's label. The scale is the primary
	// engine's own score scale.
	ConfidenceThreshold float64
}

// DefaultGuardConfig returns the default early-exit parameters.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Enabled:             true,
		PrimaryEngine:       EngineLexical,
		MinResults:          5,
		ConfidenceThreshold: 0.9,
	}
}

// Guard decides whether the expensive deferred sources can be skipped once
// the cheap sources have responded. A small, precise result set from the
// primary engine indicates a narrow, structured query that broader traversal
// will not improve.
type Guard struct {
	cfg GuardConfig
}

// NewGuard creates an early-exit guard.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MinResults <= 0 {
		cfg.MinResults = DefaultGuardConfig().MinResults
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultGuardConfig().ConfidenceThreshold
	}
	return &Guard{cfg: cfg}
}

// ShouldSkip reports whether the remaining sources can be skipped given the
// results gathered so far.
//
// Skipping is never permitted when the primary engine returned MinResults or
// more items: an ambiguous query keeps its full recall. It is taken only for
// identifier-like queries where the primary engine produced a non-empty
// result set below the threshold; an empty primary result is not precise,
// it is a looming miss, so traversal still runs.
func (g *Guard) ShouldSkip(soFar map[string][]Candidate, c Classification, profile WeightProfile) bool {
	if !g.cfg.Enabled {
		return false
	}

	primary := g.cfg.PrimaryEngine
	if primary == "" {
		primary = profile.Primary()
	}

	n := len(soFar[primary])
	if n >= g.cfg.MinResults {
		return false
	}
	if n == 0 {
		return false
	}
	return c.Label == LabelIdentifier
}

// ConfidentPrimary reports whether the primary engine alone resolved the
// query with high confidence: a non-empty result set below MinResults whose
// top raw score clears ConfidenceThreshold. The orchestrator promotes the
// lexical-first profile on this signal, whatever the query's label says; it
// is the same narrowness cue ShouldSkip consumes, sharpened by score.
func (g *Guard) ConfidentPrimary(soFar map[string][]Candidate, profile WeightProfile) bool {
	primary := g.cfg.PrimaryEngine
	if primary == "" {
		primary = profile.Primary()
	}

	candidates := soFar[primary]
	if len(candidates) == 0 || len(candidates) >= g.cfg.MinResults {
		return false
	}
	top := candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score > top {
			top = c.Score
		}
	}
	return top >= g.cfg.ConfidenceThreshold
}
