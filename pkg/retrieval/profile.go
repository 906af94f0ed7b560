package retrieval

import (
	"math"
	"sort"
	"sync/atomic"
)

// Built-in deterministic profile names.
const (
	ProfileLexicalFirst = "lexical_first"
	ProfileVectorFirst  = "vector_first"
	ProfileBalanced     = "balanced"
	ProfileTuned        = "tuned"
)

// WeightProfile maps engine identifiers to non-negative fusion weights.
// Profiles never need to sum to one: strategies that require normalization
// normalize at use time, so profiles can be edited independently.
type WeightProfile struct {
	// Name identifies the profile in results, logs and metrics.
	Name string `json:"name"`

	// Strategy selects the fusion algorithm ("rrf" or "score").
	Strategy string `json:"strategy"`

	// Weights holds the per-engine weight. Missing engines weigh zero.
	Weights map[string]float64 `json:"weights"`
}

// Validate checks the profile invariants: a non-empty weight map with
// finite, non-negative weights and at least one positive weight.
func (p WeightProfile) Validate() error {
	if len(p.Weights) == 0 {
		return &InvalidProfileError{Name: p.Name, Reason: "no engine weights"}
	}
	positive := false
	for engine, w := range p.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return &InvalidProfileError{Name: p.Name, Reason: "weight for " + engine + " is not finite"}
		}
		if w < 0 {
			return &InvalidProfileError{Name: p.Name, Reason: "weight for " + engine + " is negative"}
		}
		if w > 0 {
			positive = true
		}
	}
	if !positive {
		return &InvalidProfileError{Name: p.Name, Reason: "all weights are zero"}
	}
	if p.Strategy != "" && p.Strategy != StrategyRRF && p.Strategy != StrategyScore {
		return &InvalidProfileError{Name: p.Name, Reason: "unknown strategy " + p.Strategy}
	}
	return nil
}

// Weight returns the weight for an engine, zero when absent.
func (p WeightProfile) Weight(engine string) float64 {
	return p.Weights[engine]
}

// Normalized returns a copy of the weights scaled to sum to one.
func (p WeightProfile) Normalized() map[string]float64 {
	sum := 0.0
	for _, w := range p.Weights {
		sum += w
	}
	out := make(map[string]float64, len(p.Weights))
	if sum == 0 {
		return out
	}
	for engine, w := range p.Weights {
		out[engine] = w / sum
	}
	return out
}

// Primary returns the highest-weighted engine; ties break on engine name so
// the answer is deterministic.
func (p WeightProfile) Primary() string {
	engines := make([]string, 0, len(p.Weights))
	for e := range p.Weights {
		engines = append(engines, e)
	}
	sort.Strings(engines)

	best := ""
	bestW := math.Inf(-1)
	for _, e := range engines {
		if p.Weights[e] > bestW {
			best = e
			bestW = p.Weights[e]
		}
	}
	return best
}

// EnginesByWeight returns engine names ordered by descending weight, ties
// broken by name.
func (p WeightProfile) EnginesByWeight() []string {
	engines := make([]string, 0, len(p.Weights))
	for e := range p.Weights {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool {
		wi, wj := p.Weights[engines[i]], p.Weights[engines[j]]
		if wi != wj {
			return wi > wj
		}
		return engines[i] < engines[j]
	})
	return engines
}

func (p WeightProfile) clone() WeightProfile {
	weights := make(map[string]float64, len(p.Weights))
	for k, v := range p.Weights {
		weights[k] = v
	}
	return WeightProfile{Name: p.Name, Strategy: p.Strategy, Weights: weights}
}

// DefaultProfiles returns the built-in deterministic profiles keyed by name.
func DefaultProfiles() map[string]WeightProfile {
	return map[string]WeightProfile{
		ProfileLexicalFirst: {
			Name:     ProfileLexicalFirst,
			Strategy: StrategyRRF,
			Weights:  map[string]float64{EngineLexical: 2.0, EngineVector: 0.5, EngineGraph: 0.25},
		},
		ProfileVectorFirst: {
			Name:     ProfileVectorFirst,
			Strategy: StrategyRRF,
			Weights:  map[string]float64{EngineVector: 2.0, EngineLexical: 0.5, EngineGraph: 0.5},
		},
		ProfileBalanced: {
			Name:     ProfileBalanced,
			Strategy: StrategyRRF,
			Weights:  map[string]float64{EngineVector: 1.0, EngineLexical: 1.0, EngineGraph: 0.5},
		},
	}
}

// DefaultLabelProfiles returns the deterministic label-to-profile selection.
func DefaultLabelProfiles() map[Label]string {
	return map[Label]string{
		LabelIdentifier: ProfileLexicalFirst,
		LabelFactual:    ProfileBalanced,
		LabelAbstract:   ProfileVectorFirst,
	}
}

// PolicyStoreConfig configures a PolicyStore.
type PolicyStoreConfig struct {
	// Adaptive switches profile selection from the deterministic label map
	// to the continuously tuned profile.
	Adaptive bool

	// Profiles holds the named deterministic profiles. Nil selects
	// DefaultProfiles.
	Profiles map[string]WeightProfile

	// LabelProfiles maps a classification label to a profile name. Nil
	// selects DefaultLabelProfiles.
	LabelProfiles map[Label]string
}

// policyLogger is the minimal logger interface used by PolicyStore.
type policyLogger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

type nopPolicyLogger struct{}

func (nopPolicyLogger) Warn(msg string, args ...any) {}
func (nopPolicyLogger) Info(msg string, args ...any) {}

// PolicyStore holds the deterministic named profiles and the continuously
// tuned profile. Reads take an immutable snapshot via an atomic pointer, so
// the hot query path never blocks on the tuner's writes; the tuner is the
// single writer.
type PolicyStore struct {
	adaptive      bool
	profiles      map[string]WeightProfile
	labelProfiles map[Label]string
	tuned         atomic.Pointer[WeightProfile]
	logger        policyLogger
}

// NewPolicyStore creates a policy store. Deterministic profiles are
// configuration: loaded once, never mutated at runtime.
func NewPolicyStore(cfg PolicyStoreConfig, log policyLogger) (*PolicyStore, error) {
	if log == nil {
		log = nopPolicyLogger{}
	}
	profiles := cfg.Profiles
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	labelProfiles := cfg.LabelProfiles
	if labelProfiles == nil {
		labelProfiles = DefaultLabelProfiles()
	}

	frozen := make(map[string]WeightProfile, len(profiles))
	for name, p := range profiles {
		p.Name = name
		if p.Strategy == "" {
			p.Strategy = StrategyRRF
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		frozen[name] = p.clone()
	}
	for label, name := range labelProfiles {
		if _, ok := frozen[name]; !ok {
			return nil, &UnknownProfileError{Name: name + " (for label " + string(label) + ")"}
		}
	}

	s := &PolicyStore{
		adaptive:      cfg.Adaptive,
		profiles:      frozen,
		labelProfiles: labelProfiles,
		logger:        log,
	}

	// Seed the tuned profile from the balanced deterministic profile so
	// adaptive mode has a valid snapshot before the first retune.
	seed := frozen[ProfileBalanced]
	if seed.Weights == nil {
		for _, p := range frozen {
			seed = p
			break
		}
	}
	seed = seed.clone()
	seed.Name = ProfileTuned
	s.tuned.Store(&seed)

	return s, nil
}

// ProfileFor returns the profile to use for a classification. In
// deterministic mode the label map decides; in adaptive mode the latest
// tuned snapshot is returned. Callers keep the returned snapshot for the
// whole query, so later tuner updates never tear an in-flight read.
func (s *PolicyStore) ProfileFor(c Classification) WeightProfile {
	if s.adaptive {
		return *s.tuned.Load()
	}
	name, ok := s.labelProfiles[c.Label]
	if !ok {
		name = ProfileBalanced
	}
	return s.profiles[name]
}

// ProfileNamed returns a deterministic profile by name, or the tuned
// snapshot for ProfileTuned.
func (s *PolicyStore) ProfileNamed(name string) (WeightProfile, error) {
	if name == ProfileTuned {
		return *s.tuned.Load(), nil
	}
	p, ok := s.profiles[name]
	if !ok {
		return WeightProfile{}, &UnknownProfileError{Name: name}
	}
	return p, nil
}

// Tuned returns the current tuned profile snapshot.
func (s *PolicyStore) Tuned() WeightProfile {
	return *s.tuned.Load()
}

// UpdateTuned atomically replaces the tuned profile. Invalid profiles are
// rejected: the last known-good snapshot stays in place and the condition is
// logged, never propagated to the query path.
func (s *PolicyStore) UpdateTuned(p WeightProfile) error {
	p.Name = ProfileTuned
	if p.Strategy == "" {
		p.Strategy = s.tuned.Load().Strategy
	}
	if err := p.Validate(); err != nil {
		s.logger.Warn("rejected tuned profile update", "error", err)
		return err
	}
	next := p.clone()
	s.tuned.Store(&next)
	return nil
}

// Snapshot returns a copy of every profile for the observability surface.
func (s *PolicyStore) Snapshot() map[string]WeightProfile {
	out := make(map[string]WeightProfile, len(s.profiles)+1)
	for name, p := range s.profiles {
		out[name] = p.clone()
	}
	out[ProfileTuned] = s.tuned.Load().clone()
	return out
}
