package retrieval

import (
	"math"
	"sort"
)

// FusionConfig holds the numeric knobs of the fusion engine.
type FusionConfig struct {
	// K is the reciprocal-rank damping constant. Larger values flatten the
	// influence of rank differences.
	K float64

	// AdaptiveK scales K with candidate density between KMin and KMax
	// instead of using the fixed constant. Fusion stays deterministic for a
	// fixed input set either way.
	AdaptiveK bool
	KMin      float64
	KMax      float64

	// SynergyBoost multiplies the fused score of items found by more than
	// one engine. Must be >= 1; 1 disables the boost.
	SynergyBoost float64

	// ClipMin and ClipMax bound composite scores so a single engine's
	// outlier cannot dominate the ranking. A wider band is more lenient and
	// preserves more of the long tail.
	ClipMin float64
	ClipMax float64
}

// DefaultFusionConfig returns the default fusion parameters.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		K:            60.0,
		AdaptiveK:    false,
		KMin:         20.0,
		KMax:         250.0,
		SynergyBoost: 1.2,
		ClipMin:      0.0,
		ClipMax:      1.0,
	}
}

// Fuser merges independently-ranked candidate lists into one ordered result.
// Fuse is a pure function of its inputs and the profile snapshot: identical
// inputs always produce identical output ordering and scores.
type Fuser struct {
	cfg FusionConfig
}

// NewFuser creates a fusion engine.
func NewFuser(cfg FusionConfig) *Fuser {
	if cfg.K <= 0 {
		cfg.K = DefaultFusionConfig().K
	}
	if cfg.SynergyBoost < 1 {
		cfg.SynergyBoost = 1
	}
	if cfg.ClipMax <= cfg.ClipMin {
		cfg.ClipMin = DefaultFusionConfig().ClipMin
		cfg.ClipMax = DefaultFusionConfig().ClipMax
	}
	return &Fuser{cfg: cfg}
}

// Fuse merges the per-engine candidate lists under the given profile.
//
// Every engine's contributions are always considered: an engine that
// returned zero hits simply contributes nothing, it never suppresses the
// other engines' candidates. Items present in several lists merge into a
// single fused result.
func (f *Fuser) Fuse(lists map[string][]Candidate, profile WeightProfile) []FusedResult {
	merged := make(map[string]*FusedResult)

	strategy := profile.Strategy
	if strategy == "" {
		strategy = StrategyRRF
	}

	switch strategy {
	case StrategyScore:
		f.fuseScore(lists, profile, merged)
	default:
		f.fuseRRF(lists, profile, merged)
	}

	results := make([]FusedResult, 0, len(merged))
	for _, fr := range merged {
		// Synergy boost rewards cross-engine agreement. Applied after
		// weighting and before clipping.
		if len(fr.Contributions) > 1 && f.cfg.SynergyBoost > 1 {
			fr.Score *= f.cfg.SynergyBoost
		}
		fr.Score = math.Max(f.cfg.ClipMin, math.Min(f.cfg.ClipMax, fr.Score))
		results = append(results, *fr)
	}

	f.sortDeterministic(results, profile)
	return results
}

// fuseRRF applies weighted Reciprocal Rank Fusion:
// score = sum over engines of weight/(k + rank). Items absent from an
// engine's list contribute zero for that engine.
func (f *Fuser) fuseRRF(lists map[string][]Candidate, profile WeightProfile, merged map[string]*FusedResult) {
	k := f.rrfK(lists)
	for _, engine := range sortedEngines(lists) {
		weight := profile.Weight(engine)
		for _, c := range lists[engine] {
			fr := ensure(merged, c.ID)
			fr.Score += weight / (k + float64(c.Rank))
			fr.Contributions = append(fr.Contributions, Contribution{
				Engine: engine, Score: c.Score, Rank: c.Rank,
			})
		}
	}
}

// fuseScore applies score-based fusion: each engine's raw scores are min-max
// normalized into [0,1] per query, then combined with use-time normalized
// weights so the composite stays on the documented [0,1] scale before
// synergy and clipping.
func (f *Fuser) fuseScore(lists map[string][]Candidate, profile WeightProfile, merged map[string]*FusedResult) {
	weights := profile.Normalized()
	for _, engine := range sortedEngines(lists) {
		candidates := lists[engine]
		weight := weights[engine]
		norms := minMaxNormalize(candidates)
		for i, c := range candidates {
			fr := ensure(merged, c.ID)
			fr.Score += weight * norms[i]
			fr.Contributions = append(fr.Contributions, Contribution{
				Engine: engine, Score: c.Score, Rank: c.Rank,
			})
		}
	}
}

// rrfK returns the damping constant for this fusion call. In adaptive mode
// it grows with the total candidate count, bounded to [KMin, KMax].
func (f *Fuser) rrfK(lists map[string][]Candidate) float64 {
	if !f.cfg.AdaptiveK {
		return f.cfg.K
	}
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	k := float64(total) / 10.0
	return math.Max(f.cfg.KMin, math.Min(f.cfg.KMax, k))
}

// sortDeterministic orders results by descending fused score. Ties break on
// the best (lowest) rank in the highest-weighted engine, then on item ID, so
// re-running fusion on identical inputs yields byte-identical output.
func (f *Fuser) sortDeterministic(results []FusedResult, profile WeightProfile) {
	order := profile.EnginesByWeight()

	rankIn := func(fr FusedResult, engine string) int {
		for _, c := range fr.Contributions {
			if c.Engine == engine {
				return c.Rank
			}
		}
		return math.MaxInt32
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		for _, engine := range order {
			ri, rj := rankIn(results[i], engine), rankIn(results[j], engine)
			if ri != rj {
				return ri < rj
			}
		}
		return results[i].ID < results[j].ID
	})

	// Contribution order inside each result is normalized too.
	for idx := range results {
		contribs := results[idx].Contributions
		sort.Slice(contribs, func(i, j int) bool {
			return contribs[i].Engine < contribs[j].Engine
		})
	}
}

// sortedEngines returns the engine names in sorted order. Accumulating the
// weighted terms in a fixed engine order keeps the float sums bit-identical
// across calls; summing in map-iteration order would not, since float
// addition is not associative.
func sortedEngines(lists map[string][]Candidate) []string {
	engines := make([]string, 0, len(lists))
	for e := range lists {
		engines = append(engines, e)
	}
	sort.Strings(engines)
	return engines
}

func ensure(merged map[string]*FusedResult, id string) *FusedResult {
	fr, ok := merged[id]
	if !ok {
		fr = &FusedResult{ID: id}
		merged[id] = fr
	}
	return fr
}

// minMaxNormalize maps one engine's raw scores into [0,1]. A degenerate list
// where every score is equal normalizes to 1.0: within that engine each hit
// is equally the best.
func minMaxNormalize(candidates []Candidate) []float64 {
	norms := make([]float64, len(candidates))
	if len(candidates) == 0 {
		return norms
	}
	lo, hi := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		lo = math.Min(lo, c.Score)
		hi = math.Max(hi, c.Score)
	}
	span := hi - lo
	for i, c := range candidates {
		if span == 0 {
			norms[i] = 1.0
			continue
		}
		norms[i] = (c.Score - lo) / span
	}
	return norms
}
