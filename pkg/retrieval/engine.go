package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// EngineConfig configures the retrieval orchestrator.
type EngineConfig struct {
	// DefaultLimit is the fused result count when the caller passes none.
	DefaultLimit int

	// MaxLimit caps the caller-supplied limit.
	MaxLimit int

	// CandidateMultiplier scales the per-source fetch limit relative to the
	// fused limit so fusion has enough overlap to work with.
	CandidateMultiplier int

	// SourceTimeout bounds each individual source fetch. Zero disables the
	// per-source timeout; the caller's ctx still applies.
	SourceTimeout time.Duration
}

// DefaultEngineConfig returns the default orchestrator parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:        10,
		MaxLimit:            100,
		CandidateMultiplier: 3,
		SourceTimeout:       2 * time.Second,
	}
}

// ResultCache caches fused results keyed by query and options. Get misses
// and Set failures must be silent: the cache is an accelerator, never a
// dependency.
type ResultCache interface {
	Get(ctx context.Context, q Query, opts Options) (*Result, bool)
	Set(ctx context.Context, q Query, opts Options, res Result)
}

// Observer receives retrieval telemetry. All methods are called synchronously
// on the query path and must be cheap.
type Observer interface {
	QueryCompleted(status Status, label Label, profile string, duration time.Duration, results int)
	SourceFailed(engine string)
	SourceSkipped(engine string)
	MissDetected(label Label)
	TopScore(score float64)
	CacheLookup(hit bool)
}

type nopObserver struct{}

func (nopObserver) QueryCompleted(Status, Label, string, time.Duration, int) {}
func (nopObserver) SourceFailed(string)                                      {}
func (nopObserver) SourceSkipped(string)                                     {}
func (nopObserver) MissDetected(Label)                                       {}
func (nopObserver) TopScore(float64)                                         {}
func (nopObserver) CacheLookup(bool)                                         {}

// engineLogger is the minimal logger interface used by the orchestrator.
type engineLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopEngineLogger struct{}

func (nopEngineLogger) Debug(msg string, args ...any) {}
func (nopEngineLogger) Info(msg string, args ...any)  {}
func (nopEngineLogger) Warn(msg string, args ...any)  {}
func (nopEngineLogger) Error(msg string, args ...any) {}

// Engine orchestrates one retrieval round trip: classify, select a weight
// profile, fan out to the candidate sources, fuse, inspect for misses.
// Sources fail open; only a total outage surfaces as an error.
type Engine struct {
	cfg        EngineConfig
	classifier *Classifier
	policy     *PolicyStore
	fuser      *Fuser
	guard      *Guard
	recorder   *Recorder
	tuner      *Tuner
	cache      ResultCache
	observer   Observer
	logger     engineLogger

	immediate []Source
	deferred  []Source
}

// EngineDeps carries the orchestrator's collaborators. Classifier, policy,
// fuser and guard are required; the rest may be nil.
type EngineDeps struct {
	Classifier *Classifier
	Policy     *PolicyStore
	Fuser      *Fuser
	Guard      *Guard
	Recorder   *Recorder
	Tuner      *Tuner
	Cache      ResultCache
	Observer   Observer
	Logger     engineLogger
}

// NewEngine creates the retrieval orchestrator over the given sources.
// Source order within each tier is preserved for fan-out but has no effect
// on fusion, which is order-independent.
func NewEngine(cfg EngineConfig, sources []Source, deps EngineDeps) (*Engine, error) {
	if deps.Classifier == nil || deps.Policy == nil || deps.Fuser == nil || deps.Guard == nil {
		return nil, fmt.Errorf("retrieval: classifier, policy, fuser and guard are required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("retrieval: at least one source is required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultEngineConfig().DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultEngineConfig().MaxLimit
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultEngineConfig().CandidateMultiplier
	}

	e := &Engine{
		cfg:        cfg,
		classifier: deps.Classifier,
		policy:     deps.Policy,
		fuser:      deps.Fuser,
		guard:      deps.Guard,
		recorder:   deps.Recorder,
		tuner:      deps.Tuner,
		cache:      deps.Cache,
		observer:   deps.Observer,
		logger:     deps.Logger,
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	if e.logger == nil {
		e.logger = nopEngineLogger{}
	}

	for _, src := range sources {
		if src.Deferred() {
			e.deferred = append(e.deferred, src)
		} else {
			e.immediate = append(e.immediate, src)
		}
	}
	return e, nil
}

// Retrieve runs one fused retrieval. Individual source failures degrade the
// result instead of failing the call; only when every queried source fails
// does Retrieve return an AllSourcesUnavailableError alongside a Result with
// StatusUnavailable, so callers can tell an outage from a zero-match.
func (e *Engine) Retrieve(ctx context.Context, q Query, opts Options) (Result, error) {
	started := time.Now()

	if q.Text == "" && len(q.Filters) == 0 {
		return Result{}, ErrInvalidQuery
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	opts.Limit = limit

	classification := e.classifier.Classify(q.Text)

	profile, err := e.selectProfile(classification, opts)
	if err != nil {
		return Result{}, err
	}

	if e.cache != nil && !opts.BypassCache {
		if cached, ok := e.cache.Get(ctx, q, opts); ok {
			e.observer.CacheLookup(true)
			e.observer.QueryCompleted(cached.Status, cached.Classification.Label, cached.Profile, time.Since(started), len(cached.Items))
			return *cached, nil
		}
		e.observer.CacheLookup(false)
	}

	fetchLimit := limit * e.cfg.CandidateMultiplier

	lists := make(map[string][]Candidate, len(e.immediate)+len(e.deferred))
	var failures []*SourceUnavailableError
	var queried []string

	collect := func(outcomes []fetchOutcome) {
		for _, out := range outcomes {
			queried = append(queried, out.engine)
			if out.failure != nil {
				failures = append(failures, out.failure)
				e.observer.SourceFailed(out.engine)
				continue
			}
			lists[out.engine] = out.candidates
		}
	}

	collect(e.fanOut(ctx, e.immediate, q, fetchLimit))

	// Confidence gate: a narrow, high-scoring primary result reroutes to the
	// lexical-first profile even when the label chose something else. A
	// forced profile is never overridden.
	if opts.ForceProfile == "" && e.guard.ConfidentPrimary(lists, profile) {
		if override, perr := e.policy.ProfileNamed(ProfileLexicalFirst); perr == nil && override.Name != profile.Name {
			e.logger.Debug("confidence gate: promoting lexical-first profile",
				"label", classification.Label, "from", profile.Name)
			profile = override
		}
	}

	var skipped []string
	if len(e.deferred) > 0 {
		if e.guard.ShouldSkip(lists, classification, profile) {
			for _, src := range e.deferred {
				skipped = append(skipped, src.Name())
				e.observer.SourceSkipped(src.Name())
			}
			e.logger.Debug("early exit: deferred sources skipped",
				"label", classification.Label, "skipped", skipped)
		} else {
			collect(e.fanOut(ctx, e.deferred, q, fetchLimit))
		}
	}

	res := Result{
		Status:         StatusNormal,
		Classification: classification,
		Profile:        profile.Name,
		SkippedSources: skipped,
	}
	for _, f := range failures {
		res.FailedSources = append(res.FailedSources, f.Engine)
	}
	sort.Strings(res.FailedSources)

	if len(failures) == len(queried) && len(queried) > 0 {
		res.Status = StatusUnavailable
		err := &AllSourcesUnavailableError{Failures: failures}
		e.logger.Error("retrieval unavailable", "query_len", len(q.Text), "error", err)
		e.observer.QueryCompleted(res.Status, classification.Label, profile.Name, time.Since(started), 0)
		return res, err
	}
	if len(failures) > 0 {
		res.Status = StatusDegraded
	}

	fused := e.fuser.Fuse(lists, profile)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	res.Items = fused
	if len(fused) > 0 {
		e.observer.TopScore(fused[0].Score)
	}

	if e.recorder != nil {
		if ev := e.recorder.Inspect(q, classification, profile, queried, fused); ev != nil {
			res.Miss = true
			e.recorder.Record(*ev)
			if e.tuner != nil {
				e.tuner.ObserveFailure(*ev)
			}
			e.observer.MissDetected(classification.Label)
		}
	}

	if e.cache != nil && !opts.BypassCache && res.Status == StatusNormal && !res.Miss {
		e.cache.Set(ctx, q, opts, res)
	}

	e.observer.QueryCompleted(res.Status, classification.Label, profile.Name, time.Since(started), len(fused))
	return res, nil
}

// SubmitFeedback forwards an explicit relevance signal to the tuner.
func (e *Engine) SubmitFeedback(fb Feedback) error {
	if fb.ItemID == "" {
		return fmt.Errorf("retrieval: feedback requires an item id")
	}
	if len(fb.Engines) == 0 {
		return fmt.Errorf("retrieval: feedback requires contributing engines")
	}
	if e.tuner != nil {
		e.tuner.Observe(fb)
	}
	return nil
}

// Classify exposes the classifier for the observability surface.
func (e *Engine) Classify(text string) Classification {
	return e.classifier.Classify(text)
}

// PolicySnapshot returns a copy of every weight profile currently in effect.
func (e *Engine) PolicySnapshot() map[string]WeightProfile {
	return e.policy.Snapshot()
}

// BanditState returns the tuner's posterior, or a zero state when tuning is
// not wired.
func (e *Engine) BanditState() BanditState {
	if e.tuner == nil {
		return BanditState{}
	}
	return e.tuner.State()
}

// selectProfile resolves the weight profile for this call: a forced override
// when requested, otherwise the policy store's choice for the label.
func (e *Engine) selectProfile(c Classification, opts Options) (WeightProfile, error) {
	if opts.ForceProfile != "" {
		return e.policy.ProfileNamed(opts.ForceProfile)
	}
	return e.policy.ProfileFor(c), nil
}

// fanOut queries the given sources concurrently and waits for all of them.
// Each fetch runs under its own timeout via guardedFetch.
func (e *Engine) fanOut(ctx context.Context, sources []Source, q Query, limit int) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(sources))
	done := make(chan int, len(sources))

	for i, src := range sources {
		go func(i int, src Source) {
			outcomes[i] = guardedFetch(ctx, src, q, limit, e.cfg.SourceTimeout, e.logger)
			done <- i
		}(i, src)
	}
	for range sources {
		<-done
	}
	return outcomes
}
