package retrieval

import (
	"context"
	"math"
	"sync"
	"time"
)

// TunerConfig configures the adaptive weight tuner.
type TunerConfig struct {
	// Enabled turns background retuning on.
	Enabled bool

	// PriorAlpha and PriorBeta are the Beta prior pseudo-counts per engine
	// (successes and failures). They keep early posteriors conservative.
	PriorAlpha float64
	PriorBeta  float64

	// Decay multiplies all counts at each retune so stale feedback fades
	// and the tuner tracks non-stationary query distributions instead of
	// converging permanently. Must be in (0, 1].
	Decay float64

	// Interval is the background retune cadence.
	Interval time.Duration

	// RetuneAfter triggers an off-schedule retune once this many feedback
	// events have accumulated. Zero disables the batch trigger.
	RetuneAfter int

	// MinWeight floors every engine's tuned weight so no engine is ever
	// starved of exploration traffic.
	MinWeight float64
}

// DefaultTunerConfig returns the default tuner parameters.
func DefaultTunerConfig() TunerConfig {
	return TunerConfig{
		Enabled:     true,
		PriorAlpha:  1.0,
		PriorBeta:   1.0,
		Decay:       0.98,
		Interval:    30 * time.Second,
		RetuneAfter: 32,
		MinWeight:   0.05,
	}
}

// BanditState is the tuner's posterior: per-engine success mass and trial
// counts. Counts are non-negative and only grow, except for the
// multiplicative decay applied at each retune. The tuner owns the state
// exclusively; State returns a copy.
type BanditState struct {
	Successes    map[string]float64 `json:"successes"`
	Trials       map[string]float64 `json:"trials"`
	Observations uint64             `json:"observations"`
	LastRetune   time.Time          `json:"last_retune"`
}

func (s BanditState) clone() BanditState {
	out := BanditState{
		Successes:    make(map[string]float64, len(s.Successes)),
		Trials:       make(map[string]float64, len(s.Trials)),
		Observations: s.Observations,
		LastRetune:   s.LastRetune,
	}
	for k, v := range s.Successes {
		out.Successes[k] = v
	}
	for k, v := range s.Trials {
		out.Trials[k] = v
	}
	return out
}

// StateStore persists bandit state across restarts. Implementations live
// outside the hot path; persistence failures are logged and absorbed.
type StateStore interface {
	SaveBanditState(ctx context.Context, state BanditState) error
	LoadBanditState(ctx context.Context) (*BanditState, error)
}

// tunerLogger is the minimal logger interface used by the tuner.
type tunerLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopTunerLogger struct{}

func (nopTunerLogger) Info(msg string, args ...any)  {}
func (nopTunerLogger) Warn(msg string, args ...any)  {}
func (nopTunerLogger) Error(msg string, args ...any) {}

// TunerObserver receives tuner lifecycle notifications for metrics.
type TunerObserver interface {
	RetuneCompleted(weights map[string]float64)
}

// Tuner is the online learner that adapts the tuned weight profile from
// explicit relevance feedback and miss events. It maintains per-engine
// posterior counts; Retune derives weights from posterior means and
// publishes them through the policy store's atomic update. It never runs
// inside the query path.
type Tuner struct {
	cfg      TunerConfig
	engines  []string
	policy   *PolicyStore
	store    StateStore
	observer TunerObserver
	logger   tunerLogger

	mu      sync.Mutex
	state   BanditState
	pending int

	kick chan struct{}
	done chan struct{}
	stop sync.Once
}

// NewTuner creates a tuner for the given engines. store and observer may be
// nil.
func NewTuner(cfg TunerConfig, engines []string, policy *PolicyStore, store StateStore, log tunerLogger) *Tuner {
	if log == nil {
		log = nopTunerLogger{}
	}
	if cfg.PriorAlpha <= 0 {
		cfg.PriorAlpha = DefaultTunerConfig().PriorAlpha
	}
	if cfg.PriorBeta <= 0 {
		cfg.PriorBeta = DefaultTunerConfig().PriorBeta
	}
	if cfg.Decay <= 0 || cfg.Decay > 1 {
		cfg.Decay = DefaultTunerConfig().Decay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTunerConfig().Interval
	}
	if cfg.MinWeight <= 0 {
		cfg.MinWeight = DefaultTunerConfig().MinWeight
	}

	t := &Tuner{
		cfg:     cfg,
		engines: append([]string(nil), engines...),
		policy:  policy,
		store:   store,
		logger:  log,
		state: BanditState{
			Successes: make(map[string]float64, len(engines)),
			Trials:    make(map[string]float64, len(engines)),
		},
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	return t
}

// SetObserver attaches a metrics observer. Must be called before Start.
func (t *Tuner) SetObserver(obs TunerObserver) { t.observer = obs }

// Observe records an explicit relevance signal. A relevant item credits its
// contributing engines with a reciprocal-rank reward; an irrelevant item
// records a trial without success. Cheap and non-blocking; safe from any
// goroutine.
func (t *Tuner) Observe(fb Feedback) {
	rank := fb.Rank
	if rank <= 0 {
		rank = 1
	}
	reward := 0.0
	if fb.Relevant {
		reward = 1.0 / float64(rank)
	}

	t.mu.Lock()
	for _, engine := range fb.Engines {
		t.state.Trials[engine]++
		if reward > 0 {
			t.state.Successes[engine] += reward
		}
	}
	t.state.Observations++
	t.pending++
	trigger := t.cfg.RetuneAfter > 0 && t.pending >= t.cfg.RetuneAfter
	t.mu.Unlock()

	if trigger {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
}

// ObserveFailure records a miss as a negative signal against every engine
// that was queried under the profile in effect.
func (t *Tuner) ObserveFailure(ev FailureEvent) {
	t.mu.Lock()
	for _, engine := range ev.Engines {
		t.state.Trials[engine]++
	}
	t.state.Observations++
	t.pending++
	t.mu.Unlock()
}

// Retune decays the posterior counts, derives per-engine weights from the
// posterior means and publishes the tuned profile atomically. It is safe to
// call directly; the background loop calls it on cadence and after feedback
// batches.
func (t *Tuner) Retune() {
	t.mu.Lock()
	for engine := range t.state.Trials {
		t.state.Trials[engine] *= t.cfg.Decay
	}
	for engine := range t.state.Successes {
		t.state.Successes[engine] *= t.cfg.Decay
	}

	weights := make(map[string]float64, len(t.engines))
	for _, engine := range t.engines {
		s := t.state.Successes[engine]
		n := t.state.Trials[engine]
		mean := (t.cfg.PriorAlpha + s) / (t.cfg.PriorAlpha + t.cfg.PriorBeta + n)
		weights[engine] = math.Max(t.cfg.MinWeight, mean)
	}
	t.state.LastRetune = time.Now().UTC()
	t.pending = 0
	snapshot := t.state.clone()
	t.mu.Unlock()

	if err := t.policy.UpdateTuned(WeightProfile{Strategy: StrategyRRF, Weights: weights}); err != nil {
		// The policy store kept its last known-good snapshot; the read path
		// is unaffected.
		t.logger.Error("tuned profile rejected", "error", err)
		return
	}
	if t.observer != nil {
		t.observer.RetuneCompleted(weights)
	}
	t.logger.Info("retuned weight profile", "weights", weights, "observations", snapshot.Observations)

	if t.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.store.SaveBanditState(ctx, snapshot); err != nil {
			t.logger.Warn("failed to persist bandit state", "error", err)
		}
	}
}

// State returns a read-only copy of the posterior.
func (t *Tuner) State() BanditState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Start restores persisted state and runs the background retune loop until
// ctx is cancelled or Stop is called. Background failures never reach the
// query path: at worst the tuned profile stops updating while the
// deterministic profiles remain available.
func (t *Tuner) Start(ctx context.Context) {
	if !t.cfg.Enabled {
		return
	}

	if t.store != nil {
		if saved, err := t.store.LoadBanditState(ctx); err != nil {
			t.logger.Warn("failed to restore bandit state", "error", err)
		} else if saved != nil {
			t.mu.Lock()
			t.state = saved.clone()
			t.mu.Unlock()
			t.logger.Info("restored bandit state", "observations", saved.Observations)
		}
	}

	go func() {
		ticker := time.NewTicker(t.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case <-ticker.C:
				t.Retune()
			case <-t.kick:
				t.Retune()
			}
		}
	}()
}

// Stop terminates the background loop.
func (t *Tuner) Stop() {
	t.stop.Do(func() { close(t.done) })
}
