package retrieval

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecorderConfig configures the miss recorder.
type RecorderConfig struct {
	// Enabled turns miss detection on.
	Enabled bool

	// RelevanceFloor is the minimum top fused score for a retrieval to count
	// as a hit. A non-empty result whose best item scores below the floor is
	// still a miss: the engines found something, none of it is likely
	// relevant.
	RelevanceFloor float64
}

// DefaultRecorderConfig returns the default miss-recorder parameters.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Enabled:        true,
		RelevanceFloor: 0.1,
	}
}

// FailureSink persists failure events. Implementations must tolerate
// concurrent calls; errors are logged by the recorder and absorbed.
type FailureSink interface {
	AppendFailure(ctx context.Context, ev FailureEvent) error
}

// FailureEmitter broadcasts failure events to interested consumers
// (reflection pipelines, live dashboards). Emit must not block.
type FailureEmitter interface {
	EmitFailure(ev FailureEvent)
}

// recorderLogger is the minimal logger interface used by the recorder.
type recorderLogger interface {
	Warn(msg string, args ...any)
}

// Recorder detects retrieval misses and records them without ever touching
// the caller's result. Detection is synchronous and cheap; persistence and
// fan-out are fire-and-forget.
type Recorder struct {
	cfg     RecorderConfig
	sink    FailureSink
	emitter FailureEmitter
	logger  recorderLogger
	now     func() time.Time
}

// NewRecorder creates a miss recorder. sink, emitter and log may be nil.
func NewRecorder(cfg RecorderConfig, sink FailureSink, emitter FailureEmitter, log recorderLogger) *Recorder {
	if cfg.RelevanceFloor < 0 {
		cfg.RelevanceFloor = DefaultRecorderConfig().RelevanceFloor
	}
	return &Recorder{
		cfg:     cfg,
		sink:    sink,
		emitter: emitter,
		logger:  log,
		now:     time.Now,
	}
}

// Inspect examines a fused result set and returns a FailureEvent when the
// retrieval is a miss: no items at all, or a top score below the relevance
// floor. It returns nil for hits and when disabled.
//
// Results produced while every source was down are not inspected; an
// infrastructure outage says nothing about corpus coverage.
func (r *Recorder) Inspect(q Query, c Classification, profile WeightProfile, engines []string, items []FusedResult) *FailureEvent {
	if !r.cfg.Enabled {
		return nil
	}

	topScore := 0.0
	if len(items) > 0 {
		topScore = items[0].Score
		if topScore >= r.cfg.RelevanceFloor {
			return nil
		}
	}

	return &FailureEvent{
		ID:             uuid.NewString(),
		QueryText:      q.Text,
		Classification: c,
		Engines:        append([]string(nil), engines...),
		Profile:        profile.Name,
		TopScore:       topScore,
		Timestamp:      r.now().UTC(),
	}
}

// Record persists and broadcasts a failure event off the query path. Sink
// errors are logged and dropped; the retrieval that triggered the event has
// already returned.
func (r *Recorder) Record(ev FailureEvent) {
	if r.sink != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.sink.AppendFailure(ctx, ev); err != nil && r.logger != nil {
				r.logger.Warn("failed to persist failure event", "id", ev.ID, "error", err)
			}
		}()
	}
	if r.emitter != nil {
		r.emitter.EmitFailure(ev)
	}
}
