package retrieval

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRecorder_EmptyResultIsAMiss(t *testing.T) {
	r := NewRecorder(DefaultRecorderConfig(), nil, nil, nil)
	q := Query{Text: "where is the quarterly revenue workbook"}
	c := Classification{Resonance: 0.5, Label: LabelFactual}
	profile := DefaultProfiles()[ProfileBalanced]

	ev := r.Inspect(q, c, profile, []string{EngineVector, EngineLexical}, nil)
	if ev == nil {
		t.Fatal("empty result set should produce a failure event")
	}
	if ev.TopScore != 0 {
		t.Errorf("TopScore = %v, want 0", ev.TopScore)
	}
	if ev.QueryText != q.Text || ev.Profile != ProfileBalanced {
		t.Errorf("event fields not populated: %+v", ev)
	}
	if ev.ID == "" {
		t.Error("event needs a unique ID")
	}
	if ev.Timestamp.IsZero() {
		t.Error("event needs a timestamp")
	}
}

func TestRecorder_LowTopScoreIsAMiss(t *testing.T) {
	cfg := RecorderConfig{Enabled: true, RelevanceFloor: 0.1}
	r := NewRecorder(cfg, nil, nil, nil)
	profile := DefaultProfiles()[ProfileBalanced]

	items := []FusedResult{{ID: "a", Score: 0.05}, {ID: "b", Score: 0.01}}
	ev := r.Inspect(Query{Text: "q"}, Classification{}, profile, []string{EngineVector}, items)
	if ev == nil {
		t.Fatal("top score below the relevance floor should produce a failure event")
	}
	if !almostEqual(ev.TopScore, 0.05) {
		t.Errorf("TopScore = %v, want 0.05", ev.TopScore)
	}
}

func TestRecorder_HitAboveFloor(t *testing.T) {
	cfg := RecorderConfig{Enabled: true, RelevanceFloor: 0.1}
	r := NewRecorder(cfg, nil, nil, nil)
	profile := DefaultProfiles()[ProfileBalanced]

	items := []FusedResult{{ID: "a", Score: 0.4}}
	if ev := r.Inspect(Query{Text: "q"}, Classification{}, profile, []string{EngineVector}, items); ev != nil {
		t.Errorf("hit above the floor flagged as miss: %+v", ev)
	}
}

func TestRecorder_Disabled(t *testing.T) {
	r := NewRecorder(RecorderConfig{Enabled: false, RelevanceFloor: 0.1}, nil, nil, nil)
	profile := DefaultProfiles()[ProfileBalanced]

	if ev := r.Inspect(Query{Text: "q"}, Classification{}, profile, nil, nil); ev != nil {
		t.Error("disabled recorder still produced events")
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []FailureEvent
}

func (c *captureSink) AppendFailure(ctx context.Context, ev FailureEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []FailureEvent
}

func (c *captureEmitter) EmitFailure(ev FailureEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestRecorder_RecordFansOut(t *testing.T) {
	sink := &captureSink{}
	emitter := &captureEmitter{}
	r := NewRecorder(DefaultRecorderConfig(), sink, emitter, nil)

	ev := FailureEvent{ID: "ev-1", QueryText: "q", Timestamp: time.Now()}
	r.Record(ev)

	emitter.mu.Lock()
	emitted := len(emitter.events)
	emitter.mu.Unlock()
	if emitted != 1 {
		t.Fatalf("emitter received %d events, want 1", emitted)
	}

	// Persistence is fire-and-forget; give the goroutine a moment.
	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("sink received %d events, want 1", sink.count())
	}
}
