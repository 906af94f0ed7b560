package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(MissSubject("identifier"), 4)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if err := bus.Publish(context.Background(), MissSubject("identifier"), []byte("x")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.C():
		if string(msg.Payload) != "x" {
			t.Errorf("payload = %q", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemoryBus_WildcardPatterns(t *testing.T) {
	bus := NewMemoryBus()

	all, _ := bus.Subscribe(Wildcard(), 4)
	defer all.Close()
	oneLabel, _ := bus.Subscribe(SubjectPrefix+".miss.*", 4)
	defer oneLabel.Close()

	bus.Publish(context.Background(), MissSubject("abstract"), []byte("a"))
	bus.Publish(context.Background(), RetuneSubject(), []byte("b"))

	recv := func(sub *Subscription) int {
		n := 0
		for {
			select {
			case <-sub.C():
				n++
			case <-time.After(100 * time.Millisecond):
				return n
			}
		}
	}

	if n := recv(all); n != 2 {
		t.Errorf("wildcard subscriber got %d messages, want 2", n)
	}
	if n := recv(oneLabel); n != 1 {
		t.Errorf("miss.* subscriber got %d messages, want 1", n)
	}
}

func TestMemoryBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewMemoryBus()
	sub, _ := bus.Subscribe(Wildcard(), 1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(context.Background(), RetuneSubject(), []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBuildEnvelope_Validation(t *testing.T) {
	if _, err := BuildEnvelope("", SchemaVersionV1, "node-1", 1, nil); err == nil {
		t.Error("empty event type accepted")
	}
	if _, err := BuildEnvelope(EventRetrievalMiss, SchemaVersionV1, "", 1, nil); err == nil {
		t.Error("empty source accepted")
	}
	if _, err := BuildEnvelope(EventRetrievalMiss, SchemaVersionV1, "node-1", 0, nil); err == nil {
		t.Error("zero sequence accepted")
	}

	env, err := BuildEnvelope(EventRetrievalMiss, "", "node-1", 7, map[string]string{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}
	if env.EventID == "" || env.SchemaVersion != SchemaVersionV1 || env.Sequence != 7 {
		t.Errorf("envelope not populated: %+v", env)
	}
}

type flakyTransport struct {
	mu       sync.Mutex
	failures int
	sent     [][]byte
	subjects []string
}

func (f *flakyTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("transport down")
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	f.subjects = append(f.subjects, subject)
	return nil
}

func TestPublisher_RetriesThenSucceeds(t *testing.T) {
	transport := &flakyTransport{failures: 2}
	retry := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, BackoffFactor: 2}
	p, err := NewPublisher("node-1", transport, retry, nil)
	if err != nil {
		t.Fatal(err)
	}

	env, err := p.publish(context.Background(), RetuneSubject(), EventPolicyRetune, map[string]float64{"vector": 0.8})
	if err != nil {
		t.Fatal(err)
	}
	if p.Degraded() {
		t.Error("publisher degraded after successful publish")
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.sent) != 1 {
		t.Fatalf("transport received %d messages, want 1", len(transport.sent))
	}
	var decoded Envelope
	if err := json.Unmarshal(transport.sent[0], &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.EventID != env.EventID || decoded.EventType != EventPolicyRetune {
		t.Errorf("wire envelope mismatch: %+v", decoded)
	}
}

func TestPublisher_DegradedAfterExhaustedRetries(t *testing.T) {
	transport := &flakyTransport{failures: 100}
	retry := RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2}
	p, err := NewPublisher("node-1", transport, retry, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.publish(context.Background(), RetuneSubject(), EventPolicyRetune, nil); err == nil {
		t.Fatal("expected publish failure")
	}
	if !p.Degraded() {
		t.Error("publisher not marked degraded")
	}
}

func TestPublisher_EmitFailureDeliversMissEvent(t *testing.T) {
	bus := NewMemoryBus()
	sub, _ := bus.Subscribe(SubjectPrefix+".miss.>", 4)
	defer sub.Close()

	p, err := NewPublisher("node-1", bus, DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	p.EmitFailure(retrieval.FailureEvent{
		ID:             "ev-1",
		QueryText:      "uncovered topic",
		Classification: retrieval.Classification{Label: retrieval.LabelAbstract},
	})

	select {
	case msg := <-sub.C():
		var env Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			t.Fatal(err)
		}
		if env.EventType != EventRetrievalMiss {
			t.Errorf("event type = %s", env.EventType)
		}
		var ev retrieval.FailureEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.ID != "ev-1" {
			t.Errorf("failure event id = %s", ev.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("miss event not delivered")
	}
}
