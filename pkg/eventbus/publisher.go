package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

// Transport publishes bytes to a subject.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Telemetry records publisher health.
type Telemetry interface {
	RecordPublish(status string)
	RecordRetry()
	SetDegradedMode(active bool)
}

type nopTelemetry struct{}

func (nopTelemetry) RecordPublish(status string) {}
func (nopTelemetry) RecordRetry()                {}
func (nopTelemetry) SetDegradedMode(active bool) {}

// RetryConfig controls retry/backoff for publish attempts.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2,
	}
}

// Publisher publishes retrieval lifecycle events with retry and degraded-mode
// tracking. It implements retrieval.FailureEmitter and
// retrieval.TunerObserver, so it plugs directly into the recorder and tuner.
type Publisher struct {
	transport Transport
	source    string
	retry     RetryConfig
	telemetry Telemetry

	mu       sync.Mutex
	sequence int64
	degraded bool
}

// NewPublisher creates a retrieval event publisher. source identifies the
// publishing node in envelopes.
func NewPublisher(source string, transport Transport, retry RetryConfig, telemetry Telemetry) (*Publisher, error) {
	if source == "" {
		return nil, fmt.Errorf("eventbus: source cannot be empty")
	}
	if transport == nil {
		return nil, fmt.Errorf("eventbus: transport cannot be nil")
	}
	if retry.MaxRetries < 0 {
		return nil, fmt.Errorf("eventbus: max retries cannot be negative")
	}
	if retry.InitialBackoff <= 0 || retry.MaxBackoff <= 0 || retry.BackoffFactor < 1 {
		return nil, fmt.Errorf("eventbus: invalid retry config")
	}
	if telemetry == nil {
		telemetry = nopTelemetry{}
	}
	return &Publisher{
		transport: transport,
		source:    source,
		retry:     retry,
		telemetry: telemetry,
	}, nil
}

// EmitFailure implements retrieval.FailureEmitter. It publishes the miss in
// the background: the recorder must never wait on the bus.
func (p *Publisher) EmitFailure(ev retrieval.FailureEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = p.publish(ctx, MissSubject(string(ev.Classification.Label)), EventRetrievalMiss, ev)
	}()
}

// RetuneCompleted implements retrieval.TunerObserver.
func (p *Publisher) RetuneCompleted(weights map[string]float64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = p.publish(ctx, RetuneSubject(), EventPolicyRetune, weights)
	}()
}

// Degraded reports whether the last publish attempt exhausted its retries.
func (p *Publisher) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func (p *Publisher) publish(ctx context.Context, subject, eventType string, payload any) (Envelope, error) {
	envelope, err := BuildEnvelope(eventType, SchemaVersionV1, p.source, p.nextSequence(), payload)
	if err != nil {
		return Envelope{}, err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	backoff := p.retry.InitialBackoff
	var publishErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		publishErr = p.transport.Publish(ctx, subject, body)
		if publishErr == nil {
			p.telemetry.RecordPublish("success")
			p.setDegraded(false)
			return envelope, nil
		}
		if attempt == p.retry.MaxRetries {
			break
		}
		p.telemetry.RecordRetry()

		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, p.retry.MaxBackoff, p.retry.BackoffFactor)
	}

	p.telemetry.RecordPublish("failed")
	p.setDegraded(true)
	return Envelope{}, fmt.Errorf("eventbus: publish failed: %w", publishErr)
}

func (p *Publisher) nextSequence() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequence++
	return p.sequence
}

func (p *Publisher) setDegraded(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.degraded == active {
		return
	}
	p.degraded = active
	p.telemetry.SetDegradedMode(active)
}

func nextBackoff(current, max time.Duration, factor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
