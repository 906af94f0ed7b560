package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the current retrieval event schema.
	SchemaVersionV1 = "v1"
)

// Retrieval event types.
const (
	EventRetrievalMiss = "retrieval.miss"
	EventPolicyRetune  = "policy.retune"
)

// Envelope wraps one retrieval lifecycle event for the wire.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Source        string          `json:"source"`
	Sequence      int64           `json:"sequence"`
	Payload       json.RawMessage `json:"payload"`
}

// BuildEnvelope creates an envelope with generated event identity.
func BuildEnvelope(eventType, schemaVersion, source string, sequence int64, payload any) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, fmt.Errorf("eventbus: event type is required")
	}
	if source == "" {
		return Envelope{}, fmt.Errorf("eventbus: source is required")
	}
	if sequence <= 0 {
		return Envelope{}, fmt.Errorf("eventbus: sequence must be > 0")
	}
	if schemaVersion == "" {
		schemaVersion = SchemaVersionV1
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal payload: %w", err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Source:        source,
		Sequence:      sequence,
		Payload:       body,
	}, nil
}
