package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents the standard event envelope for all Kafka messages.
//
// Topic Naming Convention:
//
//	offramp.<domain>.<action>
//
// Event types carry a version suffix ("session.transition.v1"); a breaking
// payload change needs a new version.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	OccurredAt    time.Time         `json:"occurred_at"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Source        string            `json:"source"`
	Payload       any               `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, payload any) *Event {
	return &Event{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Source:     source,
		Payload:    payload,
		Metadata:   make(map[string]string),
	}
}

// WithCorrelationID sets the correlation ID, the offramp session id.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) partitionKey() string {
	if e.CorrelationID != "" {
		return e.CorrelationID
	}
	return e.EventID
}

func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

const (
	// TopicSessionTransition is published on every session state change.
	// Payload: SessionTransitionPayload
	TopicSessionTransition = "offramp.sessions.transition"

	// TopicTransferSubmitted is published when a transfer hash is known.
	// Payload: TransferSubmittedPayload
	TopicTransferSubmitted = "offramp.transfers.submitted"

	// TopicStatusChanged is published when the poller sees a new provider status.
	// Payload: StatusChangedPayload
	TopicStatusChanged = "offramp.status.changed"
)

var AllTopics = []string{
	TopicSessionTransition,
	TopicTransferSubmitted,
	TopicStatusChanged,
}

const (
	EventTypeSessionTransition = "session.transition.v1"
	EventTypeTransferSubmitted = "transfer.submitted.v1"
	EventTypeStatusChanged     = "status.changed.v1"
)

// Publisher publishes events to Kafka topics
type Publisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// Subscriber consumes events from Kafka topics
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(*Event) error) error
	Close() error
}

// NoopPublisher drops every event. Used when kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, *Event) error { return nil }
func (NoopPublisher) Close() error                                   { return nil }

type Published struct {
	Topic string
	Event *Event
}

// MemoryPublisher records events in order.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Published
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (m *MemoryPublisher) Publish(_ context.Context, topic string, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Published{Topic: topic, Event: event})
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

func (m *MemoryPublisher) Events() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.events))
	copy(out, m.events)
	return out
}

// Topic returns the events published to one topic.
func (m *MemoryPublisher) Topic(topic string) []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, p := range m.events {
		if p.Topic == topic {
			out = append(out, p.Event)
		}
	}
	return out
}

var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*MemoryPublisher)(nil)
)
