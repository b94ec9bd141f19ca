package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/metrics"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

// KafkaPublisher writes offramp lifecycle events, one writer per topic.
type KafkaPublisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

func (p *KafkaPublisher) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(p.brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		}
		p.writers[topic] = w
	}
	return w
}

// Publish keys messages by correlation id (the session id) so every event
// of one session lands on the same partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event *Event) (err error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx, span := telemetry.StartProducerSpan(ctx, topic, event.EventType)
	span.SetAttributes(attribute.String("messaging.message.id", event.EventID))
	defer func() {
		metrics.RecordKafkaMessageProduced(topic, err)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.EventType, err)
	}

	msg := kafka.Message{Key: []byte(event.partitionKey()), Value: body}
	telemetry.InjectTraceContext(ctx, &msg.Headers)

	if err := p.writer(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType, topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close writer %s: %w", topic, err)
		}
	}
	return firstErr
}

// KafkaSubscriber follows offramp topics for the CLI's events command. Each
// Subscribe call owns one reader.
type KafkaSubscriber struct {
	brokers     []string
	groupID     string
	startOffset int64
	readers     []*kafka.Reader
}

func NewKafkaSubscriber(brokers []string, groupID string) *KafkaSubscriber {
	return &KafkaSubscriber{brokers: brokers, groupID: groupID}
}

// StartAtLatest makes a new consumer group skip retained messages.
func (s *KafkaSubscriber) StartAtLatest() *KafkaSubscriber {
	s.startOffset = kafka.LastOffset
	return s
}

// Subscribe reads topic until ctx ends. Undecodable messages are skipped and
// handler errors are recorded on the message span only.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, topic string, handler func(*Event) error) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.brokers,
		Topic:       topic,
		GroupID:     s.groupID,
		StartOffset: s.startOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	s.readers = append(s.readers, reader)

	go s.consume(ctx, reader, handler)
	return nil
}

func (s *KafkaSubscriber) consume(ctx context.Context, reader *kafka.Reader, handler func(*Event) error) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn().Err(err).Str("topic", reader.Config().Topic).Msg("Failed to read event")
			continue
		}
		deliver(ctx, msg, handler)
	}
}

func deliver(ctx context.Context, msg kafka.Message, handler func(*Event) error) {
	_, span := telemetry.StartConsumerSpan(ctx, msg)
	defer span.End()

	event, err := Decode(msg.Value)
	if err != nil {
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("messaging.message.id", event.EventID),
		attribute.String("offramp.event_type", event.EventType),
	)
	if err := handler(event); err != nil {
		span.RecordError(err)
	}
}

func (s *KafkaSubscriber) Close() error {
	var firstErr error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Decode parses an event envelope; Payload is left as a generic map.
func Decode(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

var (
	_ Publisher  = (*KafkaPublisher)(nil)
	_ Subscriber = (*KafkaSubscriber)(nil)
)
