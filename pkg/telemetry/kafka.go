package telemetry

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// headerCarrier lets the otel propagator read and write Kafka headers in place.
type headerCarrier []kafka.Header

func (h *headerCarrier) Get(key string) string {
	for _, hd := range *h {
		if hd.Key == key {
			return string(hd.Value)
		}
	}
	return ""
}

func (h *headerCarrier) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*h))
	for _, hd := range *h {
		keys = append(keys, hd.Key)
	}
	return keys
}

// InjectTraceContext writes the span context of ctx into headers so a
// consumer of the offramp event joins the session's trace.
func InjectTraceContext(ctx context.Context, headers *[]kafka.Header) {
	c := headerCarrier(*headers)
	otel.GetTextMapPropagator().Inject(ctx, &c)
	*headers = c
}

func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	c := headerCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, &c)
}

// StartProducerSpan starts a span for publishing an offramp lifecycle event.
func StartProducerSpan(ctx context.Context, topic, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(append(messagingAttrs(topic, "publish"),
			attribute.String("offramp.event_type", eventType))...),
	)
}

// StartConsumerSpan starts a span for one received message, parented on the
// trace context carried in msg's headers.
func StartConsumerSpan(ctx context.Context, msg kafka.Message) (context.Context, trace.Span) {
	ctx = ExtractTraceContext(ctx, msg.Headers)
	return otel.Tracer(instrumentationName).Start(ctx, msg.Topic+" receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(append(messagingAttrs(msg.Topic, "receive"),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset))...),
	)
}

func messagingAttrs(topic, op string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", topic),
		attribute.String("messaging.operation", op),
	}
}
