package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTo_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
		drop  []string
	}{
		{"warn", []string{"receipt timed out"}, []string{"polling status"}},
		{"debug", []string{"receipt timed out", "polling status"}, nil},
		{"not-a-level", []string{"receipt timed out", "session created"}, []string{"polling status"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			InitTo(&buf, "offramp-service", tt.level, false)
			t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

			Debug().Msg("polling status")
			Info().Msg("session created")
			Warn().Msg("receipt timed out")

			out := buf.String()
			for _, msg := range tt.want {
				if !strings.Contains(out, msg) {
					t.Errorf("missing %q in %s", msg, out)
				}
			}
			for _, msg := range tt.drop {
				if strings.Contains(out, msg) {
					t.Errorf("%q should be filtered at %s", msg, tt.level)
				}
			}
			if !strings.Contains(out, `"service":"offramp-service"`) {
				t.Errorf("service field missing: %s", out)
			}
		})
	}
}

func TestInitTo_Pretty(t *testing.T) {
	var buf bytes.Buffer
	InitTo(&buf, "offramp", "info", true)
	Error().Str("code", "TRANSFER_REVERTED").Msg("transfer failed")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("pretty output should not be JSON: %s", out)
	}
	if !strings.Contains(out, "transfer failed") || !strings.Contains(out, "TRANSFER_REVERTED") {
		t.Errorf("pretty output = %s", out)
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	InitTo(&buf, "offramp", "info", false)

	ctx := WithSession(context.Background(), "sess-1")
	ctx = WithRequestID(ctx, "req-9")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(ctx, "op")
	defer span.End()

	l := WithContext(ctx)
	l.Info().Msg("transition")

	output := buf.String()
	if !strings.Contains(output, `"session_id":"sess-1"`) {
		t.Errorf("output missing session_id: %s", output)
	}
	if !strings.Contains(output, `"request_id":"req-9"`) {
		t.Errorf("output missing request_id: %s", output)
	}
	if !strings.Contains(output, `"trace_id":"`+span.SpanContext().TraceID().String()+`"`) {
		t.Errorf("output missing trace_id: %s", output)
	}
}

func TestWithContext_Empty(t *testing.T) {
	var buf bytes.Buffer
	Logger = zerolog.New(&buf)

	l := WithContext(context.Background())
	l.Info().Msg("plain")

	if strings.Contains(buf.String(), "session_id") {
		t.Errorf("plain context should not add session_id: %s", buf.String())
	}
}
