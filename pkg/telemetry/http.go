package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTracedHTTPClient returns a client for outbound calls to the offramp
// backend or chain RPC. Spans are named "<peer> <method> <path>".
func NewTracedHTTPClient(peer string, timeout time.Duration) *http.Client {
	name := func(_ string, r *http.Request) string {
		return peer + " " + r.Method + " " + r.URL.Path
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithSpanNameFormatter(name)),
	}
}
