// Package integration drives a running offramp stack: the service, the
// offramp backend mock and the chain RPC mock. Tests skip when the stack is
// not up, so `go test ./...` stays usable without docker compose.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Endpoints are the base URLs of the stack under test.
type Endpoints struct {
	Service string
	Backend string
	Chain   string
}

func endpointsFromEnv() Endpoints {
	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	return Endpoints{
		Service: env("OFFRAMP_SERVICE_URL", "http://localhost:8080"),
		Backend: env("OFFRAMP_BACKEND_MOCK_URL", "http://localhost:5500"),
		Chain:   env("CHAIN_MOCK_URL", "http://localhost:8888"),
	}
}

type Harness struct {
	t      *testing.T
	urls   Endpoints
	client *http.Client
}

func NewHarness(t *testing.T) *Harness {
	return &Harness{t: t, urls: endpointsFromEnv(), client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *Harness) URLs() Endpoints {
	return h.urls
}

// Request is one JSON call. Token, when set, is sent as a session bearer.
type Request struct {
	Method string
	URL    string
	Body   any
	Token  string
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

func (h *Harness) Do(req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequest(req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// admin posts to a mock's test-only endpoint and expects 200.
func (h *Harness) admin(base, path string, body any) error {
	resp, err := h.Do(Request{Method: http.MethodPost, URL: base + "/admin" + path, Body: body})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin %s: status %d: %s", path, resp.StatusCode, resp.Body)
	}
	return nil
}

// ResetBackend forgets requests, recipient wallets and executions.
func (h *Harness) ResetBackend() error { return h.admin(h.urls.Backend, "/reset", nil) }

// ResetChain forgets every transaction the chain mock has seen.
func (h *Harness) ResetChain() error { return h.admin(h.urls.Chain, "/reset", nil) }

func (h *Harness) ResetAll() error {
	if err := h.ResetBackend(); err != nil {
		return err
	}
	return h.ResetChain()
}

// SetStatus moves an execution to a provider status on the backend mock.
func (h *Harness) SetStatus(referenceID, status string) error {
	return h.admin(h.urls.Backend, "/status/"+referenceID, map[string]string{"status": status})
}

// RevertTx makes the chain mock report hash as reverted once mined.
func (h *Harness) RevertTx(hash string) error {
	return h.admin(h.urls.Chain, "/revert/"+hash, nil)
}

func (h *Harness) WaitForService(timeout time.Duration) error { return h.waitHealthy(timeout, h.urls.Service) }
func (h *Harness) WaitForBackend(timeout time.Duration) error { return h.waitHealthy(timeout, h.urls.Backend) }
func (h *Harness) WaitForChain(timeout time.Duration) error   { return h.waitHealthy(timeout, h.urls.Chain) }

func (h *Harness) WaitForMocks(timeout time.Duration) error {
	return h.waitHealthy(timeout, h.urls.Backend, h.urls.Chain)
}

// waitHealthy polls GET <base>/health on every base until each answers 200
// or timeout passes.
func (h *Harness) waitHealthy(timeout time.Duration, bases ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, base := range bases {
		probe := func() error {
			resp, err := h.Do(Request{Method: http.MethodGet, URL: base + "/health"})
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s/health: status %d", base, resp.StatusCode)
			}
			return nil
		}
		b := backoff.WithContext(backoff.NewConstantBackOff(500*time.Millisecond), ctx)
		if err := backoff.Retry(probe, b); err != nil {
			return fmt.Errorf("%s not healthy: %w", base, err)
		}
	}
	return nil
}

func (h *Harness) AssertStatus(resp *Response, want int) {
	h.t.Helper()
	if resp.StatusCode != want {
		h.t.Errorf("status = %d, want %d: %s", resp.StatusCode, want, resp.Body)
	}
}

// AssertField checks a top-level field of a plain JSON body such as /health.
func (h *Harness) AssertField(resp *Response, field string, want any) {
	h.t.Helper()
	var body map[string]any
	if err := resp.JSON(&body); err != nil {
		h.t.Errorf("decode body: %v", err)
		return
	}
	if got, ok := body[field]; !ok || got != want {
		h.t.Errorf("%s = %v, want %v", field, got, want)
	}
}
