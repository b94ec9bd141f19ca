package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/metrics"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

const DefaultBaseURL = "http://localhost:5500/v1/offramps"

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// HTTPClient overrides the traced default client, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to the offramp backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewClient(cfg *Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = telemetry.NewTracedHTTPClient("offramp-backend", timeout)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// errorMessage pulls a human readable message out of an error body, which
// the backend sends either as {"message": "..."} or {"error": {"message": "..."}}.
func (e envelope) errorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Error) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(e.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &obj) == nil {
		return obj.Message
	}
	return ""
}

// errEmptyData marks a 2xx response without data. It is a not-found kind so
// lookups treat it like a 404, but only it matches errors.Is(err, errEmptyData).
var errEmptyData = &apperrors.AppError{
	Code:       "EMPTY_RESPONSE",
	Message:    "Backend response carried no data",
	Kind:       apperrors.KindNotFound,
	HTTPStatus: http.StatusNotFound,
}

func isEmpty(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == "{}" || s == "[]"
}

// do performs one call and decodes the data field of the response envelope
// into result. A 404 yields apperrors.ErrNotFound and a 2xx with a missing or
// empty data field yields errEmptyData.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, result any) (err error) {
	start := time.Now()
	defer func() { metrics.RecordBackendRequest(op, time.Since(start), err) }()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return apperrors.ErrInternal.WithError(fmt.Errorf("failed to marshal request: %w", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return apperrors.ErrInternal.WithError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.ErrBackendUnavailable.WithError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.ErrBackendUnavailable.WithError(fmt.Errorf("failed to read response: %w", err))
	}

	var env envelope
	_ = json.Unmarshal(respBody, &env)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.ErrNotFound.WithDetails(env.errorMessage())
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return apperrors.ErrBackendUnavailable.WithError(
			fmt.Errorf("status %d: %s", resp.StatusCode, env.errorMessage()))
	case resp.StatusCode >= 400:
		msg := env.errorMessage()
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return apperrors.ErrBackendRejected.WithMessage(msg)
	}

	if result == nil {
		return nil
	}
	if isEmpty(env.Data) {
		return errEmptyData
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return apperrors.ErrInternal.WithError(fmt.Errorf("failed to parse %s response: %w", op, err))
	}
	return nil
}

// doIdempotent retries transient failures of read-only calls.
func (c *Client) doIdempotent(ctx context.Context, op, path string, query url.Values, result any) error {
	var b backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
	if c.maxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.maxRetries))
	}

	return backoff.Retry(func() error {
		err := c.do(ctx, op, http.MethodGet, path, query, nil, result)
		if err != nil && !apperrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
