package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
)

// serve runs h behind the offramp error handler and decodes the envelope.
func serve(t *testing.T, h fiber.Handler, header map[string]string) (int, Response) {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.All("/test", h)

	req := httptest.NewRequest("GET", "/test", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return resp.StatusCode, out
}

func TestSuccessStatuses(t *testing.T) {
	session := map[string]string{"id": "s-1", "state": "transfer_pending"}

	tests := []struct {
		name   string
		h      fiber.Handler
		status int
	}{
		{"success", func(c *fiber.Ctx) error { return Success(c, session) }, 200},
		{"created", func(c *fiber.Ctx) error { return Created(c, session) }, 201},
		{"accepted", func(c *fiber.Ctx) error { return Accepted(c, session) }, 202},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := serve(t, tt.h, nil)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if out.Error != nil {
				t.Errorf("error = %+v, want none", out.Error)
			}
			data, _ := out.Data.(map[string]any)
			if data["state"] != "transfer_pending" {
				t.Errorf("data = %v", out.Data)
			}
			if out.Meta.RequestID == "" || out.Meta.Timestamp.IsZero() {
				t.Errorf("meta = %+v, want request id and timestamp", out.Meta)
			}
		})
	}
}

func TestRequestIDFromHeader(t *testing.T) {
	_, out := serve(t, func(c *fiber.Ctx) error { return Success(c, nil) },
		map[string]string{"X-Request-ID": "req-42"})

	if out.Meta.RequestID != "req-42" {
		t.Errorf("request_id = %s, want req-42", out.Meta.RequestID)
	}
}

func TestPaginated(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		perPage   int
		total     int64
		wantPages int
		wantMore  bool
	}{
		{"first of three", 1, 2, 5, 3, true},
		{"last page", 3, 2, 5, 3, false},
		{"exact fit", 2, 5, 10, 2, false},
		{"empty", 1, 20, 0, 0, false},
		{"zero per page", 1, 0, 3, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out := serve(t, func(c *fiber.Ctx) error {
				return Paginated(c, []string{"req-1"}, tt.page, tt.perPage, tt.total)
			}, nil)

			raw, _ := json.Marshal(out.Data)
			var data PaginatedData
			if err := json.Unmarshal(raw, &data); err != nil {
				t.Fatal(err)
			}
			p := data.Pagination
			if p.TotalPages != tt.wantPages || p.HasMore != tt.wantMore || p.Total != tt.total {
				t.Errorf("pagination = %+v, want pages=%d more=%v", p, tt.wantPages, tt.wantMore)
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		kind      string
		retryable bool
	}{
		{"providers loading", apperrors.ErrProvidersLoading, 503, "PROVIDERS_LOADING", "transient", true},
		{"wrapped wallet not found", fmt.Errorf("lookup: %w", apperrors.ErrWalletNotFound), 404, "WALLET_NOT_FOUND", "not_found", false},
		{"reverted transfer", apperrors.ErrTransferReverted, 422, "TRANSFER_REVERTED", "onchain", false},
		{"cancelled request", apperrors.ErrRequestCancelled, 409, "REQUEST_CANCELLED", "invalid_state", false},
		{"fiber not found", fiber.ErrNotFound, 404, "NOT_FOUND", "", false},
		{"fiber rate limit", fiber.ErrTooManyRequests, 429, "RATE_LIMITED", "", false},
		{"plain error", errors.New("boom"), 500, "INTERNAL_ERROR", "internal", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := serve(t, func(c *fiber.Ctx) error { return tt.err }, nil)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if out.Error == nil {
				t.Fatal("error body missing")
			}
			if out.Error.Code != tt.code || out.Error.Kind != tt.kind || out.Error.Retryable != tt.retryable {
				t.Errorf("error = %+v, want %s/%s/%v", out.Error, tt.code, tt.kind, tt.retryable)
			}
		})
	}
}

func TestErrorHandler_KeepsDetails(t *testing.T) {
	_, out := serve(t, func(c *fiber.Ctx) error {
		return apperrors.ErrFiatWalletNotFound.WithDetails(map[string]string{"currency": "NGN"})
	}, nil)

	d, ok := out.Error.Details.(map[string]any)
	if !ok || d["currency"] != "NGN" {
		t.Errorf("details = %v, want currency NGN", out.Error.Details)
	}
}

func TestHTTPStatusToErrorCode(t *testing.T) {
	tests := map[int]string{
		400: "BAD_REQUEST",
		401: "UNAUTHORIZED",
		405: "METHOD_NOT_ALLOWED",
		413: "BODY_TOO_LARGE",
		502: "BAD_GATEWAY",
		503: "SERVICE_UNAVAILABLE",
		599: "UNKNOWN_ERROR",
	}
	for status, want := range tests {
		if got := httpStatusToErrorCode(status); got != want {
			t.Errorf("httpStatusToErrorCode(%d) = %s, want %s", status, got, want)
		}
	}
}
