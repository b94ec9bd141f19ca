package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rahataid/rahat-offramp/internal/mockbackend"
	"github.com/rahataid/rahat-offramp/pkg/backend"
	"github.com/rahataid/rahat-offramp/pkg/chain"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/middleware"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/orchestrator"
	"github.com/rahataid/rahat-offramp/pkg/poller"
	"github.com/rahataid/rahat-offramp/pkg/response"
	"github.com/rahataid/rahat-offramp/pkg/session"
	"github.com/rahataid/rahat-offramp/services/offramp-service/internal/types"
)

const (
	testSecret = "handler-test-secret"
	sender     = "0x1111111111111111111111111111111111111111"
	txHash     = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	kePhone    = "+254712345678"
)

type stubSigner struct {
	mu    sync.Mutex
	sent  int
	waits int
}

func (s *stubSigner) Transfer(context.Context, chain.TransferRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return txHash, nil
}

func (s *stubSigner) WaitForReceipt(_ context.Context, hash string) (*offramp.TransactionReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits++
	return &offramp.TransactionReceipt{TxHash: hash, Status: offramp.ReceiptConfirmed, BlockNumber: 7}, nil
}

type stubHistory struct {
	attempt *types.Attempt
}

func (h stubHistory) GetAttempt(_ context.Context, id string) (*types.Attempt, error) {
	if h.attempt == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	a := *h.attempt
	a.SessionID = id
	return &a, nil
}

func (stubHistory) ListTransitions(_ context.Context, id string) ([]types.Transition, error) {
	return []types.Transition{{ID: 1, SessionID: id, From: "", To: "idle"}}, nil
}

type testEnv struct {
	app    *fiber.App
	mock   *mockbackend.Server
	signer *stubSigner
	orch   *orchestrator.Orchestrator
}

func newTestEnv(t *testing.T, history History, cfg Config) *testEnv {
	t.Helper()

	mock := mockbackend.New()
	srv := mockbackend.NewHTTPServer(mock)
	t.Cleanup(srv.Close)

	api := backend.NewClient(&backend.Config{
		BaseURL:    srv.URL + mockbackend.BasePath,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	})

	signer := &stubSigner{}
	orch := orchestrator.New(orchestrator.Config{
		Chain:        "base-sepolia",
		ChainID:      84532,
		Token:        "USDC",
		PollInterval: 10 * time.Millisecond,
	}, orchestrator.Deps{
		Backend: api,
		Store:   session.NewMemoryStore(),
		Signer:  signer,
		Pollers: poller.NewRegistry(api, 10*time.Millisecond),
	})
	t.Cleanup(orch.Shutdown)

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler})
	app.Use(middleware.RequestID())
	New(orch, api, history, cfg).Register(app.Group("/api/v1"), nil)

	return &testEnv{app: app, mock: mock, signer: signer, orch: orch}
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func (e *testEnv) createSession(t *testing.T) types.CreateSessionResponse {
	t.Helper()
	status, env := e.do(t, "POST", "/api/v1/sessions", "", map[string]any{
		"provider":      "kotanipay",
		"amount":        "25",
		"senderAddress": sender,
		"phoneNumber":   kePhone,
	})
	if status != http.StatusCreated {
		t.Fatalf("create session status = %d, error = %+v", status, env.Error)
	}
	return decode[types.CreateSessionResponse](t, env.Data)
}

func (e *testEnv) addKenyanWallet() {
	e.mock.AddWallet(offramp.RecipientWallet{
		AccountName: "Jane Doe",
		Network:     "MPESA",
		PhoneNumber: kePhone,
		CountryCode: "KE",
		CustomerKey: "ck_jane",
	})
}

func TestListProviders(t *testing.T) {
	e := newTestEnv(t, nil, Config{})

	status, env := e.do(t, "GET", "/api/v1/providers", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", status, env.Error)
	}
	providers := decode[[]offramp.Provider](t, env.Data)
	if len(providers) != 2 {
		t.Fatalf("len(providers) = %d, want 2", len(providers))
	}
	if providers[0].Slug != "kotanipay" {
		t.Errorf("providers[0].Slug = %q, want kotanipay", providers[0].Slug)
	}
}

func TestListProviders_BackendDown(t *testing.T) {
	e := newTestEnv(t, nil, Config{})
	e.mock.FailNext("list_providers", 503, 503, 503)

	status, env := e.do(t, "GET", "/api/v1/providers", "", nil)
	if status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want a transient failure", status)
	}
	if env.Error == nil || !env.Error.Retryable {
		t.Errorf("error = %+v, want retryable", env.Error)
	}
}

func TestCreateSession_Validation(t *testing.T) {
	e := newTestEnv(t, nil, Config{})

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing provider", map[string]any{"amount": "5", "senderAddress": sender}, 400, "VALIDATION_ERROR"},
		{"zero amount", map[string]any{"provider": "kotanipay", "amount": "0", "senderAddress": sender}, 400, "INVALID_AMOUNT"},
		{"bad sender", map[string]any{"provider": "kotanipay", "amount": "5", "senderAddress": "0x12"}, 400, "VALIDATION_ERROR"},
		{"unknown provider", map[string]any{"provider": "nope", "amount": "5", "senderAddress": sender}, 404, "PROVIDER_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := e.do(t, "POST", "/api/v1/sessions", "", tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d (%+v)", status, tt.status, env.Error)
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestSessionAuthRequired(t *testing.T) {
	e := newTestEnv(t, nil, Config{JWTSecret: testSecret})
	created := e.createSession(t)
	if created.Token == "" {
		t.Fatal("token should be issued when a secret is configured")
	}

	other, _ := middleware.IssueSessionToken(testSecret, "another-session", sender, time.Hour)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", 401},
		{"token for another session", other, 403},
		{"own token", created.Token, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := e.do(t, "GET", "/api/v1/sessions/"+created.Session.ID, tt.token, nil)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestFullFlow(t *testing.T) {
	e := newTestEnv(t, nil, Config{JWTSecret: testSecret})
	e.addKenyanWallet()

	created := e.createSession(t)
	id, token := created.Session.ID, created.Token
	base := "/api/v1/sessions/" + id

	status, env := e.do(t, "POST", base+"/recipient/lookup", token, map[string]string{"phoneNumber": kePhone})
	if status != http.StatusOK {
		t.Fatalf("lookup status = %d, error = %+v", status, env.Error)
	}
	lookup := decode[map[string]any](t, env.Data)
	if lookup["found"] != true {
		t.Fatalf("lookup = %v, want found", lookup)
	}

	status, env = e.do(t, "POST", base+"/resolve", token, nil)
	if status != http.StatusOK {
		t.Fatalf("resolve status = %d, error = %+v", status, env.Error)
	}
	s := decode[session.Session](t, env.Data)
	if s.State != session.StateWalletResolved || s.FiatWallet == nil || s.FiatWallet.ID != "fw-kes" {
		t.Fatalf("resolved session = %+v", s)
	}

	status, env = e.do(t, "POST", base+"/transfer", token, map[string]string{"from": sender})
	if status != http.StatusOK {
		t.Fatalf("transfer status = %d, error = %+v", status, env.Error)
	}
	s = decode[session.Session](t, env.Data)
	if s.State != session.StateTransferConfirmed || s.TxHash != txHash {
		t.Fatalf("after transfer: state = %s, tx = %s", s.State, s.TxHash)
	}

	status, env = e.do(t, "POST", base+"/execute", token, nil)
	if status != http.StatusOK {
		t.Fatalf("execute status = %d, error = %+v", status, env.Error)
	}
	s = decode[session.Session](t, env.Data)
	if s.State != session.StateExecutionComplete || s.ReferenceID == "" {
		t.Fatalf("after execute: state = %s, reference = %q", s.State, s.ReferenceID)
	}
	if got := len(e.mock.Executions()); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}

	status, env = e.do(t, "GET", base+"/status", token, nil)
	if status != http.StatusOK {
		t.Fatalf("status route = %d, error = %+v", status, env.Error)
	}
	snap := decode[poller.Snapshot](t, env.Data)
	if snap.ReferenceID != s.ReferenceID {
		t.Errorf("snapshot reference = %q, want %q", snap.ReferenceID, s.ReferenceID)
	}

	status, env = e.do(t, "GET", base+"?view=query", token, nil)
	if status != http.StatusOK {
		t.Fatalf("query view status = %d", status)
	}
	q := decode[map[string]string](t, env.Data)
	if q["query"] == "" {
		t.Error("query view should return the encoded session")
	}
}

func TestLookupRecipient_NotFoundReturnsDraft(t *testing.T) {
	e := newTestEnv(t, nil, Config{})
	created := e.createSession(t)

	status, env := e.do(t, "POST", "/api/v1/sessions/"+created.Session.ID+"/recipient/lookup", "", map[string]string{"phoneNumber": kePhone})
	if status != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", status, env.Error)
	}
	res := decode[struct {
		Found bool           `json:"found"`
		Draft map[string]any `json:"draft"`
	}](t, env.Data)
	if res.Found {
		t.Error("found should be false for an unknown phone")
	}
	if res.Draft == nil || res.Draft["country_code"] != "KE" {
		t.Errorf("draft = %v, want a Kenyan draft", res.Draft)
	}
}

func TestTransfer_BeforeResolveIsConflict(t *testing.T) {
	e := newTestEnv(t, nil, Config{})
	created := e.createSession(t)

	status, env := e.do(t, "POST", "/api/v1/sessions/"+created.Session.ID+"/transfer", "", map[string]string{"from": sender})
	if status != http.StatusConflict {
		t.Errorf("status = %d, want 409 (%+v)", status, env.Error)
	}
	if e.signer.sent != 0 {
		t.Error("signer must not be called before wallets are resolved")
	}
}

func TestTransfer_Async(t *testing.T) {
	e := newTestEnv(t, nil, Config{AsyncTransfer: true})
	e.addKenyanWallet()
	created := e.createSession(t)
	base := "/api/v1/sessions/" + created.Session.ID

	if status, env := e.do(t, "POST", base+"/resolve", "", nil); status != http.StatusOK {
		t.Fatalf("resolve status = %d, error = %+v", status, env.Error)
	}

	status, env := e.do(t, "POST", base+"/transfer", "", map[string]string{"from": sender})
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%+v)", status, env.Error)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, err := e.orch.Get(context.Background(), created.Session.ID)
		if err == nil && s.State == session.StateTransferConfirmed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("receipt was not awaited in the background")
}

func TestCancel(t *testing.T) {
	e := newTestEnv(t, nil, Config{})
	created := e.createSession(t)
	base := "/api/v1/sessions/" + created.Session.ID

	status, env := e.do(t, "POST", base+"/cancel", "", nil)
	if status != http.StatusOK {
		t.Fatalf("cancel status = %d, error = %+v", status, env.Error)
	}
	if s := decode[session.Session](t, env.Data); s.State != session.StateCancelled {
		t.Errorf("state = %s, want cancelled", s.State)
	}

	status, env = e.do(t, "POST", base+"/resolve", "", nil)
	if env.Error == nil || env.Error.Code != "REQUEST_CANCELLED" {
		t.Errorf("resolve after cancel: status = %d, error = %+v", status, env.Error)
	}
}

func TestRetry_NothingToRetry(t *testing.T) {
	e := newTestEnv(t, nil, Config{})
	created := e.createSession(t)

	status, _ := e.do(t, "POST", "/api/v1/sessions/"+created.Session.ID+"/retry", "", nil)
	if status != http.StatusConflict {
		t.Errorf("status = %d, want 409", status)
	}
}

func TestStatus_BeforeExecute(t *testing.T) {
	e := newTestEnv(t, nil, Config{})
	created := e.createSession(t)

	status, env := e.do(t, "GET", "/api/v1/sessions/"+created.Session.ID+"/status", "", nil)
	if status != http.StatusConflict {
		t.Errorf("status = %d, want 409 (%+v)", status, env.Error)
	}
}

func TestHistory(t *testing.T) {
	t.Run("ledger not configured", func(t *testing.T) {
		e := newTestEnv(t, nil, Config{})
		created := e.createSession(t)

		status, _ := e.do(t, "GET", "/api/v1/sessions/"+created.Session.ID+"/history", "", nil)
		if status != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", status)
		}
	})

	t.Run("ledger without attempt row", func(t *testing.T) {
		e := newTestEnv(t, stubHistory{}, Config{})
		created := e.createSession(t)

		status, env := e.do(t, "GET", "/api/v1/sessions/"+created.Session.ID+"/history", "", nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d, error = %+v", status, env.Error)
		}
		h := decode[types.SessionHistory](t, env.Data)
		if h.Attempt != nil || len(h.Transitions) != 1 {
			t.Errorf("history = %+v, want no attempt and one transition", h)
		}
	})

	t.Run("ledger with attempt", func(t *testing.T) {
		e := newTestEnv(t, stubHistory{attempt: &types.Attempt{State: "idle", Token: "USDC"}}, Config{})
		created := e.createSession(t)

		status, env := e.do(t, "GET", "/api/v1/sessions/"+created.Session.ID+"/history", "", nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d, error = %+v", status, env.Error)
		}
		h := decode[types.SessionHistory](t, env.Data)
		if h.Attempt == nil || h.Attempt.Token != "USDC" {
			t.Errorf("attempt = %+v, want the ledger row", h.Attempt)
		}
	})
}

func TestResumeSession(t *testing.T) {
	e := newTestEnv(t, nil, Config{})
	created := e.createSession(t)

	status, env := e.do(t, "POST", "/api/v1/sessions/resume", "", map[string]string{
		"query": "?" + created.Session.ToQuery().Encode(),
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", status, env.Error)
	}
	out := decode[types.CreateSessionResponse](t, env.Data)
	if out.Session.ID != created.Session.ID {
		t.Errorf("ID = %q, want the live session %q", out.Session.ID, created.Session.ID)
	}
	if out.Session.RequestID != created.Session.RequestID {
		t.Errorf("RequestID = %q, want %q", out.Session.RequestID, created.Session.RequestID)
	}
	if out.Session.State != session.StateIdle {
		t.Errorf("State = %s, want idle", out.Session.State)
	}
}

func TestListRequests_Paginated(t *testing.T) {
	e := newTestEnv(t, nil, Config{})
	for i := 0; i < 3; i++ {
		e.createSession(t)
	}

	status, env := e.do(t, "GET", "/api/v1/requests?page=2&per_page=2", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", status, env.Error)
	}
	page := decode[response.PaginatedData](t, env.Data)
	if page.Pagination.Total != 3 || page.Pagination.TotalPages != 2 || page.Pagination.HasMore {
		t.Errorf("pagination = %+v", page.Pagination)
	}
	if items, ok := page.Items.([]any); !ok || len(items) != 1 {
		t.Errorf("items = %v, want one request on page 2", page.Items)
	}

	status, _ = e.do(t, "GET", "/api/v1/requests?per_page=500", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("per_page=500 status = %d, want 400", status)
	}
}

func TestBind_ReportsFieldsByJSONName(t *testing.T) {
	e := newTestEnv(t, nil, Config{})

	status, env := e.do(t, "POST", "/api/v1/sessions", "", map[string]any{
		"amount":        "5",
		"senderAddress": "not-an-address",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	details, ok := env.Error.Details.(map[string]any)
	if !ok {
		t.Fatalf("details = %#v, want a field map", env.Error.Details)
	}
	if details["provider"] != "required" {
		t.Errorf("provider rule = %v, want required", details["provider"])
	}
	if details["senderAddress"] != "eth_addr" {
		t.Errorf("senderAddress rule = %v, want eth_addr", details["senderAddress"])
	}
}
