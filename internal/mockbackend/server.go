// Package mockbackend is an in-memory stand-in for the offramp backend REST
// API, used by package tests and by tools/mockservers/offramp.
package mockbackend

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

const DefaultEscrowAddress = "0x9f8A26F2C9F90C4E3c8b12D7C3A1dA0bE6f5A001"

type Server struct {
	mu sync.RWMutex

	providers   []offramp.Provider
	requests    map[string]*offramp.Request
	wallets     map[string]*offramp.RecipientWallet
	fiatWallets map[string][]offramp.FiatWallet
	statuses    map[string]*offramp.StatusSnapshot
	executions  []offramp.ExecutePayload

	escrowAddress string
	failures      map[string][]int
	calls         map[string]int
}

func New() *Server {
	s := &Server{}
	s.Reset()
	return s
}

// Reset restores the seeded state: Kotani Pay as provider p1 with one KES
// and one UGX fiat wallet.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.providers = []offramp.Provider{
		{UUID: "p1", Name: "Kotani Pay", Description: "Mobile money payouts across Africa", Currencies: []string{"KES", "UGX", "NGN", "TZS"}},
		{UUID: "p2", Name: "Ramp Network", Description: "Bank transfers"},
	}
	s.requests = make(map[string]*offramp.Request)
	s.wallets = make(map[string]*offramp.RecipientWallet)
	s.fiatWallets = map[string][]offramp.FiatWallet{
		"p1": {
			{ID: "fw-ugx", Name: "Uganda payouts", Currency: "UGX", Status: "active"},
			{ID: "fw-kes", Name: "Kenya payouts", Currency: "KES", Status: "active"},
		},
	}
	s.statuses = make(map[string]*offramp.StatusSnapshot)
	s.executions = nil
	s.escrowAddress = DefaultEscrowAddress
	s.failures = make(map[string][]int)
	s.calls = make(map[string]int)
}

// App returns a fiber app serving the backend routes under the base path
// (e.g. "/v1/offramps").
func (s *Server) App(basePath string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Offramp Backend Mock",
		DisableStartupMessage: true,
	})
	s.Register(app.Group(basePath))

	app.Post("/admin/reset", func(c *fiber.Ctx) error {
		s.Reset()
		return c.JSON(fiber.Map{"data": "ok"})
	})
	app.Post("/admin/status/:ref", s.adminSetStatus)
	app.Get("/admin/executions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": s.Executions()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": "offramp-backend-mock"})
	})
	return app
}

func (s *Server) Register(r fiber.Router) {
	r.Get("/providers", s.wrap("list_providers", s.listProviders))
	r.Post("/providers/actions", s.handleAction)
	r.Post("/execute", s.wrap("execute_request", s.execute))
	r.Get("/single", s.wrap("get_request", s.getRequest))
	r.Get("/", s.wrap("list_requests", s.listRequests))
	r.Post("/", s.wrap("create_request", s.createRequest))
}

// =============================================================================
// Test controls
// =============================================================================

func (s *Server) SetProviders(providers []offramp.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = providers
}

func (s *Server) SetEscrowAddress(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrowAddress = addr
}

func (s *Server) SetFiatWallets(providerUUID string, wallets []offramp.FiatWallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fiatWallets[providerUUID] = wallets
}

func (s *Server) AddWallet(w offramp.RecipientWallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.PhoneNumber] = &w
}

// SetStatus moves an execution to a new status, as the provider would.
func (s *Server) SetStatus(referenceID string, status offramp.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.statuses[referenceID]
	if !ok {
		return false
	}
	snap.Status = status
	snap.UpdatedAt = time.Now().UTC()
	return true
}

// FailNext makes the next calls of op answer with the given HTTP statuses,
// one per call.
func (s *Server) FailNext(op string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], statuses...)
}

// Calls returns how many times op was served.
func (s *Server) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

func (s *Server) Executions() []offramp.ExecutePayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]offramp.ExecutePayload, len(s.executions))
	copy(out, s.executions)
	return out
}

func (s *Server) Request(requestID string) (offramp.Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return offramp.Request{}, false
	}
	return *r, true
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) wrap(op string, h fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s.mu.Lock()
		s.calls[op]++
		var fail int
		if q := s.failures[op]; len(q) > 0 {
			fail, s.failures[op] = q[0], q[1:]
		}
		s.mu.Unlock()

		if fail != 0 {
			return c.Status(fail).JSON(fiber.Map{"message": "injected failure"})
		}
		return h(c)
	}
}

func (s *Server) listProviders(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(fiber.Map{"data": s.providers})
}

type createRequestBody struct {
	ProviderUUID  string          `json:"providerUuid"`
	Chain         string          `json:"chain"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	SenderAddress string          `json:"senderAddress"`
}

func (s *Server) createRequest(c *fiber.Ctx) error {
	var body createRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "invalid request body"})
	}
	if body.ProviderUUID == "" || body.SenderAddress == "" || !body.Amount.IsPositive() {
		return c.Status(400).JSON(fiber.Map{"message": "providerUuid, senderAddress and a positive amount are required"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	req := &offramp.Request{
		ID:            int64(len(s.requests) + 1),
		UUID:          id,
		RequestID:     id,
		ProviderUUID:  body.ProviderUUID,
		Chain:         body.Chain,
		Token:         body.Token,
		Amount:        body.Amount,
		SenderAddress: body.SenderAddress,
		EscrowAddress: s.escrowAddress,
		Status:        offramp.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	s.requests[id] = req

	return c.Status(201).JSON(fiber.Map{"data": req})
}

func (s *Server) listRequests(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]offramp.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, *r)
	}
	return c.JSON(fiber.Map{"data": out})
}

func (s *Server) getRequest(c *fiber.Ctx) error {
	id := c.Query("requestId", c.Query("uuid"))
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return c.Status(404).JSON(fiber.Map{"message": "request not found"})
	}
	return c.JSON(fiber.Map{"data": r})
}

func (s *Server) execute(c *fiber.Ctx) error {
	var payload offramp.ExecutePayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "invalid request body"})
	}
	if payload.Data.TransactionHash == "" {
		return c.Status(400).JSON(fiber.Map{"message": "transactionHash is required"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[payload.RequestUUID]
	if !ok {
		return c.Status(404).JSON(fiber.Map{"message": "request not found"})
	}

	s.executions = append(s.executions, payload)
	req.Status = offramp.StatusProcessing
	req.OnchainStatus = offramp.StatusSuccessful

	ref := "ref-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	s.statuses[ref] = &offramp.StatusSnapshot{
		Status:        offramp.StatusProcessing,
		OnchainStatus: offramp.StatusSuccessful,
		ReferenceID:   ref,
		CryptoAmount:  payload.Data.CryptoAmount,
		FiatAmount:    payload.Data.CryptoAmount.Mul(decimal.NewFromInt(129)),
		Rate:          &offramp.Rate{From: payload.Data.Token, To: payload.Data.Currency, Value: decimal.NewFromInt(129)},
		EscrowAddress: req.EscrowAddress,
		SenderAddress: req.SenderAddress,
		UpdatedAt:     time.Now().UTC(),
	}

	return c.JSON(fiber.Map{"data": offramp.ExecuteResult{ReferenceID: ref, Status: offramp.StatusProcessing}})
}

type actionBody struct {
	UUID    string         `json:"uuid"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleAction(c *fiber.Ctx) error {
	var body actionBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "invalid request body"})
	}

	return s.wrap(body.Action, func(c *fiber.Ctx) error {
		switch body.Action {
		case "get-customer-wallet-by-phone":
			return s.walletByPhone(c, str(body.Payload, "phone_number"))
		case "create-customer-mobile-wallet":
			return s.createWallet(c, body.Payload)
		case "get-fiat-wallet":
			return s.listFiatWallets(c, body.UUID)
		case "check-offramp-status":
			return s.checkStatus(c, str(body.Payload, "referenceId"))
		}
		return c.Status(400).JSON(fiber.Map{"message": "unknown action " + body.Action})
	})(c)
}

func (s *Server) walletByPhone(c *fiber.Ctx, phone string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[phone]
	if !ok {
		return c.Status(404).JSON(fiber.Map{"message": "customer wallet not found"})
	}
	return c.JSON(fiber.Map{"data": w})
}

func (s *Server) createWallet(c *fiber.Ctx, p map[string]any) error {
	w := offramp.RecipientWallet{
		AccountName: str(p, "account_name"),
		Network:     str(p, "network"),
		PhoneNumber: str(p, "phone_number"),
		CountryCode: str(p, "country_code"),
		CustomerKey: "ck_" + uuid.New().String()[:8],
	}
	if w.PhoneNumber == "" || w.AccountName == "" {
		return c.Status(400).JSON(fiber.Map{"message": "phone_number and account_name are required"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[w.PhoneNumber]; exists {
		return c.Status(409).JSON(fiber.Map{"message": "wallet already exists"})
	}
	s.wallets[w.PhoneNumber] = &w
	return c.Status(201).JSON(fiber.Map{"data": w})
}

func (s *Server) listFiatWallets(c *fiber.Ctx, providerUUID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wallets := s.fiatWallets[providerUUID]
	if wallets == nil {
		wallets = []offramp.FiatWallet{}
	}
	return c.JSON(fiber.Map{"data": wallets})
}

func (s *Server) checkStatus(c *fiber.Ctx, ref string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.statuses[ref]
	if !ok {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": snap})
}

func (s *Server) adminSetStatus(c *fiber.Ctx) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "invalid request body"})
	}
	if !s.SetStatus(c.Params("ref"), offramp.ParseStatus(body.Status)) {
		return c.Status(404).JSON(fiber.Map{"message": "reference not found"})
	}
	return c.JSON(fiber.Map{"data": "ok"})
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
