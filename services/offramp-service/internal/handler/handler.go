package handler

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/middleware"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/orchestrator"
	"github.com/rahataid/rahat-offramp/pkg/recipient"
	"github.com/rahataid/rahat-offramp/pkg/response"
	"github.com/rahataid/rahat-offramp/pkg/session"
	"github.com/rahataid/rahat-offramp/services/offramp-service/internal/types"
)

// Backend is the part of the backend client the handler reads directly.
// Everything else goes through the orchestrator.
type Backend interface {
	ListProviders(ctx context.Context) ([]offramp.Provider, error)
	ListRequests(ctx context.Context) ([]offramp.Request, error)
}

// History reads the attempt ledger. It is nil when no database is configured.
type History interface {
	GetAttempt(ctx context.Context, sessionID string) (*types.Attempt, error)
	ListTransitions(ctx context.Context, sessionID string) ([]types.Transition, error)
}

type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	// AsyncTransfer returns 202 after submission and waits for the receipt
	// in the background instead of holding the request open.
	AsyncTransfer bool
}

type Handler struct {
	orch    *orchestrator.Orchestrator
	backend Backend
	history History
	cfg     Config
}

func New(orch *orchestrator.Orchestrator, backend Backend, history History, cfg Config) *Handler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Handler{
		orch:    orch,
		backend: backend,
		history: history,
		cfg:     cfg,
	}
}

// Register mounts the offramp routes on r, normally the /api/v1 group.
func (h *Handler) Register(r fiber.Router, sessionLimiter fiber.Handler) {
	r.Get("/providers", h.ListProviders)
	r.Get("/requests", h.ListRequests)

	create := []fiber.Handler{h.CreateSession}
	resume := []fiber.Handler{h.ResumeSession}
	if sessionLimiter != nil {
		create = append([]fiber.Handler{sessionLimiter}, create...)
		resume = append([]fiber.Handler{sessionLimiter}, resume...)
	}
	r.Post("/sessions", create...)
	r.Post("/sessions/resume", resume...)

	s := r.Group("/sessions/:id", middleware.SessionAuth(h.cfg.JWTSecret))
	s.Get("/", h.GetSession)
	s.Get("/history", h.GetHistory)
	s.Post("/recipient/lookup", h.LookupRecipient)
	s.Post("/recipient", h.CreateRecipient)
	s.Post("/resolve", h.ResolveWallets)
	s.Post("/transfer", h.SubmitTransfer)
	s.Post("/transfer/external", h.RecordExternalTransfer)
	s.Post("/execute", h.Execute)
	s.Post("/retry", h.Retry)
	s.Post("/cancel", h.Cancel)
	s.Get("/status", h.Status)
}

func (h *Handler) ListProviders(c *fiber.Ctx) error {
	ctx := c.UserContext()
	catalog := h.orch.Catalog()

	if !catalog.Loaded() || c.QueryBool("refresh") {
		if err := catalog.Load(ctx, h.backend); err != nil {
			if !catalog.Loaded() {
				return err
			}
			// keep serving the previous list
			logger.WithContext(ctx).Warn().Err(err).Msg("Provider refresh failed")
		}
	}

	providers, err := catalog.List()
	if err != nil {
		return err
	}
	return response.Success(c, providers)
}

func (h *Handler) ListRequests(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		return apperrors.ErrValidation.WithDetails("per_page must be between 1 and 100")
	}

	all, err := h.backend.ListRequests(c.UserContext())
	if err != nil {
		return err
	}

	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return response.Paginated(c, all[start:end], page, perPage, int64(len(all)))
}

func (h *Handler) CreateSession(c *fiber.Ctx) error {
	var req types.CreateSessionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	s, err := h.orch.Start(c.UserContext(), orchestrator.StartInput{
		Provider:      req.Provider,
		Amount:        req.Amount,
		SenderAddress: req.SenderAddress,
		Phone:         req.PhoneNumber,
	})
	if err != nil {
		return err
	}

	out, err := h.withToken(s)
	if err != nil {
		return err
	}
	return response.Created(c, out)
}

// ResumeSession rebuilds a session from the query string produced by
// GET /sessions/:id?view=query, or by an older client.
func (h *Handler) ResumeSession(c *fiber.Ctx) error {
	var body types.ResumeSessionRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	q, err := url.ParseQuery(strings.TrimPrefix(body.Query, "?"))
	if err != nil {
		return apperrors.ErrValidation.WithDetails("query is not URL encoded")
	}

	s, err := h.orch.Resume(c.UserContext(), q)
	if err != nil {
		return err
	}

	out, err := h.withToken(s)
	if err != nil {
		return err
	}
	return response.Success(c, out)
}

func (h *Handler) withToken(s *session.Session) (types.CreateSessionResponse, error) {
	out := types.CreateSessionResponse{Session: s}
	if h.cfg.JWTSecret == "" {
		return out, nil
	}

	token, err := middleware.IssueSessionToken(h.cfg.JWTSecret, s.ID, s.SenderAddress, h.cfg.TokenTTL)
	if err != nil {
		return out, apperrors.ErrInternal.WithError(err)
	}
	expires := time.Now().Add(h.cfg.TokenTTL).UTC()
	out.Token = token
	out.ExpiresAt = &expires
	return out, nil
}

func (h *Handler) GetSession(c *fiber.Ctx) error {
	s, err := h.orch.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if c.Query("view") == "query" {
		return response.Success(c, fiber.Map{"query": s.ToQuery().Encode()})
	}
	return response.Success(c, s)
}

func (h *Handler) GetHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return apperrors.ErrServiceUnavailable.WithMessage("Attempt ledger is not configured")
	}
	id := c.Params("id")
	if _, err := h.orch.Get(c.UserContext(), id); err != nil {
		return err
	}

	ctx := c.UserContext()
	var out types.SessionHistory
	// a session that never reached the ledger has no attempt row
	attempt, err := h.history.GetAttempt(ctx, id)
	switch {
	case err == nil:
		out.Attempt = attempt
	case !errors.Is(err, apperrors.ErrSessionNotFound):
		logger.WithContext(ctx).Error().Err(err).Str("session_id", id).Msg("Failed to read attempt")
		return apperrors.ErrInternal
	}

	out.Transitions, err = h.history.ListTransitions(ctx, id)
	if err != nil {
		logger.WithContext(ctx).Error().Err(err).Str("session_id", id).Msg("Failed to read history")
		return apperrors.ErrInternal
	}
	return response.Success(c, out)
}

func (h *Handler) LookupRecipient(c *fiber.Ctx) error {
	var req types.LookupRecipientRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.orch.LookupRecipient(c.UserContext(), c.Params("id"), req.PhoneNumber)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.Map{
		"found":  res.Found(),
		"wallet": res.Wallet,
		"draft":  res.Draft,
	})
}

func (h *Handler) CreateRecipient(c *fiber.Ctx) error {
	var req recipient.CreateInput
	if err := bind(c, &req); err != nil {
		return err
	}

	w, err := h.orch.CreateRecipient(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	return response.Created(c, w)
}

func (h *Handler) ResolveWallets(c *fiber.Ctx) error {
	s, err := h.orch.ResolveWallets(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, s)
}

func (h *Handler) SubmitTransfer(c *fiber.Ctx) error {
	var req types.TransferRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	id := c.Params("id")

	s, err := h.orch.SubmitTransfer(ctx, id, req.From)
	if err != nil {
		return err
	}
	return h.awaitReceipt(c, s)
}

func (h *Handler) RecordExternalTransfer(c *fiber.Ctx) error {
	var req types.ExternalTransferRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	s, err := h.orch.RecordExternalTransfer(c.UserContext(), c.Params("id"), req.TxHash, req.From)
	if err != nil {
		return err
	}
	return h.awaitReceipt(c, s)
}

func (h *Handler) awaitReceipt(c *fiber.Ctx, pending *session.Session) error {
	ctx := c.UserContext()

	if h.cfg.AsyncTransfer || c.QueryBool("async") {
		bg := context.WithoutCancel(ctx)
		go func() {
			if _, err := h.orch.AwaitReceipt(bg, pending.ID); err != nil {
				logger.WithContext(logger.WithSession(bg, pending.ID)).Warn().Err(err).Msg("Receipt wait ended with error")
			}
		}()
		return response.Accepted(c, pending)
	}

	s, err := h.orch.AwaitReceipt(ctx, pending.ID)
	if err != nil {
		return err
	}
	return response.Success(c, s)
}

func (h *Handler) Execute(c *fiber.Ctx) error {
	s, err := h.orch.Execute(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, s)
}

func (h *Handler) Retry(c *fiber.Ctx) error {
	var req types.RetryRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}

	from := req.From
	if from == "" {
		// the wallet named in the session token
		from = middleware.GetSender(c)
	}
	s, err := h.orch.Retry(c.UserContext(), c.Params("id"), from)
	if err != nil {
		return err
	}
	if s.State == session.StateTransferPending {
		return h.awaitReceipt(c, s)
	}
	return response.Success(c, s)
}

func (h *Handler) Cancel(c *fiber.Ctx) error {
	s, err := h.orch.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, s)
}

func (h *Handler) Status(c *fiber.Ctx) error {
	snap, err := h.orch.Status(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, snap)
}
