package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

type CreateRequestInput struct {
	ProviderUUID  string          `json:"providerUuid"`
	Chain         string          `json:"chain"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	SenderAddress string          `json:"senderAddress"`
}

// ListProviders returns the providers registered on the backend. Slugs are
// derived from the display name when the backend does not send one.
func (c *Client) ListProviders(ctx context.Context) ([]offramp.Provider, error) {
	var providers []offramp.Provider
	err := c.doIdempotent(ctx, "list_providers", "/providers", nil, &providers)
	if apperrors.IsNotFound(err) {
		return []offramp.Provider{}, nil
	}
	if err != nil {
		return nil, err
	}

	for i := range providers {
		if providers[i].Slug == "" {
			providers[i].Slug = offramp.Slug(providers[i].Name)
		}
	}
	return providers, nil
}

func (c *Client) CreateRequest(ctx context.Context, in CreateRequestInput) (*offramp.Request, error) {
	var req offramp.Request
	if err := c.do(ctx, "create_request", http.MethodPost, "/", nil, in, &req); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrBackendRejected.WithMessage("backend returned no request")
		}
		return nil, err
	}

	if req.ProviderUUID == "" {
		req.ProviderUUID = in.ProviderUUID
	}
	if req.Chain == "" {
		req.Chain = in.Chain
	}
	if req.Token == "" {
		req.Token = in.Token
	}
	if req.Amount.IsZero() {
		req.Amount = in.Amount
	}
	if req.SenderAddress == "" {
		req.SenderAddress = in.SenderAddress
	}
	normalizeRequest(&req)
	return &req, nil
}

// GetRequest fetches a single request by its request id.
func (c *Client) GetRequest(ctx context.Context, requestID string) (*offramp.Request, error) {
	var req offramp.Request
	q := url.Values{"requestId": {requestID}}
	if err := c.doIdempotent(ctx, "get_request", "/single", q, &req); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrRequestNotFound.WithDetails(requestID)
		}
		return nil, err
	}
	normalizeRequest(&req)
	return &req, nil
}

func (c *Client) ListRequests(ctx context.Context) ([]offramp.Request, error) {
	var reqs []offramp.Request
	err := c.doIdempotent(ctx, "list_requests", "/", nil, &reqs)
	if apperrors.IsNotFound(err) {
		return []offramp.Request{}, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		normalizeRequest(&reqs[i])
	}
	return reqs, nil
}

// ExecuteRequest submits the transfer hash for reconciliation. It is never
// retried here; the orchestrator decides whether a resubmission is safe.
func (c *Client) ExecuteRequest(ctx context.Context, payload offramp.ExecutePayload) (*offramp.ExecuteResult, error) {
	var res offramp.ExecuteResult
	if err := c.do(ctx, "execute_request", http.MethodPost, "/execute", nil, payload, &res); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrRequestNotFound.WithDetails(payload.RequestUUID)
		}
		return nil, err
	}
	res.Status = offramp.ParseStatus(string(res.Status))
	return &res, nil
}

func normalizeRequest(r *offramp.Request) {
	r.Status = offramp.ParseStatus(string(r.Status))
	if r.OnchainStatus != "" {
		r.OnchainStatus = offramp.ParseStatus(string(r.OnchainStatus))
	}
	if r.RequestID == "" {
		r.RequestID = r.UUID
	}
}
