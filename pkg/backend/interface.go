package backend

import (
	"context"

	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

// API is the offramp backend surface used by the orchestration packages.
type API interface {
	ListProviders(ctx context.Context) ([]offramp.Provider, error)
	CreateRequest(ctx context.Context, in CreateRequestInput) (*offramp.Request, error)
	GetRequest(ctx context.Context, requestID string) (*offramp.Request, error)
	ListRequests(ctx context.Context) ([]offramp.Request, error)
	ExecuteRequest(ctx context.Context, payload offramp.ExecutePayload) (*offramp.ExecuteResult, error)

	ProviderAction(ctx context.Context, providerUUID, action string, payload, result any) error
	GetCustomerWalletByPhone(ctx context.Context, providerUUID, phone string) (*offramp.RecipientWallet, error)
	CreateCustomerMobileWallet(ctx context.Context, providerUUID string, in CreateWalletPayload) (*offramp.RecipientWallet, error)
	GetFiatWallets(ctx context.Context, providerUUID string) ([]offramp.FiatWallet, error)
	CheckOfframpStatus(ctx context.Context, providerUUID, referenceID string) (*offramp.StatusSnapshot, error)
}

var _ API = (*Client)(nil)
