package backend

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

const (
	ActionGetCustomerWalletByPhone   = "get-customer-wallet-by-phone"
	ActionCreateCustomerMobileWallet = "create-customer-mobile-wallet"
	ActionGetFiatWallet              = "get-fiat-wallet"
	ActionCheckOfframpStatus         = "check-offramp-status"
)

type actionRequest struct {
	UUID    string `json:"uuid"`
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// ProviderAction dispatches a provider-specific action through the backend.
func (c *Client) ProviderAction(ctx context.Context, providerUUID, action string, payload, result any) error {
	if payload == nil {
		payload = struct{}{}
	}
	return c.do(ctx, action, http.MethodPost, "/providers/actions", nil, actionRequest{
		UUID:    providerUUID,
		Action:  action,
		Payload: payload,
	}, result)
}

type CreateWalletPayload struct {
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
	Network     string `json:"network"`
	AccountName string `json:"account_name"`
}

func (c *Client) GetCustomerWalletByPhone(ctx context.Context, providerUUID, phone string) (*offramp.RecipientWallet, error) {
	var wallet offramp.RecipientWallet
	err := c.ProviderAction(ctx, providerUUID, ActionGetCustomerWalletByPhone,
		map[string]string{"phone_number": phone}, &wallet)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.ErrWalletNotFound.WithDetails(phone)
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (c *Client) CreateCustomerMobileWallet(ctx context.Context, providerUUID string, in CreateWalletPayload) (*offramp.RecipientWallet, error) {
	var wallet offramp.RecipientWallet
	err := c.ProviderAction(ctx, providerUUID, ActionCreateCustomerMobileWallet, in, &wallet)
	if errors.Is(err, errEmptyData) {
		// some providers answer a successful creation with an empty body
		return &offramp.RecipientWallet{
			AccountName: in.AccountName,
			Network:     in.Network,
			PhoneNumber: in.PhoneNumber,
			CountryCode: in.CountryCode,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (c *Client) GetFiatWallets(ctx context.Context, providerUUID string) ([]offramp.FiatWallet, error) {
	var wallets []offramp.FiatWallet
	err := c.ProviderAction(ctx, providerUUID, ActionGetFiatWallet, nil, &wallets)
	if apperrors.IsNotFound(err) {
		return []offramp.FiatWallet{}, nil
	}
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// CheckOfframpStatus reads the provider's view of an execution. An unknown
// reference yields apperrors.ErrStatusNotFound, distinct from transport errors.
func (c *Client) CheckOfframpStatus(ctx context.Context, providerUUID, referenceID string) (*offramp.StatusSnapshot, error) {
	var snap offramp.StatusSnapshot
	err := c.ProviderAction(ctx, providerUUID, ActionCheckOfframpStatus,
		map[string]string{"referenceId": referenceID}, &snap)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.ErrStatusNotFound.WithDetails(referenceID)
	}
	if err != nil {
		return nil, err
	}

	snap.Status = offramp.ParseStatus(string(snap.Status))
	if snap.OnchainStatus != "" {
		snap.OnchainStatus = offramp.ParseStatus(string(snap.OnchainStatus))
	}
	if snap.ReferenceID == "" {
		snap.ReferenceID = referenceID
	}
	return &snap, nil
}
