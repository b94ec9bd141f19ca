// Package recipient finds or registers the mobile-money wallet that receives
// the fiat payout.
package recipient

import (
	"context"
	"strings"

	"github.com/rahataid/rahat-offramp/pkg/backend"
	"github.com/rahataid/rahat-offramp/pkg/currency"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

type WalletAPI interface {
	GetCustomerWalletByPhone(ctx context.Context, providerUUID, phone string) (*offramp.RecipientWallet, error)
	CreateCustomerMobileWallet(ctx context.Context, providerUUID string, in backend.CreateWalletPayload) (*offramp.RecipientWallet, error)
}

// Draft pre-fills the wallet creation form after a failed lookup.
type Draft struct {
	CountryCode string `json:"country_code"`
	DialCode    string `json:"dial_code"`
	PhoneNumber string `json:"phone_number"`
	Currency    string `json:"currency,omitempty"`
	Network     string `json:"network"`
}

type LookupResult struct {
	Wallet *offramp.RecipientWallet `json:"wallet,omitempty"`
	Draft  *Draft                   `json:"draft,omitempty"`
}

func (r LookupResult) Found() bool { return r.Wallet != nil }

type CreateInput struct {
	CountryCode string `json:"country_code"`
	DialCode    string `json:"dial_code"`
	PhoneNumber string `json:"phone_number"`
	Network     string `json:"network"`
	AccountName string `json:"account_name"`
}

type Service struct {
	api WalletAPI
}

func NewService(api WalletAPI) *Service {
	return &Service{api: api}
}

// Lookup searches the provider for a wallet registered to phone. A wallet
// that does not exist is reported through LookupResult.Draft with a nil
// error; transport failures are returned as errors.
func (s *Service) Lookup(ctx context.Context, providerUUID, phone string) (LookupResult, error) {
	phone = currency.StripSpaces(phone)
	if phone == "" {
		return LookupResult{}, apperrors.ErrInvalidPhone.WithMessage("phone number is required")
	}

	wallet, err := s.api.GetCustomerWalletByPhone(ctx, providerUUID, phone)
	switch {
	case err == nil:
		return LookupResult{Wallet: wallet}, nil
	case apperrors.IsNotFound(err):
		logger.WithContext(ctx).Info().Str("provider_uuid", providerUUID).Msg("No recipient wallet for phone, offering creation")
		return LookupResult{Draft: NewDraft(phone)}, nil
	default:
		return LookupResult{}, err
	}
}

// NewDraft splits a full number into dial prefix and local part, inferring
// the country from the prefix when it is supported.
func NewDraft(phone string) *Draft {
	d := &Draft{Network: string(currency.NetworkMPesa)}
	country, local, ok := currency.SplitPhone(phone)
	d.PhoneNumber = local
	if ok {
		d.CountryCode = country.Code
		d.DialCode = country.DialCode
		d.Currency = country.Currency
	}
	return d
}

func (in CreateInput) validate() (currency.Country, currency.Network, error) {
	country, ok := currency.ByCode(in.CountryCode)
	if !ok {
		return currency.Country{}, "", apperrors.ErrUnsupportedCountry.WithDetails(in.CountryCode)
	}
	if in.DialCode != "" && in.DialCode != country.DialCode {
		return currency.Country{}, "", apperrors.ErrValidation.WithMessagef(
			"dial code %s does not belong to %s", in.DialCode, country.Name)
	}

	local := currency.StripSpaces(in.PhoneNumber)
	if local == "" {
		return currency.Country{}, "", apperrors.ErrInvalidPhone.WithMessage("phone number is required")
	}
	if currency.HasDialPrefix(local) {
		return currency.Country{}, "", apperrors.ErrInvalidPhone.WithMessage("enter the phone number without the country dial code")
	}
	for _, r := range local {
		if r < '0' || r > '9' {
			return currency.Country{}, "", apperrors.ErrInvalidPhone
		}
	}

	network, ok := currency.ParseNetwork(in.Network)
	if !ok {
		return currency.Country{}, "", apperrors.ErrValidation.WithMessagef("unsupported network %q", in.Network)
	}
	if strings.TrimSpace(in.AccountName) == "" {
		return currency.Country{}, "", apperrors.ErrValidation.WithMessage("account name is required")
	}
	return country, network, nil
}

// Create registers a new wallet. The dial prefix is joined to the local
// number only here, at submission.
func (s *Service) Create(ctx context.Context, providerUUID string, in CreateInput) (*offramp.RecipientWallet, error) {
	country, network, err := in.validate()
	if err != nil {
		return nil, err
	}

	payload := backend.CreateWalletPayload{
		CountryCode: country.Code,
		PhoneNumber: currency.JoinPhone(country.DialCode, in.PhoneNumber),
		Network:     string(network),
		AccountName: strings.TrimSpace(in.AccountName),
	}

	wallet, err := s.api.CreateCustomerMobileWallet(ctx, providerUUID, payload)
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("provider_uuid", providerUUID).
		Str("country", country.Code).
		Str("network", payload.Network).
		Msg("Recipient wallet created")

	return wallet, nil
}
