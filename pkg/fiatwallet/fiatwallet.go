// Package fiatwallet picks the provider fiat wallet that pays out in the
// recipient's currency.
package fiatwallet

import (
	"context"
	"strings"

	"github.com/rahataid/rahat-offramp/pkg/currency"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

type Lister interface {
	GetFiatWallets(ctx context.Context, providerUUID string) ([]offramp.FiatWallet, error)
}

// Match returns the first wallet whose currency equals the currency of
// countryCode. It never falls back to a wallet in another currency.
func Match(countryCode string, wallets []offramp.FiatWallet) (offramp.FiatWallet, error) {
	cur, ok := currency.CurrencyOf(countryCode)
	if !ok {
		return offramp.FiatWallet{}, apperrors.ErrUnsupportedCountry.WithDetails(countryCode)
	}

	for _, w := range wallets {
		if strings.EqualFold(strings.TrimSpace(w.Currency), cur) {
			return w, nil
		}
	}
	return offramp.FiatWallet{}, apperrors.ErrFiatWalletNotFound.
		WithMessagef("no fiat wallet for currency %s", cur).
		WithDetails(map[string]string{"currency": cur, "country_code": countryCode})
}

// Resolve fetches the provider's fiat wallets and matches them against the
// recipient country.
func Resolve(ctx context.Context, l Lister, providerUUID, countryCode string) (offramp.FiatWallet, error) {
	wallets, err := l.GetFiatWallets(ctx, providerUUID)
	if err != nil {
		return offramp.FiatWallet{}, err
	}
	return Match(countryCode, wallets)
}
