package provider

import (
	"strings"

	"github.com/rahataid/rahat-offramp/pkg/currency"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

// Registry holds the locally known capabilities of each provider, keyed by
// slug. Backend records carry identity; the registry says what the flow must
// collect for them.
type Registry map[string]offramp.Capabilities

func networkNames() []string {
	out := make([]string, len(currency.Networks))
	for i, n := range currency.Networks {
		out[i] = string(n)
	}
	return out
}

// DefaultRegistry lists the providers this client knows how to drive.
func DefaultRegistry() Registry {
	return Registry{
		"kotanipay": {
			Kind:              offramp.KindMobileMoney,
			Enabled:           true,
			Chains:            []int64{1, 137, 8453, 84532},
			Tokens:            []string{"USDC", "USDT", "CUSD"},
			RequiredFields:    []string{"phone_number"},
			WalletLookup:      true,
			FiatWalletMatch:   true,
			SupportedNetworks: networkNames(),
		},
		"rampnetwork": {
			Kind:           offramp.KindBank,
			Enabled:        false,
			Chains:         []int64{1, 137},
			Tokens:         []string{"USDC", "USDT", "DAI"},
			RequiredFields: []string{"iban", "swift", "full_name", "email"},
		},
	}
}

func (r Registry) Lookup(slug string) (offramp.Capabilities, bool) {
	c, ok := r[strings.ToLower(slug)]
	return c, ok
}

// SupportsToken reports whether caps allow token; an empty token list
// allows any.
func SupportsToken(caps offramp.Capabilities, token string) bool {
	if len(caps.Tokens) == 0 {
		return true
	}
	for _, t := range caps.Tokens {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func SupportsChain(caps offramp.Capabilities, chainID int64) bool {
	if len(caps.Chains) == 0 || chainID == 0 {
		return true
	}
	for _, c := range caps.Chains {
		if c == chainID {
			return true
		}
	}
	return false
}
