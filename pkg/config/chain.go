package config

import (
	"strings"

	"github.com/rahataid/rahat-offramp/pkg/chain"
)

// TokenTable returns the built-in token contracts with the configured ones
// layered on top. A non-zero Decimals applies to the bound token only.
func (c ChainConfig) TokenTable() chain.Tokens {
	tokens := chain.DefaultTokens()
	for symbol, t := range c.Tokens {
		tokens = tokens.With(chain.Token{Symbol: symbol, Address: t.Address, Decimals: t.Decimals})
	}

	if c.Decimals > 0 {
		if tok, err := tokens.Lookup(c.Token); err == nil {
			tok.Decimals = c.Decimals
			tokens = tokens.With(tok)
		}
	}
	return tokens
}

func (c ChainConfig) UsesRPCSigner() bool {
	return strings.EqualFold(c.Signer, "rpc")
}
