package chain

import (
	"sort"
	"strings"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
)

type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
}

var defaultTokens = []Token{
	{Symbol: "USDC", Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Decimals: 6},
	{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
	{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
	{Symbol: "CUSD", Address: "0x765DE816845861e75A25fCA122bb6898B8B1282a", Decimals: 18},
}

// Tokens maps an upper-case symbol to its contract on the configured chain.
type Tokens map[string]Token

func DefaultTokens() Tokens {
	t := make(Tokens, len(defaultTokens))
	for _, tok := range defaultTokens {
		t[tok.Symbol] = tok
	}
	return t
}

// With returns a copy of t with tok added or replaced.
func (t Tokens) With(tok Token) Tokens {
	out := make(Tokens, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	tok.Symbol = strings.ToUpper(tok.Symbol)
	out[tok.Symbol] = tok
	return out
}

func (t Tokens) Lookup(symbol string) (Token, error) {
	tok, ok := t[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, apperrors.ErrUnsupportedToken.WithDetails(map[string]any{
			"token":     symbol,
			"supported": t.Symbols(),
		})
	}
	return tok, nil
}

func (t Tokens) Symbols() []string {
	out := make([]string, 0, len(t))
	for s := range t {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
