package chain

import (
	"math/big"

	"github.com/shopspring/decimal"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
)

// ToBaseUnits converts a human amount into the token's smallest unit. An
// amount with more fractional digits than the token supports is rejected
// instead of rounded, so the escrow receives exactly what was requested.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, apperrors.ErrInvalidAmount.WithMessagef(
			"amount %s has more than %d decimal places", amount.String(), decimals)
	}
	return scaled.BigInt(), nil
}

func FromBaseUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -decimals)
}
