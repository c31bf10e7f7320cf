package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the decimal precision of the chain's native token and
// of GameCurrency.
const NativeDecimals = 18

var unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil)

// CurrencyUnits converts a whole game-currency amount to raw 18-decimal
// on-chain units.
func CurrencyUnits(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), unitScale)
}

// FromCurrencyUnits converts raw on-chain units back to whole tokens,
// truncating any fractional part.
func FromCurrencyUnits(units *big.Int) int64 {
	if units == nil {
		return 0
	}
	return new(big.Int).Div(units, unitScale).Int64()
}

// ParseNativeAmount converts a human-readable native amount ("0.0002") to
// wei. Negative amounts are rejected.
func ParseNativeAmount(amount string) (*big.Int, error) {
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amounts not allowed")
	}
	return d.Shift(NativeDecimals).Truncate(0).BigInt(), nil
}

// FormatNative converts wei to a human-readable native amount string.
func FormatNative(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -NativeDecimals).String()
}
