package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrencyUnits(t *testing.T) {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	assert.Equal(t, big.NewInt(0), CurrencyUnits(0))
	assert.Equal(t, one, CurrencyUnits(1))
	assert.Equal(t, new(big.Int).Mul(big.NewInt(250), one), CurrencyUnits(250))
}

func TestFromCurrencyUnits(t *testing.T) {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	assert.Equal(t, int64(0), FromCurrencyUnits(nil))
	assert.Equal(t, int64(1), FromCurrencyUnits(one))
	assert.Equal(t, int64(10), FromCurrencyUnits(CurrencyUnits(10)))

	// Fractional units truncate.
	assert.Equal(t, int64(0), FromCurrencyUnits(big.NewInt(999)))
}

func TestParseNativeAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		want    string // wei, decimal
		wantErr bool
	}{
		{name: "whole", amount: "1", want: "1000000000000000000"},
		{name: "fraction", amount: "0.0002", want: "200000000000000"},
		{name: "small fraction", amount: "0.00008", want: "80000000000000"},
		{name: "zero", amount: "0", want: "0"},
		{name: "empty", amount: "", wantErr: true},
		{name: "garbage", amount: "abc", wantErr: true},
		{name: "negative", amount: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNativeAmount(tt.amount)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatNative(t *testing.T) {
	wei, err := ParseNativeAmount("0.0002")
	require.NoError(t, err)
	assert.Equal(t, "0.0002", FormatNative(wei))

	assert.Equal(t, "0", FormatNative(nil))
	assert.Equal(t, "1", FormatNative(CurrencyUnits(1)))
}
