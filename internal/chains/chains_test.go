package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    uint64
		wantErr bool
	}{
		{name: "mainnet", ref: "eip155:1", want: 1},
		{name: "polygon", ref: "eip155:137", want: 137},
		{name: "missing id", ref: "eip155:", wantErr: true},
		{name: "wrong namespace", ref: "solana:1", wantErr: true},
		{name: "no separator", ref: "eip155", wantErr: true},
		{name: "non-numeric", ref: "eip155:abc", wantErr: true},
		{name: "empty", ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAccount(t *testing.T) {
	acc, err := ParseAccount("eip155:137:0xAbCd000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "eip155", acc.Namespace)
	assert.Equal(t, uint64(137), acc.ChainID)
	assert.Equal(t, "0xAbCd000000000000000000000000000000000001", acc.Address)
	assert.Equal(t, "eip155:137", acc.Ref())

	for _, bad := range []string{"", "eip155:1", "eip155:x:0xabc", "eip155:1:"} {
		_, err := ParseAccount(bad)
		assert.ErrorIs(t, err, ErrInvalidAccount, "input %q", bad)
	}
}

func TestNameAndHexID(t *testing.T) {
	assert.Equal(t, "Polygon", Name(137))
	assert.Equal(t, "Base", Name(8453))
	// Unknown chains fall back to the canonical reference.
	assert.Equal(t, "eip155:99999", Name(99999))

	assert.Equal(t, "0x1", HexID(1))
	assert.Equal(t, "0x89", HexID(137))
	assert.Equal(t, "0xe708", HexID(59144))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("eip155:1"))
	assert.True(t, IsSupported("eip155:43114"))
	assert.False(t, IsSupported("eip155:1234567"))
	assert.False(t, IsSupported("cosmos:1"))
	assert.False(t, IsSupported("garbage"))

	assert.Len(t, Supported(), 10)
}
