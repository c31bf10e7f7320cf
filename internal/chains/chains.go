// Package chains is the static registry of EVM networks the bridge supports.
package chains

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Namespace is the only account namespace the bridge speaks.
const Namespace = "eip155"

var (
	ErrInvalidRef     = errors.New("chains: invalid chain reference")
	ErrInvalidAccount = errors.New("chains: invalid account string")
)

// names maps eip155 chain IDs to display names shown to the player.
var names = map[uint64]string{
	1:     "Ethereum Mainnet",
	56:    "BNB Chain",
	97:    "BNB Testnet",
	137:   "Polygon",
	59144: "Linea",
	25:    "Cronos",
	338:   "Cronos Testnet",
	42161: "Arbitrum One",
	43114: "Avalanche C-Chain",
	8453:  "Base",
}

// DefaultRef is the chain requested when the caller does not pick one.
// Single-chain namespaces maximize wallet compatibility: several mobile
// wallets fail to render an approval UI for multi-chain proposals.
const DefaultRef = "eip155:1"

// Name returns the display name for a chain ID, falling back to the
// canonical reference for unknown chains.
func Name(id uint64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return Ref(id)
}

// Ref builds the canonical "eip155:<id>" reference.
func Ref(id uint64) string {
	return fmt.Sprintf("%s:%d", Namespace, id)
}

// HexID returns the 0x-prefixed hex chain ID used by
// wallet_switchEthereumChain.
func HexID(id uint64) string {
	return "0x" + strconv.FormatUint(id, 16)
}

// ParseRef parses an "eip155:<id>" reference.
func ParseRef(ref string) (uint64, error) {
	ns, rest, ok := strings.Cut(ref, ":")
	if !ok || ns != Namespace {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return id, nil
}

// IsSupported reports whether a chain reference names a registered network.
func IsSupported(ref string) bool {
	id, err := ParseRef(ref)
	if err != nil {
		return false
	}
	_, ok := names[id]
	return ok
}

// Supported returns all registered chain references.
func Supported() []string {
	refs := make([]string, 0, len(names))
	for id := range names {
		refs = append(refs, Ref(id))
	}
	return refs
}

// Account is a parsed "namespace:chainId:address" triple from a wallet
// approval payload.
type Account struct {
	Namespace string
	ChainID   uint64
	Address   string
}

// Ref returns the chain reference of the account's network.
func (a Account) Ref() string {
	return Ref(a.ChainID)
}

// ParseAccount parses a wallet-reported account string. Wallet payloads are
// loosely typed, so malformed entries return an error instead of panicking
// on a missing segment.
func ParseAccount(s string) (Account, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	if parts[2] == "" {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	return Account{Namespace: parts[0], ChainID: id, Address: parts[2]}, nil
}
