package pairing

import (
	"github.com/3dhome4u/wc-backend/internal/chains"
	"github.com/3dhome4u/wc-backend/internal/walletconnect"
)

// Active is the single (chain, address) pair the backend treats as current
// for a session.
type Active struct {
	ChainID     uint64
	ChainRef    string
	Address     string
	NetworkName string
}

// Reconcile picks the active account from a wallet's raw eip155 grant.
// Pure function; identical input always yields identical output.
//
// Tie-break order: an account on the preferred chain wins outright; if the
// preferred chain is listed as connected but has no matching account, the
// first account's address is paired with the preferred chain (wallets do
// emit this inconsistency, and accepting it beats failing the login); else
// the first parsed account verbatim; else the first connected chain with an
// empty address.
func Reconcile(ns walletconnect.SessionNamespace, preferredRef string) Active {
	accounts := make([]chains.Account, 0, len(ns.Accounts))
	for _, raw := range ns.Accounts {
		acc, err := chains.ParseAccount(raw)
		if err != nil {
			continue
		}
		accounts = append(accounts, acc)
	}

	prefID, prefErr := chains.ParseRef(preferredRef)

	if prefErr == nil {
		for _, acc := range accounts {
			if acc.ChainID == prefID {
				return active(prefID, acc.Address)
			}
		}
		if len(accounts) > 0 && contains(ns.Chains, chains.Ref(prefID)) {
			return active(prefID, accounts[0].Address)
		}
	}

	if len(accounts) > 0 {
		return active(accounts[0].ChainID, accounts[0].Address)
	}

	// No usable accounts at all: fall back to the first connected chain.
	firstRef := chains.DefaultRef
	if len(ns.Chains) > 0 {
		firstRef = ns.Chains[0]
	}
	id, err := chains.ParseRef(firstRef)
	if err != nil {
		id = 1
	}
	return active(id, "")
}

// Addresses extracts every parseable account address, preserving wallet
// order.
func Addresses(ns walletconnect.SessionNamespace) []string {
	out := make([]string, 0, len(ns.Accounts))
	for _, raw := range ns.Accounts {
		if acc, err := chains.ParseAccount(raw); err == nil {
			out = append(out, acc.Address)
		}
	}
	return out
}

func active(id uint64, addr string) Active {
	return Active{
		ChainID:     id,
		ChainRef:    chains.Ref(id),
		Address:     addr,
		NetworkName: chains.Name(id),
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
