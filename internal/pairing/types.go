// Package pairing implements the wallet login handshake: a client asks for
// a connection URI, a remote wallet approves or rejects it out-of-band, and
// the backend tracks the attempt until it is approved, expired, or swept.
package pairing

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("pairing: attempt not found")
	ErrSessionNotFound  = errors.New("pairing: session not found or not approved")
	ErrAlreadyApproved  = errors.New("pairing: attempt already has a session")
	ErrRequestTimeout   = errors.New("pairing: wallet request timed out")
	ErrAddressMismatch  = errors.New("pairing: transaction sender must match session address")
	ErrMethodNotAllowed = errors.New("pairing: method not allowed")
	ErrInvalidChain     = errors.New("pairing: unsupported chain reference")
)

// Status of a pairing attempt as reported to the polling client.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusExpired  Status = "expired"
	StatusNotFound Status = "not_found"
)

// Session is the durable handle to an approved wallet connection. Address,
// ChainID, ChainRef, and NetworkName describe the active account chosen by
// the reconciler; Addresses and Chains mirror the wallet's full grant.
type Session struct {
	Topic       string   `json:"topic"`
	Addresses   []string `json:"addresses"`
	Chains      []string `json:"chains"`
	Address     string   `json:"address"`
	ChainID     uint64   `json:"chainId"`
	ChainRef    string   `json:"selectedChainRef"`
	NetworkName string   `json:"networkName"`

	// Version counts authoritative wallet updates applied to this session.
	// An optimistic network-switch write only lands if no wallet update
	// arrived since the switch began, so the wallet's own notification
	// always wins regardless of arrival order.
	Version uint64 `json:"-"`
}

// Attempt is one client-initiated handshake awaiting wallet approval.
// Session is nil until the approval continuation assigns it, exactly once.
type Attempt struct {
	ID                string
	CreatedAt         time.Time
	PreferredChainRef string
	Session           *Session
}
