// Package walletconnect binds the bridge to the external wallet-protocol
// sign-client. The protocol's wire format is opaque to this backend: the
// sign-client runs as a sidecar next to the relay, and this package speaks
// a small JSON framing to it over a websocket.
package walletconnect

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrConnect      = errors.New("walletconnect: could not establish pairing")
	ErrRejected     = errors.New("walletconnect: approval rejected")
	ErrClosed       = errors.New("walletconnect: client closed")
	ErrRequestError = errors.New("walletconnect: request failed")
)

// Namespace describes the chains, methods, and events requested from the
// wallet for one account family.
type Namespace struct {
	Methods []string `json:"methods"`
	Chains  []string `json:"chains"`
	Events  []string `json:"events"`
}

// SessionNamespace is the wallet's granted counterpart of a Namespace.
// Accounts are "namespace:chainId:address" strings in wallet-controlled
// order.
type SessionNamespace struct {
	Accounts []string `json:"accounts"`
	Chains   []string `json:"chains"`
}

// SessionPayload is the raw approval result for a pairing proposal.
type SessionPayload struct {
	Topic      string                      `json:"topic"`
	Namespaces map[string]SessionNamespace `json:"namespaces"`
}

// Pairing is the result of Connect: a display URI plus a deferred approval.
// Approval blocks until the remote wallet approves (returning the session)
// or rejects (returning ErrRejected), or ctx is done.
type Pairing struct {
	URI      string
	Approval func(ctx context.Context) (*SessionPayload, error)
}

// RequestParams addresses a JSON-RPC request at an approved session.
type RequestParams struct {
	Topic   string `json:"topic"`
	ChainID string `json:"chainId"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// EventType labels out-of-band session notifications from the wallet.
type EventType string

const (
	EventSessionUpdate EventType = "session_update"
	EventSessionDelete EventType = "session_delete"
)

// Event is an out-of-band notification. Namespaces is set for updates only.
type Event struct {
	Type       EventType
	Topic      string
	Namespaces map[string]SessionNamespace
}

// Client is the wallet-protocol collaborator the session lifecycle runs
// against. Implementations must deliver all out-of-band notifications on
// the single Events channel.
type Client interface {
	// Connect proposes a pairing restricted to the given namespaces and
	// returns the connection URI plus the deferred approval.
	Connect(ctx context.Context, namespaces map[string]Namespace) (*Pairing, error)

	// Request performs a JSON-RPC request against an approved session.
	Request(ctx context.Context, req RequestParams) (json.RawMessage, error)

	// Events returns the inbound notification channel. The channel is
	// closed when the client shuts down.
	Events() <-chan Event

	Close() error
}
