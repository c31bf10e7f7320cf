package realtime

import (
	"time"

	"github.com/3dhome4u/wc-backend/internal/billing"
	"github.com/3dhome4u/wc-backend/internal/pairing"
)

// Emitter adapts the hub to the session lifecycle and billing layers.
// All methods are non-blocking: Broadcast drops events when the hub is
// saturated rather than stalling the caller.
type Emitter struct {
	hub *Hub
}

// NewEmitter wraps a hub.
func NewEmitter(hub *Hub) *Emitter {
	return &Emitter{hub: hub}
}

var (
	_ pairing.EventEmitter = (*Emitter)(nil)
	_ billing.EventEmitter = (*Emitter)(nil)
)

// PairingApproved announces a wallet approval.
func (e *Emitter) PairingApproved(id string, session *pairing.Session) {
	e.hub.Broadcast(&Event{
		Type:      EventPairingApproved,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"pairingId": id,
			"topic":     session.Topic,
			"address":   session.Address,
			"chainRef":  session.ChainRef,
		},
	})
}

// NetworkSwitched announces a chain change on a live session.
func (e *Emitter) NetworkSwitched(topic, chainRef string) {
	e.hub.Broadcast(&Event{
		Type:      EventNetworkSwitched,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"topic":    topic,
			"chainRef": chainRef,
		},
	})
}

// SessionDisconnected announces a wallet-initiated disconnect.
func (e *Emitter) SessionDisconnected(topic string) {
	e.hub.Broadcast(&Event{
		Type:      EventSessionDisconnected,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"topic": topic,
		},
	})
}

// BillingCompleted announces a settled billing action.
func (e *Emitter) BillingCompleted(actionType, paymentTxHash, onchainTxHash string) {
	e.hub.Broadcast(&Event{
		Type:      EventBillingCompleted,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"actionType":    actionType,
			"paymentTxHash": paymentTxHash,
			"onchainTxHash": onchainTxHash,
		},
	})
}
