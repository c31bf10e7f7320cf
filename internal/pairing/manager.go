package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/3dhome4u/wc-backend/internal/chains"
	"github.com/3dhome4u/wc-backend/internal/idgen"
	"github.com/3dhome4u/wc-backend/internal/metrics"
	"github.com/3dhome4u/wc-backend/internal/retry"
	"github.com/3dhome4u/wc-backend/internal/walletconnect"
)

// ErrInvalidParams rejects malformed request parameters.
var ErrInvalidParams = errors.New("pairing: invalid request params")

const (
	// DefaultTTL bounds how long an unapproved attempt survives. Mobile
	// wallet approval is slow in practice, so the longer observed window
	// is the default.
	DefaultTTL = 10 * time.Minute

	// DefaultRequestTimeout bounds any single wallet-protocol round trip.
	DefaultRequestTimeout = 120 * time.Second

	// connectRetryDelay separates the two connect attempts made when the
	// sign-client is slow to surface a URI.
	connectRetryDelay = 500 * time.Millisecond
)

// sessionMethods are requested from the wallet at pairing time.
var sessionMethods = []string{
	"personal_sign",
	"eth_accounts",
	"eth_chainId",
	"wallet_switchEthereumChain",
	"eth_sendTransaction",
	"eth_signTypedData",
	"eth_signTypedData_v4",
	"eth_call",
	"eth_estimateGas",
}

// allowedMethods is the dispatch allow-list. Anything outside it is refused
// before touching the wallet; the bridge is not an arbitrary passthrough.
var allowedMethods = map[string]bool{
	"eth_sendTransaction":        true,
	"eth_call":                   true,
	"eth_sign":                   true,
	"personal_sign":              true,
	"eth_signTypedData":          true,
	"eth_signTypedData_v4":       true,
	"wallet_switchEthereumChain": true,
	"eth_estimateGas":            true,
	"eth_getBalance":             true,
}

// EventEmitter pushes lifecycle events to interested listeners (the
// realtime hub). All methods must be non-blocking.
type EventEmitter interface {
	PairingApproved(id string, session *Session)
	NetworkSwitched(topic, chainRef string)
	SessionDisconnected(topic string)
}

// Manager owns the pairing lifecycle: it creates attempts against the
// wallet-protocol client, resolves approvals into sessions, answers status
// polls, and dispatches requests at approved sessions.
type Manager struct {
	client         walletconnect.Client
	store          Store
	ttl            time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger
	emitter        EventEmitter
}

// Option configures the manager.
type Option func(*Manager)

// WithTTL overrides the pairing TTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithRequestTimeout overrides the wallet round-trip ceiling.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) { m.requestTimeout = d }
}

// WithEvents sets a lifecycle event emitter.
func WithEvents(e EventEmitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// NewManager creates a session lifecycle manager.
func NewManager(client walletconnect.Client, store Store, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		client:         client,
		store:          store,
		ttl:            DefaultTTL,
		requestTimeout: DefaultRequestTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured pairing TTL.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CreateResult is returned to the client that initiated a pairing.
type CreateResult struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreatePairing proposes a new pairing restricted to a single chain and
// registers the attempt. The approval continuation runs in the background:
// on approval the reconciled session is attached to the attempt, on
// rejection the attempt is removed so polls read not_found.
func (m *Manager) CreatePairing(ctx context.Context, preferredChain string) (*CreateResult, error) {
	selected := chains.DefaultRef
	if chains.IsSupported(preferredChain) {
		selected = preferredChain
	}

	namespaces := map[string]walletconnect.Namespace{
		chains.Namespace: {
			Methods: sessionMethods,
			Chains:  []string{selected},
			Events:  []string{},
		},
	}

	// The sign-client occasionally yields no URI on the first call while
	// its relay connection warms up; one more attempt after a short delay
	// covers that. Anything beyond two attempts is the caller's problem.
	var wc *walletconnect.Pairing
	err := retry.Do(ctx, 2, connectRetryDelay, func() error {
		p, err := m.client.Connect(ctx, namespaces)
		if err != nil {
			return err
		}
		wc = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", walletconnect.ErrConnect, err)
	}

	attempt := &Attempt{
		ID:                idgen.New(),
		CreatedAt:         time.Now(),
		PreferredChainRef: selected,
	}
	if err := m.store.Put(ctx, attempt); err != nil {
		return nil, fmt.Errorf("pairing: store attempt: %w", err)
	}

	go m.awaitApproval(attempt.ID, selected, wc.Approval)

	metrics.PairingsCreatedTotal.Inc()
	metrics.ActivePairings.Inc()
	m.logger.Info("pairing created", "id", attempt.ID, "chain", selected)

	return &CreateResult{
		ID:        attempt.ID,
		URI:       CleanURI(wc.URI),
		ExpiresAt: attempt.CreatedAt.Add(m.ttl),
	}, nil
}

// awaitApproval is the background continuation for one attempt. It is the
// only writer of the attempt's session.
func (m *Manager) awaitApproval(id, preferredRef string, approval func(context.Context) (*walletconnect.SessionPayload, error)) {
	// The approval has no reason to outlive the attempt's own TTL.
	ctx, cancel := context.WithTimeout(context.Background(), m.ttl)
	defer cancel()

	payload, err := approval(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Ran out the TTL without an answer. Leave the attempt in
			// place: the status poll and the sweeper own expiry, and
			// each reports it exactly once.
			m.logger.Info("pairing approval timed out", "id", id)
			return
		}
		// Declined: remove the attempt so the poller reads not_found
		// instead of a pending that never ends.
		_ = m.store.Delete(context.Background(), id)
		metrics.PairingsResolvedTotal.WithLabelValues("rejected").Inc()
		metrics.ActivePairings.Dec()
		m.logger.Warn("pairing approval rejected", "id", id, "error", err)
		return
	}

	ns := payload.Namespaces[chains.Namespace]
	act := Reconcile(ns, preferredRef)
	session := &Session{
		Topic:       payload.Topic,
		Addresses:   Addresses(ns),
		Chains:      append([]string(nil), ns.Chains...),
		Address:     act.Address,
		ChainID:     act.ChainID,
		ChainRef:    act.ChainRef,
		NetworkName: act.NetworkName,
	}

	if err := m.store.AttachSession(context.Background(), id, session); err != nil {
		// Attempt already swept or expired; the wallet approved too late.
		m.logger.Warn("approval arrived for missing attempt", "id", id, "error", err)
		return
	}

	metrics.PairingsResolvedTotal.WithLabelValues("approved").Inc()
	m.logger.Info("pairing approved",
		"id", id,
		"topic", session.Topic,
		"chain", session.ChainRef,
		"address", session.Address,
	)
	if m.emitter != nil {
		m.emitter.PairingApproved(id, session)
	}
}

// StatusResult answers a status poll. Session is set only when approved.
type StatusResult struct {
	Status  Status
	Session *Session
}

// Status reports the current state of an attempt. Detecting expiry deletes
// the attempt, so "expired" is observed exactly once and subsequent polls
// read not_found.
func (m *Manager) Status(ctx context.Context, id string) (*StatusResult, error) {
	attempt, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &StatusResult{Status: StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if attempt.Session != nil {
		return &StatusResult{Status: StatusApproved, Session: attempt.Session}, nil
	}

	if time.Since(attempt.CreatedAt) > m.ttl {
		removed, err := m.store.DeleteIfUnapproved(ctx, id)
		if err != nil {
			return nil, err
		}
		if !removed {
			// An approval or a concurrent delete landed after the read
			// above; an approved session must never revert to expired.
			fresh, err := m.store.Get(ctx, id)
			if err == nil && fresh.Session != nil {
				return &StatusResult{Status: StatusApproved, Session: fresh.Session}, nil
			}
			return &StatusResult{Status: StatusNotFound}, nil
		}
		metrics.ActivePairings.Dec()
		return &StatusResult{Status: StatusExpired}, nil
	}

	return &StatusResult{Status: StatusPending}, nil
}

// SwitchNetwork asks the wallet to change chains and optimistically updates
// the session. The wallet's own session_update remains authoritative: the
// optimistic write is skipped if an update landed while the request was in
// flight, and any later update overwrites it.
func (m *Manager) SwitchNetwork(ctx context.Context, topic, targetRef string) error {
	if !chains.IsSupported(targetRef) {
		return ErrInvalidChain
	}
	targetID, _ := chains.ParseRef(targetRef)

	session, err := m.store.FindByTopic(ctx, topic)
	if err != nil {
		return ErrSessionNotFound
	}
	versionBefore := session.Version

	_, err = m.request(ctx, walletconnect.RequestParams{
		Topic:   topic,
		ChainID: targetRef,
		Method:  "wallet_switchEthereumChain",
		Params:  []any{map[string]string{"chainId": chains.HexID(targetID)}},
	})
	if err != nil {
		return err
	}

	_, _ = m.store.UpdateByTopic(ctx, topic, func(a *Attempt) {
		s := a.Session
		if s.Version != versionBefore {
			return // a wallet update won the race
		}
		s.ChainID = targetID
		s.ChainRef = targetRef
		s.NetworkName = chains.Name(targetID)
	})

	m.logger.Info("network switch requested", "topic", topic, "chain", targetRef)
	if m.emitter != nil {
		m.emitter.NetworkSwitched(topic, targetRef)
	}
	return nil
}

// DispatchRequest forwards an allow-listed JSON-RPC method to the wallet on
// behalf of an approved session. For value transfers the from address must
// be the session's active address; the approval handshake decided who this
// session may act as, and no caller gets to widen that.
func (m *Manager) DispatchRequest(ctx context.Context, topic, method string, params []any, chainRef string) (json.RawMessage, error) {
	if !allowedMethods[method] {
		return nil, ErrMethodNotAllowed
	}

	session, err := m.store.FindByTopic(ctx, topic)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	effectiveRef := chainRef
	if effectiveRef == "" {
		effectiveRef = session.ChainRef
	}
	if effectiveRef == "" {
		effectiveRef = chains.Ref(session.ChainID)
	}

	if method == "eth_sendTransaction" {
		if len(params) == 0 {
			return nil, fmt.Errorf("%w: eth_sendTransaction expects params[0] tx object", ErrInvalidParams)
		}
		tx, ok := params[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: eth_sendTransaction expects params[0] tx object", ErrInvalidParams)
		}
		switch from := tx["from"].(type) {
		case nil:
			tx["from"] = session.Address
		case string:
			if from == "" {
				tx["from"] = session.Address
			} else if !strings.EqualFold(from, session.Address) {
				return nil, ErrAddressMismatch
			}
		default:
			return nil, fmt.Errorf("%w: invalid 'from' field", ErrInvalidParams)
		}
	}

	return m.request(ctx, walletconnect.RequestParams{
		Topic:   topic,
		ChainID: effectiveRef,
		Method:  method,
		Params:  params,
	})
}

// request performs one bounded wallet round trip.
func (m *Manager) request(ctx context.Context, req walletconnect.RequestParams) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.WalletRequestDuration.WithLabelValues(req.Method))
	defer timer.ObserveDuration()

	result, err := m.client.Request(reqCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("pairing: wallet request: %w", err)
	}
	return result, nil
}

// Run consumes the wallet's out-of-band notifications until ctx is done.
// Subscribe once at startup; updates are dispatched into the store by topic.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("pairing notification loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.client.Events():
			if !ok {
				m.logger.Warn("wallet event channel closed")
				return
			}
			switch ev.Type {
			case walletconnect.EventSessionUpdate:
				m.applySessionUpdate(ctx, ev)
			case walletconnect.EventSessionDelete:
				m.applySessionDelete(ctx, ev.Topic)
			}
		}
	}
}

// applySessionUpdate applies an authoritative wallet update. Version is
// bumped so a racing optimistic switch write cannot clobber it.
func (m *Manager) applySessionUpdate(ctx context.Context, ev walletconnect.Event) {
	ns, ok := ev.Namespaces[chains.Namespace]
	if !ok {
		return
	}
	matched, _ := m.store.UpdateByTopic(ctx, ev.Topic, func(a *Attempt) {
		act := Reconcile(ns, a.PreferredChainRef)
		s := a.Session
		s.Addresses = Addresses(ns)
		s.Chains = append([]string(nil), ns.Chains...)
		s.Address = act.Address
		s.ChainID = act.ChainID
		s.ChainRef = act.ChainRef
		s.NetworkName = act.NetworkName
		s.Version++
	})
	if matched {
		m.logger.Info("session updated by wallet", "topic", ev.Topic)
	}
}

// applySessionDelete removes the attempts backing a disconnected session.
// A disconnected topic reads as not_found, never as a revived pending.
func (m *Manager) applySessionDelete(ctx context.Context, topic string) {
	if err := m.store.DeleteByTopic(ctx, topic); err != nil {
		m.logger.Warn("failed to remove disconnected session", "topic", topic, "error", err)
		return
	}
	metrics.ActivePairings.Dec()
	m.logger.Info("session disconnected by wallet", "topic", topic)
	if m.emitter != nil {
		m.emitter.SessionDisconnected(topic)
	}
}
