package billing

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/3dhome4u/wc-backend/internal/chain"
	"github.com/3dhome4u/wc-backend/internal/metrics"
	"github.com/3dhome4u/wc-backend/internal/syncutil"
	"github.com/3dhome4u/wc-backend/internal/validation"
)

// PaymentVerifier checks a claimed payment against chain state without
// side effects.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, txHash, sender, recipient string, minValueWei *big.Int) error
}

// EventEmitter announces settled completions to interested listeners.
// Implementations must be non-blocking.
type EventEmitter interface {
	BillingCompleted(actionType, paymentTxHash, onchainTxHash string)
}

// DefaultConfirmTimeout bounds the wait for a dispatched contract call.
const DefaultConfirmTimeout = 60 * time.Second

// Details carries the per-kind parameters of a completion request.
// Pointer fields distinguish absent from zero where zero is meaningful.
type Details struct {
	ResourceID   int64  `json:"resourceId"`
	Amount       int64  `json:"amount"`
	TokenID      int64  `json:"tokenId"`
	LandID       int64  `json:"landId"`
	BuildingType *int64 `json:"buildingType"`
	Active       *bool  `json:"active"`
}

// QuoteResult answers a price query.
type QuoteResult struct {
	ActionType  ActionType `json:"actionType"`
	PriceWei    string     `json:"priceWei"`
	PriceNative string     `json:"priceNative"`
	Treasury    string     `json:"treasury"`
}

// CompleteRequest finalizes a paid action.
type CompleteRequest struct {
	ActionType    ActionType `json:"actionType"`
	TxHash        string     `json:"txHash"`
	PlayerAddress string     `json:"playerAddress"`
	Details       Details    `json:"details"`
}

// CompleteResult reports the confirmed on-chain effect.
type CompleteResult struct {
	OnchainTxHash string `json:"onchainTxHash"`
}

// Service owns the billing state machine.
type Service struct {
	table          *ActionTable
	verifier       PaymentVerifier
	contracts      chain.GameContracts
	consumed       *ConsumedSet
	treasury       string
	confirmTimeout time.Duration
	logger         *slog.Logger
	emitter        EventEmitter

	// locks serializes completions per payment hash so concurrent calls
	// with the same hash resolve to exactly one dispatch.
	locks syncutil.ShardedMutex
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithConfirmTimeout overrides the dispatch confirmation ceiling.
func WithConfirmTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.confirmTimeout = d }
}

// WithEvents sets a completion event emitter.
func WithEvents(e EventEmitter) ServiceOption {
	return func(s *Service) { s.emitter = e }
}

// NewService creates the billing service.
func NewService(table *ActionTable, verifier PaymentVerifier, contracts chain.GameContracts, treasury string, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		table:          table,
		verifier:       verifier,
		contracts:      contracts,
		consumed:       NewConsumedSet(),
		treasury:       treasury,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote returns the configured price for an action.
func (s *Service) Quote(actionType ActionType) (*QuoteResult, error) {
	action, err := s.table.Lookup(actionType)
	if err != nil {
		return nil, err
	}

	metrics.BillingQuotesTotal.WithLabelValues(string(actionType)).Inc()
	return &QuoteResult{
		ActionType:  actionType,
		PriceWei:    "0x" + action.PriceWei.Text(16),
		PriceNative: chain.FormatNative(action.PriceWei),
		Treasury:    s.treasury,
	}, nil
}

// Complete verifies the claimed payment, consumes it, and performs the
// paid on-chain action. The payment hash is burned the moment dispatch is
// committed: a contract failure after that point does not refund it, the
// player escalates through support instead of minting twice.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	action, err := s.table.Lookup(req.ActionType)
	if err != nil {
		return nil, err
	}

	if !validation.IsValidTxHash(req.TxHash) {
		return nil, fmt.Errorf("%w: txHash", ErrInvalidInput)
	}
	if !common.IsHexAddress(req.PlayerAddress) {
		return nil, fmt.Errorf("%w: playerAddress", ErrInvalidInput)
	}
	if err := validateDetails(action, req.Details); err != nil {
		return nil, err
	}

	// Hex digits are case-insensitive on chain; the consumed set and the
	// per-hash lock must key on one canonical form or a recased hash
	// would spend the same payment twice.
	txHash := strings.ToLower(req.TxHash)

	// Cheap short-circuit before any RPC work.
	if s.consumed.Contains(txHash) {
		metrics.PaymentsReusedTotal.Inc()
		return nil, ErrPaymentReused
	}

	unlock := s.locks.Lock(txHash)
	defer unlock()

	// Re-check under the lock: a racing call may have consumed it.
	if s.consumed.Contains(txHash) {
		metrics.PaymentsReusedTotal.Inc()
		return nil, ErrPaymentReused
	}

	if err := s.verifier.VerifyPayment(ctx, txHash, req.PlayerAddress, s.treasury, action.PriceWei); err != nil {
		// Verification failures leave the hash unconsumed; a pending
		// transaction can be retried once mined.
		s.recordCompletion(action, "verify_failed")
		return nil, err
	}

	player := common.HexToAddress(req.PlayerAddress)

	// Parcel operations mutate someone's land; check ownership before
	// burning the payment so a mistaken landId costs nothing.
	if action.Kind == KindParcel {
		owner, err := s.contracts.OwnerOf(ctx, req.Details.LandID)
		if err != nil {
			s.recordCompletion(action, "onchain_failed")
			return nil, fmt.Errorf("%w: ownerOf: %v", ErrOnchainCall, err)
		}
		if !strings.EqualFold(owner.Hex(), req.PlayerAddress) {
			s.recordCompletion(action, "not_owner")
			return nil, ErrNotOwner
		}
	}

	if !s.consumed.Add(txHash) {
		metrics.PaymentsReusedTotal.Inc()
		return nil, ErrPaymentReused
	}

	s.logger.Info("payment consumed",
		"action", action.Type,
		"txHash", txHash,
		"player", req.PlayerAddress,
	)

	result, err := s.dispatch(ctx, action, player, req.Details)
	if err != nil {
		s.recordCompletion(action, "onchain_failed")
		s.logger.Error("dispatch failed after payment consumed",
			"action", action.Type,
			"txHash", txHash,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrOnchainCall, err)
	}

	confirmed, err := s.contracts.WaitForConfirmation(ctx, result.TxHash, s.confirmTimeout)
	if err != nil {
		s.recordCompletion(action, "onchain_failed")
		return nil, fmt.Errorf("%w: confirm %s: %v", ErrOnchainCall, result.TxHash, err)
	}

	s.recordCompletion(action, "ok")
	if s.emitter != nil {
		s.emitter.BillingCompleted(string(action.Type), txHash, confirmed.TxHash)
	}
	return &CompleteResult{OnchainTxHash: confirmed.TxHash}, nil
}

func (s *Service) dispatch(ctx context.Context, action Action, player common.Address, d Details) (*chain.CallResult, error) {
	timer := prometheus.NewTimer(metrics.OnchainCallDuration.WithLabelValues(string(action.Kind), string(action.Operation)))
	defer timer.ObserveDuration()

	switch action.Kind {
	case KindItem, KindResource:
		if action.Operation == OpMint {
			return s.contracts.MintResource(ctx, player, d.ResourceID, d.Amount)
		}
		return s.contracts.BurnResource(ctx, player, d.ResourceID, d.Amount)

	case KindCurrency:
		if action.Operation == OpMint {
			return s.contracts.MintCurrency(ctx, player, d.Amount)
		}
		return s.contracts.BurnCurrency(ctx, player, d.Amount)

	case KindLand:
		return s.contracts.MintLand(ctx, player, d.TokenID)

	case KindParcel:
		if action.Operation == OpActivateBuilding {
			return s.contracts.ActivateBuilding(ctx, d.LandID, player, uint8(*d.BuildingType))
		}
		return s.contracts.SetBuildingActive(ctx, d.LandID, player, uint8(*d.BuildingType), *d.Active)
	}

	return nil, fmt.Errorf("unsupported kind %q", action.Kind)
}

func validateDetails(action Action, d Details) error {
	switch action.Kind {
	case KindItem, KindResource:
		if d.ResourceID <= 0 {
			return fmt.Errorf("%w: resourceId", ErrInvalidInput)
		}
		if d.Amount <= 0 {
			return fmt.Errorf("%w: amount", ErrInvalidInput)
		}

	case KindCurrency:
		if d.Amount <= 0 {
			return fmt.Errorf("%w: amount (integer tokens)", ErrInvalidInput)
		}

	case KindLand:
		if d.TokenID <= 0 {
			return fmt.Errorf("%w: tokenId", ErrInvalidInput)
		}

	case KindParcel:
		if d.LandID <= 0 {
			return fmt.Errorf("%w: landId", ErrInvalidInput)
		}
		if d.BuildingType == nil || *d.BuildingType < 0 || *d.BuildingType > 5 {
			return fmt.Errorf("%w: buildingType (must be 0..5)", ErrInvalidInput)
		}
		if action.Operation == OpSetBuildingActive && d.Active == nil {
			return fmt.Errorf("%w: 'active' flag required", ErrInvalidInput)
		}
	}
	return nil
}

func (s *Service) recordCompletion(action Action, result string) {
	metrics.BillingCompletionsTotal.WithLabelValues(string(action.Type), result).Inc()
}
