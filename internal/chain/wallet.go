// Package chain handles all blockchain interactions for the game contracts
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrInvalidPrivateKey = errors.New("chain: invalid private key")
	ErrInvalidAddress    = errors.New("chain: invalid address")
	ErrNotConfigured     = errors.New("chain: contract not configured")
	ErrTransactionFailed = errors.New("chain: transaction failed")
	ErrTimeout           = errors.New("chain: operation timed out")
	ErrRPCConnection     = errors.New("chain: RPC connection failed")
)

// CallError wraps contract call failures with context
type CallError struct {
	Op     string // Operation that failed
	TxHash string // Transaction hash if available
	Err    error  // Underlying error
}

func (e *CallError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Interfaces - for testability and flexibility
// -----------------------------------------------------------------------------

// EthClient abstracts go-ethereum client for testing
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	Close()
}

// GameContracts is the on-chain effect surface the billing and game layers
// dispatch into.
type GameContracts interface {
	MintCurrency(ctx context.Context, player common.Address, amount int64) (*CallResult, error)
	BurnCurrency(ctx context.Context, player common.Address, amount int64) (*CallResult, error)
	MintResource(ctx context.Context, player common.Address, resourceID, amount int64) (*CallResult, error)
	BurnResource(ctx context.Context, player common.Address, resourceID, amount int64) (*CallResult, error)
	MintLand(ctx context.Context, player common.Address, tokenID int64) (*CallResult, error)
	OwnerOf(ctx context.Context, landID int64) (common.Address, error)
	ActivateBuilding(ctx context.Context, landID int64, player common.Address, buildingType uint8) (*CallResult, error)
	SetBuildingActive(ctx context.Context, landID int64, player common.Address, buildingType uint8, active bool) (*CallResult, error)
	WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*CallResult, error)
}

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

// Minimal ABIs for the four game contracts. Only the methods this server
// actually invokes are declared.
const gameCurrencyABI = `[
	{"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"mintTo","outputs":[],"type":"function"},
	{"inputs":[{"name":"account","type":"address"},{"name":"amount","type":"uint256"}],"name":"burnFromAccount","outputs":[],"type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const resourceNFTABI = `[
	{"inputs":[{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"name":"mintResource","outputs":[],"type":"function"},
	{"inputs":[{"name":"from","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"name":"burnResource","outputs":[],"type":"function"}
]`

const landNFTABI = `[
	{"inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"name":"mintLand","outputs":[],"type":"function"},
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

const parcelStateABI = `[
	{"inputs":[{"name":"landId","type":"uint256"},{"name":"player","type":"address"},{"name":"buildingType","type":"uint8"}],"name":"activateBuilding","outputs":[],"type":"function"},
	{"inputs":[{"name":"landId","type":"uint256"},{"name":"player","type":"address"},{"name":"buildingType","type":"uint8"},{"name":"active","type":"bool"}],"name":"setBuildingActive","outputs":[],"type":"function"}
]`

const (
	// DefaultGasLimit for contract calls when estimation fails
	DefaultGasLimit = uint64(300000)

	// DefaultConfirmationTimeout for waiting on transactions
	DefaultConfirmationTimeout = 60 * time.Second

	// ConfirmationPollInterval between receipt checks
	ConfirmationPollInterval = 2 * time.Second
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Config for creating a new wallet
type Config struct {
	RPCURL     string
	PrivateKey string // Hex string, 0x prefix optional
	ChainID    int64

	// Contract addresses; empty disables the respective operations.
	GameCurrencyContract string
	ResourceNFTContract  string
	LandNFTContract      string
	ParcelStateContract  string
}

// Option configures the wallet
type Option func(*Wallet)

// WithClient sets a custom Ethereum client (useful for testing)
func WithClient(client EthClient) Option {
	return func(w *Wallet) {
		w.client = client
	}
}

// CallResult contains details of a submitted contract call
type CallResult struct {
	TxHash      string
	From        string
	To          string
	BlockNumber uint64
	GasUsed     uint64
	Nonce       uint64
}

// contract pairs a parsed ABI with its deployed address. A nil contract
// means the address was not configured.
type contract struct {
	address common.Address
	abi     abi.ABI
}

// Wallet signs and submits game contract calls with the server key
type Wallet struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	currency *contract
	resource *contract
	land     *contract
	parcel   *contract
}

// Compile-time interface check
var _ GameContracts = (*Wallet)(nil)

// New creates a new Wallet instance
func New(cfg Config, opts ...Option) (*Wallet, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	w := &Wallet{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		chainID:    big.NewInt(cfg.ChainID),
	}

	if w.currency, err = bindContract(cfg.GameCurrencyContract, gameCurrencyABI); err != nil {
		return nil, fmt.Errorf("GameCurrency: %w", err)
	}
	if w.resource, err = bindContract(cfg.ResourceNFTContract, resourceNFTABI); err != nil {
		return nil, fmt.Errorf("ResourceNFT: %w", err)
	}
	if w.land, err = bindContract(cfg.LandNFTContract, landNFTABI); err != nil {
		return nil, fmt.Errorf("LandNFT: %w", err)
	}
	if w.parcel, err = bindContract(cfg.ParcelStateContract, parcelStateABI); err != nil {
		return nil, fmt.Errorf("ParcelState: %w", err)
	}

	// Apply options
	for _, opt := range opts {
		opt(w)
	}

	// Connect to RPC if no client provided
	if w.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		w.client = client
	}

	return w, nil
}

func validateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("%w: private key required", ErrInvalidPrivateKey)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("chain ID required")
	}
	return nil
}

func bindContract(address, rawABI string) (*contract, error) {
	if address == "" {
		return nil, nil
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &contract{address: common.HexToAddress(address), abi: parsed}, nil
}

// Address returns the server wallet's address
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Client returns the underlying RPC client so other components (the payment
// verifier) can share the connection.
func (w *Wallet) Client() EthClient {
	return w.client
}

// HasCurrency reports whether the GameCurrency contract is configured.
func (w *Wallet) HasCurrency() bool { return w.currency != nil }

// HasResource reports whether the ResourceNFT contract is configured.
func (w *Wallet) HasResource() bool { return w.resource != nil }

// HasLand reports whether the LandNFT contract is configured.
func (w *Wallet) HasLand() bool { return w.land != nil }

// HasParcel reports whether the ParcelState contract is configured.
func (w *Wallet) HasParcel() bool { return w.parcel != nil }

// -----------------------------------------------------------------------------
// Contract operations
// -----------------------------------------------------------------------------

// MintCurrency mints whole game-currency tokens to a player.
func (w *Wallet) MintCurrency(ctx context.Context, player common.Address, amount int64) (*CallResult, error) {
	return w.submit(ctx, w.currency, "mintTo", player, CurrencyUnits(amount))
}

// BurnCurrency burns whole game-currency tokens from a player.
func (w *Wallet) BurnCurrency(ctx context.Context, player common.Address, amount int64) (*CallResult, error) {
	return w.submit(ctx, w.currency, "burnFromAccount", player, CurrencyUnits(amount))
}

// MintResource mints amount units of a resource token to a player.
func (w *Wallet) MintResource(ctx context.Context, player common.Address, resourceID, amount int64) (*CallResult, error) {
	return w.submit(ctx, w.resource, "mintResource", player, big.NewInt(resourceID), big.NewInt(amount), []byte{})
}

// BurnResource burns amount units of a resource token from a player.
func (w *Wallet) BurnResource(ctx context.Context, player common.Address, resourceID, amount int64) (*CallResult, error) {
	return w.submit(ctx, w.resource, "burnResource", player, big.NewInt(resourceID), big.NewInt(amount))
}

// MintLand mints a land parcel token to a player.
func (w *Wallet) MintLand(ctx context.Context, player common.Address, tokenID int64) (*CallResult, error) {
	return w.submit(ctx, w.land, "mintLand", player, big.NewInt(tokenID))
}

// OwnerOf returns the current owner of a land parcel.
func (w *Wallet) OwnerOf(ctx context.Context, landID int64) (common.Address, error) {
	if w.land == nil {
		return common.Address{}, fmt.Errorf("%w: LandNFT", ErrNotConfigured)
	}

	data, err := w.land.abi.Pack("ownerOf", big.NewInt(landID))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack ownerOf call: %w", err)
	}

	result, err := w.client.CallContract(ctx, ethereum.CallMsg{
		To:   &w.land.address,
		Data: data,
	}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to call ownerOf: %w", err)
	}
	if len(result) < common.AddressLength {
		return common.Address{}, fmt.Errorf("ownerOf returned %d bytes", len(result))
	}

	return common.BytesToAddress(result), nil
}

// ActivateBuilding records a new building on a parcel.
func (w *Wallet) ActivateBuilding(ctx context.Context, landID int64, player common.Address, buildingType uint8) (*CallResult, error) {
	return w.submit(ctx, w.parcel, "activateBuilding", big.NewInt(landID), player, buildingType)
}

// SetBuildingActive toggles an existing building on a parcel.
func (w *Wallet) SetBuildingActive(ctx context.Context, landID int64, player common.Address, buildingType uint8, active bool) (*CallResult, error) {
	return w.submit(ctx, w.parcel, "setBuildingActive", big.NewInt(landID), player, buildingType, active)
}

// CurrencyBalanceOf returns a player's GameCurrency balance in raw units.
func (w *Wallet) CurrencyBalanceOf(ctx context.Context, player common.Address) (*big.Int, error) {
	if w.currency == nil {
		return nil, fmt.Errorf("%w: GameCurrency", ErrNotConfigured)
	}

	data, err := w.currency.abi.Pack("balanceOf", player)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	result, err := w.client.CallContract(ctx, ethereum.CallMsg{
		To:   &w.currency.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

// submit packs, signs, and sends one contract call
func (w *Wallet) submit(ctx context.Context, c *contract, method string, args ...interface{}) (*CallResult, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, method)
	}

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, &CallError{Op: method + "/pack", Err: err}
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, &CallError{Op: method + "/nonce", Err: err}
	}

	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &CallError{Op: method + "/gas_price", Err: err}
	}

	gasLimit, err := w.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &c.address,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		// Use default if estimation fails
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, c.address, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.privateKey)
	if err != nil {
		return nil, &CallError{Op: method + "/sign", Err: err}
	}

	if err := w.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, &CallError{Op: method + "/send", TxHash: signedTx.Hash().Hex(), Err: err}
	}

	return &CallResult{
		TxHash: signedTx.Hash().Hex(),
		From:   w.address.Hex(),
		To:     c.address.Hex(),
		Nonce:  nonce,
	}, nil
}

// WaitForConfirmation waits for a transaction to be mined
func (w *Wallet) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*CallResult, error) {
	hash := common.HexToHash(txHash)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(ConfirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, txHash)
			}
			return nil, ctx.Err()

		case <-ticker.C:
			receipt, err := w.client.TransactionReceipt(ctx, hash)
			if err != nil {
				// Transaction not yet mined, continue waiting
				continue
			}

			if receipt.Status == 0 {
				return nil, &CallError{
					Op:     "confirm",
					TxHash: txHash,
					Err:    ErrTransactionFailed,
				}
			}

			return &CallResult{
				TxHash:      txHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}
	}
}

// Close closes the client connection
func (w *Wallet) Close() error {
	if w.client != nil {
		w.client.Close()
	}
	return nil
}
