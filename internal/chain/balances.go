package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultRPCGateway is the relay vendor's multi-chain RPC gateway. Any
// supported chain can be queried through it with the same project ID used
// for pairing.
const DefaultRPCGateway = "https://rpc.walletconnect.com/v1/"

// BalanceReader answers native-coin balance lookups on any supported chain
// through a shared JSON-RPC gateway. Connections are cached per chain.
type BalanceReader struct {
	gateway   string
	projectID string

	mu      sync.Mutex
	clients map[string]*rpc.Client
}

// BalanceOption configures the reader.
type BalanceOption func(*BalanceReader)

// WithGateway overrides the RPC gateway base URL (useful for testing).
func WithGateway(gateway string) BalanceOption {
	return func(b *BalanceReader) { b.gateway = gateway }
}

// NewBalanceReader creates a reader authenticated with the given project ID.
func NewBalanceReader(projectID string, opts ...BalanceOption) *BalanceReader {
	b := &BalanceReader{
		gateway:   DefaultRPCGateway,
		projectID: projectID,
		clients:   make(map[string]*rpc.Client),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NativeBalance returns the latest native-coin balance in wei for an
// address on the given chain.
func (b *BalanceReader) NativeBalance(ctx context.Context, chainRef, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	client, err := b.clientFor(ctx, chainRef)
	if err != nil {
		return nil, err
	}

	var balance hexutil.Big
	err = client.CallContext(ctx, &balance, "eth_getBalance", common.HexToAddress(address), "latest")
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getBalance on %s: %v", ErrRPCConnection, chainRef, err)
	}
	return (*big.Int)(&balance), nil
}

func (b *BalanceReader) clientFor(ctx context.Context, chainRef string) (*rpc.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[chainRef]; ok {
		return c, nil
	}

	endpoint := fmt.Sprintf("%s?chainId=%s&projectId=%s",
		b.gateway, url.QueryEscape(chainRef), url.QueryEscape(b.projectID))
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: dial gateway for %s: %v", ErrRPCConnection, chainRef, err)
	}
	b.clients[chainRef] = client
	return client, nil
}

// Close releases all cached gateway connections.
func (b *BalanceReader) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.clients {
		c.Close()
	}
	b.clients = make(map[string]*rpc.Client)
}
