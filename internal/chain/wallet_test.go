package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testCurrency   = "0x1000000000000000000000000000000000000001"
	testResource   = "0x1000000000000000000000000000000000000002"
	testLand       = "0x1000000000000000000000000000000000000003"
	testParcel     = "0x1000000000000000000000000000000000000004"
)

type fakeEthClient struct {
	nonce       uint64
	gasPrice    *big.Int
	estimateErr error
	sendErr     error
	sentTxs     []*types.Transaction

	txs      map[common.Hash]*types.Transaction
	pending  map[common.Hash]bool
	receipts map[common.Hash]*types.Receipt

	callResult []byte
	callErr    error
	callMsgs   []ethereum.CallMsg
}

var _ EthClient = (*fakeEthClient)(nil)

func newFakeEthClient() *fakeEthClient {
	return &fakeEthClient{
		gasPrice: big.NewInt(1_000_000_000),
		txs:      make(map[common.Hash]*types.Transaction),
		pending:  make(map[common.Hash]bool),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeEthClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 120000, nil
}

func (f *fakeEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTxs = append(f.sentTxs, tx)
	return nil
}

func (f *fakeEthClient) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.txs[txHash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, f.pending[txHash], nil
}

func (f *fakeEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeEthClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.callMsgs = append(f.callMsgs, call)
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callResult, nil
}

func (f *fakeEthClient) NetworkID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(97), nil
}

func (f *fakeEthClient) Close() {}

func newTestWallet(t *testing.T, client EthClient) *Wallet {
	t.Helper()
	w, err := New(Config{
		RPCURL:               "http://localhost:8545",
		PrivateKey:           testPrivateKey,
		ChainID:              97,
		GameCurrencyContract: testCurrency,
		ResourceNFTContract:  testResource,
		LandNFTContract:      testLand,
		ParcelStateContract:  testParcel,
	}, WithClient(client))
	require.NoError(t, err)
	return w
}

// lastCalldata decodes the method and args of the last submitted tx against
// the given ABI.
func lastCalldata(t *testing.T, client *fakeEthClient, rawABI, method string) []interface{} {
	t.Helper()
	require.NotEmpty(t, client.sentTxs)
	data := client.sentTxs[len(client.sentTxs)-1].Data()

	parsed, err := abi.JSON(strings.NewReader(rawABI))
	require.NoError(t, err)
	m := parsed.Methods[method]
	require.Equal(t, m.ID, data[:4], "unexpected method selector")

	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return args
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing rpc url", cfg: Config{PrivateKey: testPrivateKey, ChainID: 97}},
		{name: "missing key", cfg: Config{RPCURL: "http://x", ChainID: 97}},
		{name: "short key", cfg: Config{RPCURL: "http://x", PrivateKey: "abcd", ChainID: 97}},
		{name: "missing chain id", cfg: Config{RPCURL: "http://x", PrivateKey: testPrivateKey}},
		{
			name: "bad contract address",
			cfg: Config{
				RPCURL: "http://x", PrivateKey: testPrivateKey, ChainID: 97,
				GameCurrencyContract: "not-an-address",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, WithClient(newFakeEthClient()))
			assert.Error(t, err)
		})
	}
}

func TestUnconfiguredContractsAreOptional(t *testing.T) {
	w, err := New(Config{
		RPCURL:     "http://localhost:8545",
		PrivateKey: testPrivateKey,
		ChainID:    97,
	}, WithClient(newFakeEthClient()))
	require.NoError(t, err)

	assert.False(t, w.HasCurrency())
	assert.False(t, w.HasLand())

	_, err = w.MintCurrency(context.Background(), common.Address{}, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = w.OwnerOf(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMintCurrencyScalesAmount(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)
	player := common.HexToAddress("0x2000000000000000000000000000000000000001")

	result, err := w.MintCurrency(context.Background(), player, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TxHash)
	assert.Equal(t, common.HexToAddress(testCurrency).Hex(), result.To)

	args := lastCalldata(t, client, gameCurrencyABI, "mintTo")
	assert.Equal(t, player, args[0])
	assert.Equal(t, CurrencyUnits(10), args[1])
}

func TestBurnCurrency(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)
	player := common.HexToAddress("0x2000000000000000000000000000000000000001")

	_, err := w.BurnCurrency(context.Background(), player, 3)
	require.NoError(t, err)

	args := lastCalldata(t, client, gameCurrencyABI, "burnFromAccount")
	assert.Equal(t, player, args[0])
	assert.Equal(t, CurrencyUnits(3), args[1])
}

func TestMintResource(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)
	player := common.HexToAddress("0x2000000000000000000000000000000000000002")

	_, err := w.MintResource(context.Background(), player, 5, 20)
	require.NoError(t, err)

	args := lastCalldata(t, client, resourceNFTABI, "mintResource")
	assert.Equal(t, player, args[0])
	assert.Equal(t, big.NewInt(5), args[1])
	assert.Equal(t, big.NewInt(20), args[2])
	assert.Empty(t, args[3])
}

func TestBurnResource(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)
	player := common.HexToAddress("0x2000000000000000000000000000000000000002")

	_, err := w.BurnResource(context.Background(), player, 5, 8)
	require.NoError(t, err)

	args := lastCalldata(t, client, resourceNFTABI, "burnResource")
	assert.Equal(t, player, args[0])
	assert.Equal(t, big.NewInt(5), args[1])
	assert.Equal(t, big.NewInt(8), args[2])
}

func TestMintLand(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)
	player := common.HexToAddress("0x2000000000000000000000000000000000000003")

	_, err := w.MintLand(context.Background(), player, 7)
	require.NoError(t, err)

	args := lastCalldata(t, client, landNFTABI, "mintLand")
	assert.Equal(t, player, args[0])
	assert.Equal(t, big.NewInt(7), args[1])
}

func TestOwnerOf(t *testing.T) {
	client := newFakeEthClient()
	owner := common.HexToAddress("0x2000000000000000000000000000000000000009")
	client.callResult = common.LeftPadBytes(owner.Bytes(), 32)

	w := newTestWallet(t, client)
	got, err := w.OwnerOf(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	require.Len(t, client.callMsgs, 1)
	assert.Equal(t, common.HexToAddress(testLand), *client.callMsgs[0].To)
}

func TestParcelOperations(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)
	player := common.HexToAddress("0x2000000000000000000000000000000000000004")

	_, err := w.ActivateBuilding(context.Background(), 11, player, 3)
	require.NoError(t, err)
	args := lastCalldata(t, client, parcelStateABI, "activateBuilding")
	assert.Equal(t, big.NewInt(11), args[0])
	assert.Equal(t, player, args[1])
	assert.Equal(t, uint8(3), args[2])

	_, err = w.SetBuildingActive(context.Background(), 11, player, 3, false)
	require.NoError(t, err)
	args = lastCalldata(t, client, parcelStateABI, "setBuildingActive")
	assert.Equal(t, big.NewInt(11), args[0])
	assert.Equal(t, player, args[1])
	assert.Equal(t, uint8(3), args[2])
	assert.Equal(t, false, args[3])
}

func TestSubmitSendFailure(t *testing.T) {
	client := newFakeEthClient()
	client.sendErr = errors.New("nonce too low")
	w := newTestWallet(t, client)

	_, err := w.MintCurrency(context.Background(), common.Address{}, 1)
	require.Error(t, err)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.NotEmpty(t, callErr.TxHash)
}

func TestWaitForConfirmation(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)

	hash := common.HexToHash("0xabc1")
	client.receipts[hash] = &types.Receipt{Status: 1, BlockNumber: big.NewInt(99), GasUsed: 50000}

	result, err := w.WaitForConfirmation(context.Background(), hash.Hex(), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), result.BlockNumber)
	assert.Equal(t, uint64(50000), result.GasUsed)
}

func TestWaitForConfirmationReverted(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)

	hash := common.HexToHash("0xabc2")
	client.receipts[hash] = &types.Receipt{Status: 0, BlockNumber: big.NewInt(99)}

	_, err := w.WaitForConfirmation(context.Background(), hash.Hex(), 10*time.Second)
	assert.ErrorIs(t, err, ErrTransactionFailed)
}

func TestWaitForConfirmationTimeout(t *testing.T) {
	client := newFakeEthClient()
	w := newTestWallet(t, client)

	_, err := w.WaitForConfirmation(context.Background(), "0xmissing", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}
