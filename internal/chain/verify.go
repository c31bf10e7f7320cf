package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Payment verification failures. TxPending is transient: the caller may
// retry once the transaction is mined. The rest are final for that hash.
var (
	ErrTxNotFound        = errors.New("chain: payment transaction not found")
	ErrTxPending         = errors.New("chain: payment transaction not yet mined")
	ErrTxReverted        = errors.New("chain: payment transaction reverted")
	ErrSenderMismatch    = errors.New("chain: payment not sent by expected address")
	ErrRecipientMismatch = errors.New("chain: payment not sent to expected address")
	ErrInsufficientValue = errors.New("chain: payment value below required price")
)

// Verifier checks claimed native-coin payments against chain state. It
// performs reads only; consuming a verified payment is the caller's job.
type Verifier struct {
	client EthClient
}

// NewVerifier creates a payment verifier over an RPC client.
func NewVerifier(client EthClient) *Verifier {
	return &Verifier{client: client}
}

// VerifyPayment confirms that txHash is a mined, successful native transfer
// of at least minValueWei from sender to recipient. It has no side effects
// and is safe to call any number of times for the same hash.
func (v *Verifier) VerifyPayment(ctx context.Context, txHash, sender, recipient string, minValueWei *big.Int) error {
	hash := common.HexToHash(txHash)

	tx, isPending, err := v.client.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		return fmt.Errorf("%w: %s", ErrTxNotFound, txHash)
	}
	if isPending {
		return fmt.Errorf("%w: %s", ErrTxPending, txHash)
	}

	receipt, err := v.client.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil {
		return fmt.Errorf("%w: %s", ErrTxPending, txHash)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("%w: %s", ErrTxReverted, txHash)
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return fmt.Errorf("chain: recover payment sender: %w", err)
	}
	if !strings.EqualFold(from.Hex(), sender) {
		return fmt.Errorf("%w: sent by %s", ErrSenderMismatch, from.Hex())
	}

	to := tx.To()
	if to == nil || !strings.EqualFold(to.Hex(), recipient) {
		return ErrRecipientMismatch
	}

	if tx.Value().Cmp(minValueWei) < 0 {
		return fmt.Errorf("%w: sent %s, required %s",
			ErrInsufficientValue, tx.Value().String(), minValueWei.String())
	}

	return nil
}
