package billing

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3dhome4u/wc-backend/internal/chain"
)

func setupBillingRouter(t *testing.T) (*gin.Engine, *fakeVerifier, *fakeContracts) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := &fakeVerifier{}
	contracts := &fakeContracts{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(NewActionTable(testPrices()), verifier, contracts, testTreasury, logger)

	router := gin.New()
	NewHandler(svc).RegisterRoutes(router.Group("/"))
	return router, verifier, contracts
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlerQuote(t *testing.T) {
	router, _, _ := setupBillingRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/billing/quote?actionType=RESOURCE_NFT_MINT", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var quote QuoteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, ResourceNFTMint, quote.ActionType)
	assert.Equal(t, testTreasury, quote.Treasury)
	assert.NotEqual(t, "0x0", quote.PriceWei)

	req = httptest.NewRequest(http.MethodGet, "/billing/quote?actionType=NOPE", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_action")

	req = httptest.NewRequest(http.MethodGet, "/billing/quote", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerComplete(t *testing.T) {
	router, _, contracts := setupBillingRouter(t)
	contracts.owner = common.HexToAddress(testPlayer)

	w := postJSON(router, "/billing/complete", CompleteRequest{
		ActionType:    CurrencyMint,
		TxHash:        testTxHash,
		PlayerAddress: testPlayer,
		Details:       Details{Amount: 2},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK            bool   `json:"ok"`
		OnchainTxHash string `json:"onchainTxHash"`
		PaymentTxHash string `json:"paymentTxHash"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "0xonchain", resp.OnchainTxHash)
	assert.Equal(t, testTxHash, resp.PaymentTxHash)

	// Same hash again: reused.
	w = postJSON(router, "/billing/complete", CompleteRequest{
		ActionType:    CurrencyMint,
		TxHash:        testTxHash,
		PlayerAddress: testPlayer,
		Details:       Details{Amount: 2},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "payment_reused")
}

func TestHandlerCompleteErrorMapping(t *testing.T) {
	router, verifier, _ := setupBillingRouter(t)

	verifier.err = chain.ErrTxPending
	w := postJSON(router, "/billing/complete", CompleteRequest{
		ActionType:    CurrencyMint,
		TxHash:        testTxHash,
		PlayerAddress: testPlayer,
		Details:       Details{Amount: 2},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "tx_pending")

	verifier.err = chain.ErrRecipientMismatch
	w = postJSON(router, "/billing/complete", CompleteRequest{
		ActionType:    CurrencyMint,
		TxHash:        testTxHash,
		PlayerAddress: testPlayer,
		Details:       Details{Amount: 2},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "recipient_mismatch")

	w = postJSON(router, "/billing/complete", gin.H{"actionType": 12})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
