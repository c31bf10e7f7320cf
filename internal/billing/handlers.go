package billing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/3dhome4u/wc-backend/internal/chain"
)

// Handler provides HTTP endpoints for billing operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new billing handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the billing routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/billing/quote", h.Quote)
	r.POST("/billing/complete", h.Complete)
}

// Quote handles GET /billing/quote?actionType=RESOURCE_NFT_MINT
func (h *Handler) Quote(c *gin.Context) {
	actionType := ActionType(c.Query("actionType"))
	if actionType == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Missing actionType",
		})
		return
	}

	quote, err := h.service.Quote(actionType)
	if err != nil {
		writeBillingError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// Complete handles POST /billing/complete
func (h *Handler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result, err := h.service.Complete(c.Request.Context(), req)
	if err != nil {
		writeBillingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"actionType":    req.ActionType,
		"paymentTxHash": req.TxHash,
		"onchainTxHash": result.OnchainTxHash,
	})
}

// writeBillingError maps service errors onto HTTP responses.
func writeBillingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownAction):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_action",
			"message": "Unknown actionType",
		})
	case errors.Is(err, ErrNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "price_not_configured",
			"message": "Price for this action is not configured",
		})
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": err.Error(),
		})
	case errors.Is(err, ErrPaymentReused):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "payment_reused",
			"message": "Payment tx already used",
		})
	case errors.Is(err, chain.ErrTxNotFound):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "tx_not_found",
			"message": "Payment transaction not found",
		})
	case errors.Is(err, chain.ErrTxPending):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "tx_pending",
			"message": "Payment transaction not yet mined, retry shortly",
		})
	case errors.Is(err, chain.ErrTxReverted):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "tx_reverted",
			"message": "Payment transaction failed",
		})
	case errors.Is(err, chain.ErrSenderMismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "sender_mismatch",
			"message": "Payment not sent by this player",
		})
	case errors.Is(err, chain.ErrRecipientMismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "recipient_mismatch",
			"message": "Payment not sent to billing treasury address",
		})
	case errors.Is(err, chain.ErrInsufficientValue):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "insufficient_value",
			"message": "Payment value is below required price",
		})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "not_owner",
			"message": "Player is not owner of landId",
		})
	case errors.Is(err, ErrOnchainCall):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "onchain_call_failed",
			"message": "On-chain action failed after payment was consumed",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Unexpected billing error",
		})
	}
}
