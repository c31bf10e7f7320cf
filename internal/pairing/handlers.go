package pairing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/3dhome4u/wc-backend/internal/chains"
	"github.com/3dhome4u/wc-backend/internal/walletconnect"
)

// Handler provides HTTP endpoints for the pairing lifecycle.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new pairing handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes sets up the pairing routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/pairing", h.CreatePairing)
	r.GET("/pairing/status", h.PairingStatus)
	r.POST("/pairing/switch", h.SwitchNetwork)
	r.POST("/pairing/request", h.DispatchRequest)
	r.GET("/chains", h.ListChains)
}

// CreatePairing handles GET /pairing?preferredChain=eip155:137
func (h *Handler) CreatePairing(c *gin.Context) {
	result, err := h.manager.CreatePairing(c.Request.Context(), c.Query("preferredChain"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "pairing_failed",
			"message": "Failed to create pairing with the wallet relay",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// PairingStatus handles GET /pairing/status?id=<pairingId>
func (h *Handler) PairingStatus(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Missing pairing id",
		})
		return
	}

	result, err := h.manager.Status(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "status_failed",
			"message": "Failed to read pairing status",
		})
		return
	}

	resp := gin.H{"status": string(result.Status)}
	if result.Session != nil {
		resp["session"] = result.Session
	}
	c.JSON(http.StatusOK, resp)
}

// SwitchRequest is the POST /pairing/switch body.
type SwitchRequest struct {
	Topic    string `json:"topic" binding:"required"`
	ChainRef string `json:"chainRef" binding:"required"`
}

// SwitchNetwork handles POST /pairing/switch
func (h *Handler) SwitchNetwork(c *gin.Context) {
	var req SwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if err := h.manager.SwitchNetwork(c.Request.Context(), req.Topic, req.ChainRef); err != nil {
		writeManagerError(c, err)
		return
	}

	id, _ := chains.ParseRef(req.ChainRef)
	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"chainRef":    req.ChainRef,
		"networkName": chains.Name(id),
	})
}

// RPCRequest is the POST /pairing/request body.
type RPCRequest struct {
	Topic    string `json:"topic" binding:"required"`
	Method   string `json:"method" binding:"required"`
	Params   []any  `json:"params"`
	ChainRef string `json:"chainRef"`
}

// DispatchRequest handles POST /pairing/request
func (h *Handler) DispatchRequest(c *gin.Context) {
	var req RPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result, err := h.manager.DispatchRequest(c.Request.Context(), req.Topic, req.Method, req.Params, req.ChainRef)
	if err != nil {
		writeManagerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ListChains handles GET /chains
func (h *Handler) ListChains(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default": chains.DefaultRef,
		"chains":  chains.Supported(),
	})
}

// writeManagerError maps manager errors onto HTTP responses.
func writeManagerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "session_not_found",
			"message": "No approved session for that topic",
		})
	case errors.Is(err, ErrInvalidChain):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unsupported_chain",
			"message": "Requested chain is not supported",
		})
	case errors.Is(err, ErrMethodNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "method_not_allowed",
			"message": "Method is not on the allow list",
		})
	case errors.Is(err, ErrAddressMismatch):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "address_mismatch",
			"message": "Transaction sender must match the session address",
		})
	case errors.Is(err, ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_params",
			"message": "Invalid request parameters",
		})
	case errors.Is(err, ErrRequestTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   "wallet_timeout",
			"message": "Wallet did not respond in time",
		})
	case errors.Is(err, walletconnect.ErrRequestError):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "wallet_rejected",
			"message": "Wallet rejected the request",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Unexpected error while talking to the wallet",
		})
	}
}
