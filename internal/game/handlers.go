// Package game exposes the trusted server-side contract operations the
// game backend invokes directly with its own signing key, without a player
// payment attached.
package game

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/3dhome4u/wc-backend/internal/chain"
)

// ErrNotOwner rejects parcel operations on land the player does not hold.
var ErrNotOwner = errors.New("game: player is not owner of land")

// ContractStatus reports which contract bindings the server wallet carries.
type ContractStatus interface {
	Address() string
	HasCurrency() bool
	HasResource() bool
	HasLand() bool
	HasParcel() bool
}

// DefaultConfirmTimeout bounds the wait for direct contract calls.
const DefaultConfirmTimeout = 60 * time.Second

// Handler provides the /game HTTP endpoints.
type Handler struct {
	contracts      chain.GameContracts
	status         ContractStatus
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithConfirmTimeout overrides the confirmation ceiling.
func WithConfirmTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.confirmTimeout = d }
}

// NewHandler creates a new game handler.
func NewHandler(contracts chain.GameContracts, status ContractStatus, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		contracts:      contracts,
		status:         status,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes sets up the game routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/game/health", h.Health)
	r.POST("/game/currency/mint", h.MintCurrency)
	r.POST("/game/currency/burn", h.BurnCurrency)
	r.POST("/game/resource/mint", h.MintResource)
	r.POST("/game/resource/burn", h.BurnResource)
	r.POST("/game/land/mint", h.MintLand)
	r.POST("/game/parcel/activate-building", h.ActivateBuilding)
	r.POST("/game/parcel/set-building-active", h.SetBuildingActive)
}

// Health handles GET /game/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"gameServerAddress": h.status.Address(),
		"hasGameCurrency":   h.status.HasCurrency(),
		"hasResourceNFT":    h.status.HasResource(),
		"hasLandNFT":        h.status.HasLand(),
		"hasParcelState":    h.status.HasParcel(),
	})
}

// CurrencyRequest is the body for currency mint/burn.
type CurrencyRequest struct {
	PlayerAddress string `json:"playerAddress"`
	Amount        int64  `json:"amount"`
}

// MintCurrency handles POST /game/currency/mint
func (h *Handler) MintCurrency(c *gin.Context) {
	var req CurrencyRequest
	if !bindCurrency(c, &req) {
		return
	}
	result, err := h.contracts.MintCurrency(c.Request.Context(), common.HexToAddress(req.PlayerAddress), req.Amount)
	h.respond(c, "currency/mint", result, err)
}

// BurnCurrency handles POST /game/currency/burn
func (h *Handler) BurnCurrency(c *gin.Context) {
	var req CurrencyRequest
	if !bindCurrency(c, &req) {
		return
	}
	result, err := h.contracts.BurnCurrency(c.Request.Context(), common.HexToAddress(req.PlayerAddress), req.Amount)
	h.respond(c, "currency/burn", result, err)
}

func bindCurrency(c *gin.Context, req *CurrencyRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request body")
		return false
	}
	if !common.IsHexAddress(req.PlayerAddress) {
		badRequest(c, "Invalid playerAddress")
		return false
	}
	if req.Amount <= 0 {
		badRequest(c, "Invalid amount (must be positive integer)")
		return false
	}
	return true
}

// ResourceRequest is the body for resource mint/burn.
type ResourceRequest struct {
	PlayerAddress string `json:"playerAddress"`
	ResourceID    int64  `json:"resourceId"`
	Amount        int64  `json:"amount"`
}

// MintResource handles POST /game/resource/mint
func (h *Handler) MintResource(c *gin.Context) {
	var req ResourceRequest
	if !bindResource(c, &req) {
		return
	}
	result, err := h.contracts.MintResource(c.Request.Context(), common.HexToAddress(req.PlayerAddress), req.ResourceID, req.Amount)
	h.respond(c, "resource/mint", result, err)
}

// BurnResource handles POST /game/resource/burn
func (h *Handler) BurnResource(c *gin.Context) {
	var req ResourceRequest
	if !bindResource(c, &req) {
		return
	}
	result, err := h.contracts.BurnResource(c.Request.Context(), common.HexToAddress(req.PlayerAddress), req.ResourceID, req.Amount)
	h.respond(c, "resource/burn", result, err)
}

func bindResource(c *gin.Context, req *ResourceRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request body")
		return false
	}
	if !common.IsHexAddress(req.PlayerAddress) {
		badRequest(c, "Invalid playerAddress")
		return false
	}
	if req.ResourceID <= 0 {
		badRequest(c, "Invalid resourceId")
		return false
	}
	if req.Amount <= 0 {
		badRequest(c, "Invalid amount")
		return false
	}
	return true
}

// LandMintRequest is the body for land minting.
type LandMintRequest struct {
	PlayerAddress string `json:"playerAddress"`
	TokenID       int64  `json:"tokenId"`
}

// MintLand handles POST /game/land/mint
func (h *Handler) MintLand(c *gin.Context) {
	var req LandMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.PlayerAddress) {
		badRequest(c, "Invalid playerAddress")
		return
	}
	if req.TokenID <= 0 {
		badRequest(c, "Invalid tokenId")
		return
	}
	result, err := h.contracts.MintLand(c.Request.Context(), common.HexToAddress(req.PlayerAddress), req.TokenID)
	h.respond(c, "land/mint", result, err)
}

// ParcelRequest is the body for parcel building operations.
type ParcelRequest struct {
	PlayerAddress string `json:"playerAddress"`
	LandID        int64  `json:"landId"`
	BuildingType  *int64 `json:"buildingType"`
	Active        *bool  `json:"active"`
}

// ActivateBuilding handles POST /game/parcel/activate-building
func (h *Handler) ActivateBuilding(c *gin.Context) {
	var req ParcelRequest
	if !h.bindParcel(c, &req) {
		return
	}
	result, err := h.contracts.ActivateBuilding(c.Request.Context(), req.LandID, common.HexToAddress(req.PlayerAddress), uint8(*req.BuildingType))
	h.respond(c, "parcel/activate-building", result, err)
}

// SetBuildingActive handles POST /game/parcel/set-building-active
func (h *Handler) SetBuildingActive(c *gin.Context) {
	var req ParcelRequest
	if !h.bindParcel(c, &req) {
		return
	}
	if req.Active == nil {
		badRequest(c, "Invalid active flag (must be boolean)")
		return
	}
	result, err := h.contracts.SetBuildingActive(c.Request.Context(), req.LandID, common.HexToAddress(req.PlayerAddress), uint8(*req.BuildingType), *req.Active)
	h.respond(c, "parcel/set-building-active", result, err)
}

// bindParcel validates the shared parcel fields and enforces ownership.
func (h *Handler) bindParcel(c *gin.Context, req *ParcelRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request body")
		return false
	}
	if !common.IsHexAddress(req.PlayerAddress) {
		badRequest(c, "Invalid playerAddress")
		return false
	}
	if req.LandID <= 0 {
		badRequest(c, "Invalid landId")
		return false
	}
	if req.BuildingType == nil || *req.BuildingType < 0 || *req.BuildingType > 5 {
		badRequest(c, "Invalid buildingType (0..5)")
		return false
	}

	owner, err := h.contracts.OwnerOf(c.Request.Context(), req.LandID)
	if err != nil {
		h.logger.Error("ownerOf lookup failed", "landId", req.LandID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "onchain_call_failed",
			"message": "Failed to check land ownership",
		})
		return false
	}
	if !strings.EqualFold(owner.Hex(), req.PlayerAddress) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "not_owner",
			"message": "Player is not owner of landId",
		})
		return false
	}
	return true
}

// respond waits for confirmation and writes the uniform result envelope.
func (h *Handler) respond(c *gin.Context, op string, result *chain.CallResult, err error) {
	if err == nil {
		result, err = h.contracts.WaitForConfirmation(c.Request.Context(), result.TxHash, h.confirmTimeout)
	}
	if err != nil {
		h.logger.Error("game operation failed", "op", op, "error", err)
		if errors.Is(err, chain.ErrNotConfigured) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "contract_not_configured",
				"message": "Required contract is not configured on the server",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "onchain_call_failed",
			"message": "On-chain operation failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"txHash": result.TxHash,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
	})
}
