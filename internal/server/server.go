// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/3dhome4u/wc-backend/internal/billing"
	"github.com/3dhome4u/wc-backend/internal/chain"
	"github.com/3dhome4u/wc-backend/internal/chains"
	"github.com/3dhome4u/wc-backend/internal/config"
	"github.com/3dhome4u/wc-backend/internal/game"
	"github.com/3dhome4u/wc-backend/internal/health"
	"github.com/3dhome4u/wc-backend/internal/idgen"
	"github.com/3dhome4u/wc-backend/internal/logging"
	"github.com/3dhome4u/wc-backend/internal/metrics"
	"github.com/3dhome4u/wc-backend/internal/pairing"
	"github.com/3dhome4u/wc-backend/internal/ratelimit"
	"github.com/3dhome4u/wc-backend/internal/realtime"
	"github.com/3dhome4u/wc-backend/internal/security"
	"github.com/3dhome4u/wc-backend/internal/validation"
	"github.com/3dhome4u/wc-backend/internal/walletconnect"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	bridge      walletconnect.Client
	store       *pairing.MemoryStore
	manager     *pairing.Manager
	sweeper     *pairing.Sweeper
	wallet      *chain.Wallet
	verifier    *chain.Verifier
	balances    *chain.BalanceReader
	billing     *billing.Service
	hub         *realtime.Hub
	checks      *health.Registry
	rateLimiter *ratelimit.Limiter
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	ethClient   chain.EthClient // injected for tests, nil in production
	cancelRun   context.CancelFunc

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBridge sets a custom wallet-protocol client (for testing)
func WithBridge(client walletconnect.Client) Option {
	return func(s *Server) {
		s.bridge = client
	}
}

// WithEthClient sets a custom Ethereum client (for testing)
func WithEthClient(client chain.EthClient) Option {
	return func(s *Server) {
		s.ethClient = client
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set bridge/client/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Server signing wallet and contract bindings
	walletOpts := []chain.Option{}
	if s.ethClient != nil {
		walletOpts = append(walletOpts, chain.WithClient(s.ethClient))
	}
	w, err := chain.New(chain.Config{
		RPCURL:               cfg.RPCURL,
		PrivateKey:           cfg.PrivateKey,
		ChainID:              cfg.ChainID,
		GameCurrencyContract: cfg.GameCurrencyContract,
		ResourceNFTContract:  cfg.ResourceNFTContract,
		LandNFTContract:      cfg.LandNFTContract,
		ParcelStateContract:  cfg.ParcelStateContract,
	}, walletOpts...)
	if err != nil {
		return nil, fmt.Errorf("wallet init: %w", err)
	}
	s.wallet = w
	s.verifier = chain.NewVerifier(w.Client())
	s.balances = chain.NewBalanceReader(cfg.WCProjectID)

	// Wallet-protocol bridge (sign-client sidecar)
	if s.bridge == nil {
		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		bridge, err := walletconnect.Dial(dialCtx, cfg.WCBridgeURL, s.logger)
		if err != nil {
			return nil, fmt.Errorf("bridge dial: %w", err)
		}
		s.bridge = bridge
	}

	// Real-time event streaming
	s.hub = realtime.NewHub(s.logger)
	emitter := realtime.NewEmitter(s.hub)

	// Pairing lifecycle
	s.store = pairing.NewMemoryStore()
	s.manager = pairing.NewManager(s.bridge, s.store, s.logger,
		pairing.WithTTL(cfg.PairingTTL),
		pairing.WithEvents(emitter),
	)
	s.sweeper = pairing.NewSweeper(s.store, cfg.PairingTTL, s.logger)

	// Billing
	table := billing.NewActionTable(billing.Prices{
		ItemNFT:     cfg.Prices.ItemNFT,
		ResourceNFT: cfg.Prices.ResourceNFT,
		Currency:    cfg.Prices.Currency,
		LandNFT:     cfg.Prices.LandNFT,
		ParcelState: cfg.Prices.ParcelState,
	})
	s.billing = billing.NewService(table, s.verifier, s.wallet, cfg.TreasuryAddress, s.logger,
		billing.WithEvents(emitter),
	)

	s.setupHealthChecks()

	// Setup router
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func (s *Server) setupHealthChecks() {
	s.checks = health.NewRegistry()

	s.checks.Register("rpc", func(ctx context.Context) health.Status {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := s.wallet.Client().SuggestGasPrice(ctx); err != nil {
			return health.Status{Name: "rpc", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "rpc", Healthy: true}
	})

	s.checks.Register("contracts", func(ctx context.Context) health.Status {
		configured := 0
		for _, has := range []bool{s.wallet.HasCurrency(), s.wallet.HasResource(), s.wallet.HasLand(), s.wallet.HasParcel()} {
			if has {
				configured++
			}
		}
		return health.Status{
			Name:    "contracts",
			Healthy: true,
			Detail:  fmt.Sprintf("%d of 4 contracts configured", configured),
		}
	})
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS restricted to the game client origins
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPS * 60,
		BurstSize:         s.cfg.RateLimitRPS * 2,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Service info
	s.router.GET("/", s.infoHandler)

	// WebSocket for real-time session events
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	root := s.router.Group("")
	pairing.NewHandler(s.manager).RegisterRoutes(root)
	billing.NewHandler(s.billing).RegisterRoutes(root)
	game.NewHandler(s.wallet, s.wallet, s.logger).RegisterRoutes(root)

	// Read-only balance lookups through the relay vendor's RPC gateway
	s.router.POST("/rpc-balance", s.rpcBalanceHandler)
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "wc-backend",
		"description": "Wallet login and billing bridge for 3D Home 4U",
		"version":     "0.1.0",
		"chainId":     s.cfg.ChainID,
	})
}

type rpcBalanceRequest struct {
	ChainRef string `json:"chainRef"`
	Address  string `json:"address" binding:"required"`
}

func (s *Server) rpcBalanceHandler(c *gin.Context) {
	var req rpcBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if req.ChainRef == "" {
		req.ChainRef = chains.DefaultRef
	}
	if !chains.IsSupported(req.ChainRef) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unsupported_chain",
			"message": fmt.Sprintf("chain %q is not supported", req.ChainRef),
		})
		return
	}
	if !validation.IsValidEthAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
		})
		return
	}

	wei, err := s.balances.NativeBalance(c.Request.Context(), req.ChainRef, req.Address)
	if err != nil {
		logging.L(c.Request.Context()).Error("balance lookup failed",
			"chain", req.ChainRef,
			"error", err,
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "rpc_error",
			"message": "balance lookup failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chainRef":     req.ChainRef,
		"address":      req.Address,
		"balanceWei":   "0x" + wei.Text(16),
		"balanceEther": chain.FormatNative(wei),
	})
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse is the aggregate health report
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"wallet", s.wallet.Address(),
			"chainId", s.cfg.ChainID,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Drain wallet session updates and deletes
	go s.manager.Run(runCtx)

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start expired-pairing sweeper
	go s.sweeper.Start(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, manager, sweeper)
	if s.cancelRun != nil {
		s.cancelRun()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop pairing sweeper
	s.sweeper.Stop()
	s.logger.Info("pairing sweeper stopped")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close bridge connection
	if err := s.bridge.Close(); err != nil {
		s.logger.Error("bridge close error", "error", err)
	}

	// Close RPC connections
	s.balances.Close()
	if err := s.wallet.Close(); err != nil {
		s.logger.Error("wallet close error", "error", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
