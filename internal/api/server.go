package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"investment-backoffice/internal/auth"
	"investment-backoffice/internal/cache"
	"investment-backoffice/internal/database"
	"investment-backoffice/internal/events"
	"investment-backoffice/internal/investment"
	"investment-backoffice/internal/ledger"
	"investment-backoffice/internal/logging"
	"investment-backoffice/internal/sweep"
	"investment-backoffice/internal/vault"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	CORSOrigin     string
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	logger     *logging.Logger

	repo        *database.Repository
	eventBus    *events.EventBus
	authService *auth.Service
	jwtManager  *auth.JWTManager
	ledgerSvc   *ledger.Service
	investSvc   *investment.Service
	sweeper     *sweep.Scheduler
	cacheSvc    *cache.CacheService
	vaultClient *vault.Client
	rateLimiter *RateLimiter
}

// NewServer creates a new API server. sweeper, cacheSvc and
// vaultClient may be nil when those subsystems are disabled.
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	eventBus *events.EventBus,
	authService *auth.Service,
	jwtManager *auth.JWTManager,
	ledgerSvc *ledger.Service,
	investSvc *investment.Service,
	sweeper *sweep.Scheduler,
	cacheSvc *cache.CacheService,
	vaultClient *vault.Client,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if config.CORSOrigin != "" {
		corsConfig.AllowOrigins = []string{config.CORSOrigin}
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      config,
		logger:      logging.WithComponent("api"),
		repo:        repo,
		eventBus:    eventBus,
		authService: authService,
		jwtManager:  jwtManager,
		ledgerSvc:   ledgerSvc,
		investSvc:   investSvc,
		sweeper:     sweeper,
		cacheSvc:    cacheSvc,
		vaultClient: vaultClient,
		rateLimiter: NewRateLimiter(120, time.Minute),
	}

	server.setupRoutes()

	InitWebSocket(eventBus)

	return server
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many requests to this endpoint",
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	// Public auth endpoints
	authGroup := s.router.Group("/api/auth")
	authGroup.Use(s.rateLimitMiddleware())
	{
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/refresh", s.handleRefresh)
	}

	// Public plan listing (active plans only, served from cache)
	s.router.GET("/api/plans", s.handleListPlans)

	// Authenticated endpoints
	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	api.Use(auth.Middleware(s.jwtManager))
	{
		api.GET("/auth/me", s.handleGetMe)
		api.POST("/auth/change-password", s.handleChangePassword)

		api.GET("/plans/:id", s.handleGetPlan)

		api.POST("/transactions", s.handleCreateTransaction)
		api.GET("/transactions", s.handleListTransactions)
		api.GET("/transactions/:id", s.handleGetTransaction)
		api.POST("/transactions/:id/cancel", s.handleCancelTransaction)

		api.POST("/orders", s.handleCreateOrder)
		api.GET("/orders", s.handleListOrders)
		api.GET("/orders/:id", s.handleGetOrder)
		api.POST("/orders/:id/receipt", s.handleUploadReceipt)

		api.GET("/receipts", s.handleListReceipts)
		api.GET("/receipts/:id", s.handleGetReceipt)

		api.GET("/ws", s.handleWebSocket)
	}

	// Admin endpoints
	admin := s.router.Group("/api/admin")
	admin.Use(s.rateLimitMiddleware())
	admin.Use(auth.Middleware(s.jwtManager))
	admin.Use(auth.RequireAdmin())
	{
		admin.POST("/users", s.handleCreateUser)
		admin.GET("/users", s.handleListUsers)
		admin.GET("/users/:id", s.handleGetUser)
		admin.DELETE("/users/:id", s.handleDeleteUser)

		admin.POST("/transactions/:id/approve", s.handleApproveTransaction)
		admin.POST("/transactions/:id/reject", s.handleRejectTransaction)
		admin.POST("/adjustments", s.handleCreateAdjustment)

		admin.GET("/plans", s.handleListAllPlans)
		admin.POST("/plans", s.handleCreatePlan)
		admin.PUT("/plans/:id", s.handleUpdatePlan)
		admin.DELETE("/plans/:id", s.handleDeletePlan)
		admin.POST("/plans/:id/finalize", s.handleFinalizePlan)

		admin.POST("/orders/:id/activate", s.handleActivateOrder)
		admin.POST("/orders/:id/complete", s.handleCompleteOrder)

		admin.POST("/receipts/:id/review", s.handleReviewReceipt)

		admin.POST("/sweep/run", s.handleRunSweep)
		admin.GET("/sweep/status", s.handleSweepStatus)
	}
}

// handleHealth reports the health of the server and its dependencies
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if err := s.repo.HealthCheck(ctx); err != nil {
		checks["database"] = "unhealthy"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	if s.cacheSvc != nil {
		if s.cacheSvc.IsHealthy() {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "degraded"
		}
	}

	if s.vaultClient != nil && s.vaultClient.IsEnabled() {
		if err := s.vaultClient.Health(ctx); err != nil {
			checks["vault"] = "unhealthy"
		} else {
			checks["vault"] = "healthy"
		}
	}

	if s.sweeper != nil {
		checks["sweep"] = s.sweeper.IsRunning()
	}

	c.JSON(status, gin.H{
		"status": http.StatusText(status),
		"checks": checks,
		"time":   time.Now().UTC(),
	})
}

// Start begins serving HTTP requests. It blocks until the server
// stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server listening", "address", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
