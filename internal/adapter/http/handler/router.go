package handler

import (
	"stellarpay-ledger/config"
	"stellarpay-ledger/internal/adapter/http/middleware"
	redisStore "stellarpay-ledger/internal/adapter/storage/redis"
	"stellarpay-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	LedgerSvc      ports.LedgerService
	TransferSvc    ports.TransferService
	ProjectionSvc  ports.ProjectionService
	Consumer       ports.ConfirmationConsumer
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	Operator       config.OperatorConfig
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- HMAC-authenticated routes (operator confirmation feed) ---
	hmacAuth := middleware.HMACAuth(
		deps.Operator.CallbackSecret,
		deps.Operator.MaxDrift,
		deps.Operator.NonceTTL,
		deps.SigSvc,
		deps.NonceStore,
		deps.Logger,
	)
	operatorHandler := NewOperatorHandler(deps.Consumer)
	operator := v1.Group("/operator", hmacAuth)
	{
		operator.POST("/confirmations", rl("operator"), operatorHandler.Confirm)
	}

	// --- JWT-authenticated routes (account holders) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	transactionHandler := NewTransactionHandler(deps.LedgerSvc, deps.ProjectionSvc)
	transferHandler := NewTransferHandler(deps.TransferSvc)
	accountHandler := NewAccountHandler(deps.ProjectionSvc)

	transactions := v1.Group("/transactions", jwtAuth)
	{
		transactions.POST("/deposit", rl("transactions"), transactionHandler.Deposit)
		transactions.POST("/withdraw", rl("transactions"), transactionHandler.Withdraw)
		transactions.POST("/:id/cancel", rl("transactions"), transactionHandler.Cancel)
		transactions.GET("", rl("accounts"), transactionHandler.List)
		transactions.GET("/:id", rl("accounts"), transactionHandler.Get)
	}

	transfers := v1.Group("/transfers", jwtAuth)
	{
		transfers.POST("", rl("transfers"), transferHandler.Initiate)
		transfers.GET("/:id", rl("accounts"), transferHandler.Get)
	}

	accounts := v1.Group("/accounts", jwtAuth)
	{
		accounts.GET("/me", rl("accounts"), accountHandler.Me)
	}

	return r
}
