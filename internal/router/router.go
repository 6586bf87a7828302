package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/config"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/handlers"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/middleware"
)

// Handlers is everything the router mounts
type Handlers struct {
	Auth      *handlers.AuthHandler
	Fees      *handlers.FeeHandler
	Roles     *handlers.RoleHandler
	Transfers *handlers.TransferHandler
	Custody   *handlers.CustodyHandler
	Admin     *handlers.AdminHandler
	Stream    *handlers.StreamHandler
	Health    gin.HandlerFunc
}

// corsOrigins resolves the allowed origins.
// Priority: Environment Variable > YAML Config > Default (*)
func corsOrigins(cfg config.CORSConfig) []string {
	if env := os.Getenv("CORS_ALLOWED_ORIGINS"); env != "" {
		var out []string
		for _, o := range strings.Split(env, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	if len(cfg.AllowedOrigins) > 0 {
		return cfg.AllowedOrigins
	}
	return []string{"*"}
}

func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowedOrigins := corsOrigins(cfg)
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	maxAge := 3600
	if cfg.MaxAge > 0 {
		maxAge = cfg.MaxAge
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin == "":
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
		default:
			logger.WithFields(logrus.Fields{
				"request_origin": origin,
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
				"remote_addr":    c.ClientIP(),
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Next()
	}
}

// SetupRouter mounts the public, authenticated and admin routes.
//
// Admin routes need both a session belonging to the right role holder and a
// request from an allowed IP.
func SetupRouter(cfg *config.Config, h Handlers, authMW *middleware.AuthMiddleware, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS, logger))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	adminOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/settlements", authMW.OptionalAuth(), h.Stream.Serve)

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(limiter.Limit())
		authGroup.POST("/nonce", h.Auth.Nonce)
		authGroup.POST("/login", h.Auth.Login)

		api.GET("/fees", h.Fees.List)
		api.GET("/fees/:domain", h.Fees.Get)
		api.GET("/fees/:domain/quote", h.Fees.Quote)
		api.GET("/roles", h.Roles.Get)
		api.GET("/fast-tokens", h.Admin.FastTokens)
		api.GET("/custody", h.Custody.Get)
		api.GET("/custody/withdrawals", h.Custody.ListWithdrawals)

		api.GET("/settlements", h.Transfers.List)
		api.GET("/settlements/:id", h.Transfers.Get)
	}

	authed := api.Group("")
	authed.Use(authMW.RequireAuth(), limiter.Limit())
	{
		authed.POST("/transfers", h.Transfers.Submit)
	}

	admin := api.Group("/admin")
	admin.Use(adminOnly.Restrict(), authMW.RequireAuth())
	{
		admin.PUT("/fees/:domain", h.Fees.Set)
		admin.POST("/fees/withdraw", h.Custody.Withdraw)
		admin.PUT("/roles/:role", h.Roles.Assign)
		admin.PUT("/fast-tokens/:token", h.Admin.SetFastToken)
		admin.PUT("/messengers", h.Admin.SetMessengers)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "API endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api endpoints for available APIs",
		})
	})

	return r
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"ip":     c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
