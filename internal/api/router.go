// Package api wires together all HTTP routes for the admin authentication service.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/v1/admin/auth/login and /auth/logout carry their own credentials and run
//     without a session. Login has its own per-IP rate limit.
//   - Every other /api/v1/admin route requires a verified admin session, is rate
//     limited per admin, and may additionally require a resource/action permission.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stagehand/adminauth/internal/api/admin"
	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/config"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/db/repositories"
	"github.com/stagehand/adminauth/internal/jobs"
	"github.com/stagehand/adminauth/internal/middleware"
	"github.com/stagehand/adminauth/internal/storage"
)

// Version is reported by /version. Release builds set it with
// -ldflags "-X github.com/stagehand/adminauth/internal/api.Version=v1.2.3".
var Version = "dev"

// readinessProbePath is a known-absent object used to exercise archive credentials.
const readinessProbePath = ".readiness-probe"

// Dependencies are the collaborators NewRouter needs. Redis and Archive are optional.
type Dependencies struct {
	DB      *sqlx.DB
	Auth    *auth.Service
	Audit   auth.AuditRecorder
	Redis   *redis.Client
	Archive storage.Storage
	// Clock drives the rate limiters and the cleanup job. Defaults to the wall clock.
	Clock clock.Clock
}

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sessionCleanup *jobs.SessionCleanupJob
	rateLimiters   []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.sessionCleanup != nil {
		bg.sessionCleanup.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the background jobs it
// owns.
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.AdminAPISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(middleware.AttachRequestInfo())

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB, deps.Archive, deps.Redis))
	router.GET("/version", versionHandler())

	// Repositories and handlers
	auditRepo := repositories.NewAuditRepository(deps.DB)
	roleRepo := repositories.NewRoleRepository(deps.DB)

	evaluator := deps.Auth.Permissions()
	authHandlers := admin.NewAuthHandlers(cfg, deps.Auth)
	rbacHandlers := admin.NewRBACHandlers(roleRepo, evaluator)
	auditLogHandlers := admin.NewAuditLogHandlers(auditRepo)

	tokens := admin.TokenSourceFrom(cfg)
	requireSession := middleware.RequireAdminSession(deps.Auth, tokens)

	// Rate limiters
	var loginLimit, apiLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		loginLimiter := newLimiter(bg, deps.Redis, middleware.ScopeLogin, middleware.LoginRateLimitConfig(cfg.Security.RateLimiting), clk)
		apiLimiter := newLimiter(bg, deps.Redis, middleware.ScopeAPI, middleware.APIRateLimitConfig(cfg.Security.RateLimiting), clk)
		loginLimit = middleware.RateLimitMiddleware(loginLimiter, middleware.ScopeLogin)
		apiLimit = middleware.RateLimitMiddleware(apiLimiter, middleware.ScopeAPI)
	} else {
		slog.Warn("rate limiting is disabled")
		loginLimit = passThrough
		apiLimit = passThrough
	}

	adminAPI := router.Group("/api/v1/admin")
	{
		// Credential-bearing endpoints, no session required
		adminAPI.POST("/auth/login", loginLimit, authHandlers.LoginHandler())
		adminAPI.POST("/auth/logout", authHandlers.LogoutHandler())

		// Session endpoints
		sessionGroup := adminAPI.Group("")
		sessionGroup.Use(requireSession)
		sessionGroup.Use(apiLimit)
		{
			sessionGroup.GET("/auth/verify", authHandlers.VerifyHandler())
			sessionGroup.POST("/auth/verify", authHandlers.VerifyHandler())
			sessionGroup.GET("/auth/sessions", authHandlers.ListSessionsHandler())
			sessionGroup.DELETE("/auth/sessions/:id", authHandlers.RevokeSessionHandler())
			sessionGroup.POST("/auth/logout-all", authHandlers.LogoutAllHandler())

			sessionGroup.POST("/permissions/check", rbacHandlers.CheckPermission)

			sessionGroup.GET("/roles",
				middleware.RequirePermission(evaluator, models.ResourceAdmins, models.ActionView),
				rbacHandlers.ListRoles)

			auditGroup := sessionGroup.Group("/audit-logs")
			auditGroup.Use(middleware.RequirePermission(evaluator, models.ResourceAuditLogs, models.ActionView))
			{
				auditGroup.GET("", auditLogHandlers.ListAuditLogs)
				auditGroup.GET("/:id", auditLogHandlers.GetAuditLog)
			}
		}
	}

	// Session cleanup job
	bg.sessionCleanup = jobs.NewSessionCleanupJob(deps.Auth.Sessions(), cfg.Jobs.SessionCleanupInterval, clk)
	bg.sessionCleanup.Start(context.Background())

	return router, bg
}

// newLimiter returns the in-memory limiter for scope, fronted by Redis when a client is
// configured. The in-memory limiter stays registered for shutdown either way.
func newLimiter(bg *BackgroundServices, rdb *redis.Client, scope string, cfg middleware.RateLimitConfig, clk clock.Clock) middleware.Limiter {
	cfg.Clock = clk
	local := middleware.NewRateLimiter(cfg)
	bg.rateLimiters = append(bg.rateLimiters, local)
	if rdb == nil {
		return local
	}
	return middleware.NewRedisRateLimiter(rdb, "sth:ratelimit:"+scope, cfg, local)
}

func passThrough(c *gin.Context) { c.Next() }

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, Redis and the audit archive.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks: map"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks: map, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. Redis is reported but
// never fails readiness because rate limiting falls back to local buckets.
func readinessHandler(db *sqlx.DB, archive storage.Storage, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		notReady := func(msg string) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  msg,
			})
		}

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			notReady("database not ready")
			return
		}
		checks["database"] = "healthy"

		if archive != nil {
			if _, err := archive.Exists(ctx, readinessProbePath); err != nil {
				checks["audit_archive"] = "unhealthy"
				notReady("audit archive not ready")
				return
			}
			checks["audit_archive"] = "healthy"
		}

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "degraded"
			} else {
				checks["redis"] = "healthy"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the build version and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured slog record per request. The output format
// follows the handler installed by telemetry.SetupLogger. Query strings are not logged.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.RequestID(c)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if id := c.GetString(middleware.AdminIDKey); id != "" {
			attrs = append(attrs, slog.String("admin_id", id))
		}

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware handles CORS. Credentials are only allowed for an explicitly listed
// origin, never for the wildcard.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}
	headers := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	if h := cfg.Auth.Session.HeaderName; h != "" {
		headers = append(headers, h)
	}
	allowHeaders := strings.Join(headers, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed, wildcard := false, false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" {
				allowed, wildcard = true, true
				break
			}
			if origin != "" && allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Expose-Headers", "Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining, "+middleware.RequestIDHeader)
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
