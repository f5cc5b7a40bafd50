// Package api wires together all HTTP routes for the Orgdesk backend.
//
// Route grouping philosophy:
//   - /api/v1/auth/ endpoints are public but sit behind a stricter rate limit
//     so credential stuffing is throttled before any bcrypt work.
//   - Everything else under /api/v1/ requires a resolved session; role checks
//     against the target organization happen in the service layer, which is
//     the only place that knows the membership.
//
// The rate limiter and the dashboard cache share one Redis connection pool
// when Redis is configured; both degrade to in-process equivalents when it
// is not.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/orgdesk/orgdesk/internal/api/authn"
	"github.com/orgdesk/orgdesk/internal/api/orgs"
	"github.com/orgdesk/orgdesk/internal/api/users"
	"github.com/orgdesk/orgdesk/internal/auth"
	"github.com/orgdesk/orgdesk/internal/auth/oidc"
	"github.com/orgdesk/orgdesk/internal/cache"
	"github.com/orgdesk/orgdesk/internal/config"
	"github.com/orgdesk/orgdesk/internal/middleware"
	"github.com/orgdesk/orgdesk/internal/services"
)

// Version is the API version reported by /version.
const Version = "0.1.0"

// Resources holds connections created by NewRouter that outlive individual
// requests. The caller (cmd/server) closes them during graceful shutdown.
type Resources struct {
	Dashboard *cache.DashboardCache
	AuthSvc   *auth.Service
}

// Close releases the shared Redis pool.
func (r *Resources) Close() {
	if err := r.Dashboard.Close(); err != nil {
		slog.Warn("failed to close dashboard cache", "error", err)
	}
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *Resources) {
	router := gin.New()

	// Shared Redis pool for the dashboard cache and distributed rate limits.
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		slog.Info("redis configured", "addr", cfg.Redis.Addr)
	}

	var dashboard *cache.DashboardCache
	if rdb != nil {
		dashboard = cache.NewWithClient(rdb)
	} else {
		dashboard = cache.New(&cfg.Redis)
	}

	authSvc := auth.NewService(cfg, db)
	userSvc := services.NewUserService(db)
	orgSvc := services.NewOrganizationService(db, dashboard)

	var provider *oidc.Provider
	if cfg.Auth.OIDC.Enabled {
		p, err := oidc.NewProvider(&cfg.Auth.OIDC)
		if err != nil {
			slog.Error("failed to initialize OIDC provider", "error", err, "issuer", cfg.Auth.OIDC.IssuerURL)
		} else {
			provider = p
			slog.Info("OIDC provider initialized", "issuer", cfg.Auth.OIDC.IssuerURL)
		}
	}

	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(LoggerMiddleware(cfg))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/version", versionHandler())

	authHandlers := authn.NewHandlers(cfg, authSvc, provider)
	userHandlers := users.NewHandlers(userSvc)
	orgHandlers := orgs.NewHandlers(orgSvc, userSvc)

	apiV1 := router.Group("/api/v1")

	rl := cfg.Security.RateLimiting
	if rl.Enabled {
		apiV1.Use(middleware.RateLimit(middleware.NewLimiter(rdb, rl.RequestsPerMinute, rl.Burst), rl.RequestsPerMinute))
	}

	// Public authentication endpoints, throttled harder than the rest.
	authGroup := apiV1.Group("/auth")
	if rl.Enabled {
		authGroup.Use(middleware.RateLimit(middleware.NewLimiter(rdb, rl.AuthPerMinute, rl.AuthBurst), rl.AuthPerMinute))
	}
	{
		authGroup.POST("/signup", authHandlers.SignUp)
		authGroup.POST("/login", authHandlers.Login)
		authGroup.POST("/logout", authHandlers.Logout)
		authGroup.POST("/forgot-password", authHandlers.ForgotPassword)
		authGroup.POST("/reset-password", authHandlers.ResetPassword)
		authGroup.GET("/oidc/login", authHandlers.OIDCLogin)
		authGroup.GET("/oidc/callback", authHandlers.OIDCCallback)
	}

	usersGroup := apiV1.Group("/users")
	usersGroup.Use(middleware.RequireAuth(authSvc))
	{
		usersGroup.GET("/me", userHandlers.Me)
		usersGroup.PATCH("/me", userHandlers.UpdateMe)
		usersGroup.GET("", userHandlers.List)
		usersGroup.GET("/stats", userHandlers.Stats)
		usersGroup.GET("/email-check", userHandlers.EmailCheck)
		usersGroup.GET("/:id", userHandlers.Get)
		usersGroup.PATCH("/:id", userHandlers.Update)
	}

	orgsGroup := apiV1.Group("/organizations")
	orgsGroup.Use(middleware.RequireAuth(authSvc))
	{
		orgsGroup.GET("", orgHandlers.List)
		orgsGroup.POST("", orgHandlers.Create)
		orgsGroup.GET("/active", orgHandlers.Active)
		orgsGroup.GET("/stats", orgHandlers.Stats)
		orgsGroup.GET("/slug-check/:slug", orgHandlers.SlugCheck)
		orgsGroup.GET("/by-slug/:slug", orgHandlers.GetBySlug)
		orgsGroup.GET("/:id", orgHandlers.Get)
		orgsGroup.PATCH("/:id", orgHandlers.Update)
		orgsGroup.DELETE("/:id", orgHandlers.Delete)
		orgsGroup.GET("/:id/invitable-users", orgHandlers.InvitableUsers)
		orgsGroup.POST("/:id/invitations", orgHandlers.CreateInvitation)
		orgsGroup.POST("/invitations/:id/accept", orgHandlers.AcceptInvitation)
	}

	return router, &Resources{Dashboard: dashboard, AuthSvc: authSvc}
}

// @Summary      Health check
// @Description  Returns the liveness of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy"
// @Router       /health [get]
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

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
