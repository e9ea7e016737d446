// Package httpapi exposes the enhancement and account services over JSON/HTTP.
package httpapi

import (
	"net/http"

	"github.com/and161185/prompt-enhancer/internal/identity"
	"github.com/and161185/prompt-enhancer/internal/metrics"
	"github.com/and161185/prompt-enhancer/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services are the application services the handlers call.
type Services struct {
	Users   service.UserService
	Creds   service.CredentialService
	Enhance service.EnhanceService
	History service.HistoryService
	Quota   service.QuotaService
}

// Options tune the router.
type Options struct {
	AllowedOrigin string
	ServeMetrics  bool
}

// Handler holds injected services for the route handlers.
type Handler struct {
	svc Services
	log *zap.Logger
}

// NewRouter builds the gin engine with middlewares and routes.
func NewRouter(svc Services, v identity.Verifier, rl *RateLimiter, opts Options, log *zap.Logger) *gin.Engine {
	h := &Handler{svc: svc, log: log}

	r := gin.New()
	r.Use(Recover(log), Logging(log), Metrics(), CORS(opts.AllowedOrigin))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if opts.ServeMetrics {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	api := r.Group("/api")
	api.GET("/plans", h.plans)

	authed := api.Group("", Auth(v, log), RateLimit(rl, log))
	authed.POST("/enhance", h.enhance)

	user := authed.Group("/user")
	user.GET("", h.profile)
	user.DELETE("", h.deleteAccount)
	user.GET("/settings", h.getSettings)
	user.PUT("/settings", h.putSettings)
	user.GET("/api-keys", h.listKeys)
	user.PUT("/api-keys", h.putKeys)
	user.DELETE("/api-keys", h.deleteKeys)
	user.GET("/api-keys/audit", h.keyAudit)
	user.GET("/api-keys/:provider/reveal", h.revealKey)
	user.GET("/history", h.history)
	user.DELETE("/history", h.clearHistory)
	user.DELETE("/history/:id", h.deleteHistory)
	user.GET("/quota", h.quota)

	return r
}
