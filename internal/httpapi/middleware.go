package httpapi

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/identity"
	"github.com/and161185/prompt-enhancer/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logging writes one structured line per request.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// metadata only, never bodies
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", routeOf(c)),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// Recover turns panics into 500 responses.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", routeOf(c)),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "Internal server error", Code: "INTERNAL"})
			}
		}()
		c.Next()
	}
}

// Metrics records request counts and latency per route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequest(c.Request.Method, routeOf(c), strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// CORS allows a single configured origin. An empty origin disables the headers.
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowedOrigin == "" {
			c.Next()
			return
		}
		origin := c.GetHeader("Origin")
		if allowedOrigin == "*" || origin == allowedOrigin {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Auth verifies the bearer token and stores the caller in the request context.
func Auth(v identity.Verifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := identity.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var st identity.Status
			st, err = v.Verify(c.Request.Context(), tok)
			if err == nil {
				c.Request = c.Request.WithContext(identity.WithStatus(c.Request.Context(), st))
				c.Next()
				return
			}
		}
		log.Debug("auth rejected", zap.String("route", routeOf(c)), zap.Error(err))
		abortWith(c, errs.ErrUnauthorized, log)
	}
}

// RateLimit throttles per verified caller, or per client IP before authentication.
func RateLimit(rl *RateLimiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if st, ok := identity.FromContext(c.Request.Context()); ok {
			key = "user:" + st.Subject
		}
		if !rl.Allow(key) {
			abortWith(c, errs.ErrRateLimited, log)
			return
		}
		c.Next()
	}
}

func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
