package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestRecover_CatchesPanic(t *testing.T) {
	log := zaptest.NewLogger(t)
	r := gin.New()
	r.Use(Recover(log), Logging(log))
	r.GET("/panic", func(*gin.Context) { panic("oh no") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(2, 2)
	r := gin.New()
	r.Use(RateLimit(rl, zaptest.NewLogger(t)))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimiter_KeysAndSweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("user:a"))
	assert.False(t, rl.Allow("user:a"))
	assert.True(t, rl.Allow("user:b"), "buckets are per key")

	now = now.Add(2 * time.Second)
	assert.True(t, rl.Allow("user:a"), "tokens refill")

	now = now.Add(time.Hour)
	rl.Allow("user:c")
	assert.Equal(t, 2, rl.Sweep(30*time.Minute))
	assert.Equal(t, 1, rl.size())
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		code int
	}{
		{errs.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("wrap: %w", errs.ErrNotFound), http.StatusNotFound},
		{errs.ErrAlreadyExists, http.StatusConflict},
		{errs.ErrRateLimited, http.StatusTooManyRequests},
		{errs.ErrDecryption, http.StatusInternalServerError},
		{errs.ErrUpstream, http.StatusInternalServerError},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, body := statusFor(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.NotEmpty(t, body.Code)
	}
	_, body := statusFor(errors.New("pq: secret detail"))
	assert.Equal(t, "Internal server error", body.Error, "internal details are not leaked")
}
