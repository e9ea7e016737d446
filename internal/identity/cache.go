package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/prompt-enhancer/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cachePrefix = "auth:status:"

// NewRedisClient connects to redis and checks it answers.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// CachedVerifier memoizes verified statuses in redis for at most ttl and never past token expiry.
// Redis failures degrade to direct verification.
type CachedVerifier struct {
	next Verifier
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time
}

var _ Verifier = (*CachedVerifier)(nil)

// NewCachedVerifier wraps next with a redis cache.
func NewCachedVerifier(next Verifier, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedVerifier {
	return &CachedVerifier{next: next, rdb: rdb, ttl: ttl, log: log, now: time.Now}
}

func (c *CachedVerifier) Verify(ctx context.Context, token string) (Status, error) {
	if token == "" {
		return c.next.Verify(ctx, token)
	}
	key := cacheKey(token)

	if st, ok := c.lookup(ctx, key); ok {
		metrics.RecordCacheAccess(true)
		return st, nil
	}
	metrics.RecordCacheAccess(false)

	st, err := c.next.Verify(ctx, token)
	if err != nil {
		return Status{}, err
	}
	c.store(ctx, key, st)
	return st, nil
}

func (c *CachedVerifier) lookup(ctx context.Context, key string) (Status, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("auth cache get", zap.Error(err))
		}
		return Status{}, false
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		c.log.Warn("auth cache decode", zap.Error(err))
		return Status{}, false
	}
	if !st.Valid(c.now()) {
		_ = c.rdb.Del(ctx, key).Err()
		return Status{}, false
	}
	return st, true
}

func (c *CachedVerifier) store(ctx context.Context, key string, st Status) {
	ttl := min(c.ttl, st.ExpiresAt.Sub(c.now()))
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn("auth cache set", zap.Error(err))
	}
}

// cacheKey never stores the raw token.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return cachePrefix + hex.EncodeToString(sum[:])
}
