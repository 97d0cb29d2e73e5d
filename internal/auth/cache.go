package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/acme/group-call-bot/internal/config"
	"github.com/acme/group-call-bot/pkg/logger"
)

// RedisCache is an expiry-aware TokenSource that shares tokens through Redis.
// Cache faults never fail a request; they fall through to the inner source.
type RedisCache struct {
	inner  TokenSource
	client *redis.Client
	key    string
	leeway time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewRedisCache wraps inner with a Redis-backed cache keyed by tenant and client.
func NewRedisCache(inner TokenSource, client *redis.Client, cfg config.AuthConfig, lg *logger.Logger) *RedisCache {
	leeway := cfg.Cache.Leeway
	if leeway < 0 {
		leeway = 0
	}
	return &RedisCache{
		inner:  inner,
		client: client,
		key:    fmt.Sprintf("%s:%s:%s", cfg.Cache.KeyPrefix, cfg.TenantID, cfg.ClientID),
		leeway: leeway,
		logger: lg,
		now:    time.Now,
	}
}

// Token returns a cached token while it is valid beyond the leeway.
func (c *RedisCache) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok, ok := c.lookup(ctx); ok {
		return tok, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok, err := c.inner.Token(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tok)
	return tok, nil
}

func (c *RedisCache) lookup(ctx context.Context) (*oauth2.Token, bool) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			c.logger.Warn("token cache: read", zap.Error(err))
		}
		return nil, false
	}

	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		c.logger.Warn("token cache: decode", zap.Error(err))
		return nil, false
	}
	if tok.AccessToken == "" || !c.now().Add(c.leeway).Before(tok.Expiry) {
		return nil, false
	}
	return &tok, true
}

func (c *RedisCache) store(ctx context.Context, tok *oauth2.Token) {
	if tok.Expiry.IsZero() {
		return
	}
	ttl := tok.Expiry.Sub(c.now()) - c.leeway
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(tok)
	if err != nil {
		c.logger.Warn("token cache: encode", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key, raw, ttl).Err(); err != nil {
		c.logger.Warn("token cache: write", zap.Error(err))
	}
}
