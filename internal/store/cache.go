package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wardenbot/warden/internal/policy"
	"github.com/wardenbot/warden/internal/tenant"
)

// Loader is the read/write surface the cache decorates. *Dual implements
// it; so does *Cached, allowing stacking in front of the service.
type Loader interface {
	LoadConfig(ctx context.Context, tenantID string) (*tenant.Config, error)
	SaveConfig(ctx context.Context, cfg *tenant.Config) error
	LoadPolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error)
	SavePolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) error
}

var (
	_ Loader = (*Dual)(nil)
	_ Loader = (*Cached)(nil)
)

// Cached layers a short-TTL Redis cache over a Loader. The cache is an
// availability and latency aid only; the durable backends stay
// authoritative, and every save invalidates the tenant's entries. Redis
// errors degrade silently to the inner loader.
type Cached struct {
	inner  Loader
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached constructs the cache decorator.
func NewCached(inner Loader, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, client: client, ttl: ttl, logger: logger}
}

func configKey(tenantID string) string { return "warden:config:" + tenantID }
func policyKey(tenantID string) string { return "warden:policy:" + tenantID }

// LoadConfig serves from cache when possible.
func (c *Cached) LoadConfig(ctx context.Context, tenantID string) (*tenant.Config, error) {
	if data, err := c.client.Get(ctx, configKey(tenantID)).Bytes(); err == nil {
		var cfg tenant.Config
		if jerr := json.Unmarshal(data, &cfg); jerr == nil {
			return &cfg, nil
		}
		c.client.Del(ctx, configKey(tenantID))
	}

	cfg, err := c.inner.LoadConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, configKey(tenantID), cfg)
	return cfg, nil
}

// SaveConfig writes through and invalidates.
func (c *Cached) SaveConfig(ctx context.Context, cfg *tenant.Config) error {
	if err := c.inner.SaveConfig(ctx, cfg); err != nil {
		return err
	}
	c.invalidate(ctx, configKey(cfg.TenantID))
	return nil
}

// LoadPolicy serves from cache when possible.
func (c *Cached) LoadPolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error) {
	if data, err := c.client.Get(ctx, policyKey(tenantID)).Bytes(); err == nil {
		var p policy.GuildPolicy
		if jerr := json.Unmarshal(data, &p); jerr == nil {
			normalizePolicy(&p)
			return &p, nil
		}
		c.client.Del(ctx, policyKey(tenantID))
	}

	p, err := c.inner.LoadPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, policyKey(tenantID), p)
	return p, nil
}

// SavePolicy writes through and invalidates.
func (c *Cached) SavePolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) error {
	if err := c.inner.SavePolicy(ctx, tenantID, p); err != nil {
		return err
	}
	c.invalidate(ctx, policyKey(tenantID))
	return nil
}

func (c *Cached) fill(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("cache fill failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (c *Cached) invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", slog.String("key", key), slog.Any("error", err))
	}
}
