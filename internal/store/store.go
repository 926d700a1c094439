// Package store persists tenant configuration and guild policies across a
// primary structured backend and a durable file fallback, with read-through
// migration from fallback to primary.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenbot/warden/internal/capability"
	"github.com/wardenbot/warden/internal/policy"
	"github.com/wardenbot/warden/internal/shared"
	"github.com/wardenbot/warden/internal/tenant"
)

// Backend is one storage engine holding tenant records keyed by tenant ID.
// Get methods return shared.ErrNotFound on a miss.
type Backend interface {
	GetConfig(ctx context.Context, tenantID string) (*tenant.Config, error)
	PutConfig(ctx context.Context, cfg *tenant.Config) error
	GetPolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error)
	PutPolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) error
	Name() string
}

// Metrics receives store-level events. Implemented by the observability
// package; nil-safe via the nopMetrics default.
type Metrics interface {
	FallbackRead(model string)
	Migration(model string, ok bool)
	DefaultSynthesized(model string)
}

type nopMetrics struct{}

func (nopMetrics) FallbackRead(string)    {}
func (nopMetrics) Migration(string, bool) {}
func (nopMetrics) DefaultSynthesized(string) {}

// Dual chains a primary backend over a fallback. Reads prefer the primary
// and migrate fallback hits into it; writes land on the primary when one is
// configured, else the fallback. Never both. Each primary attempt runs under
// its own timeout so a hung primary cannot exhaust the caller's deadline
// before the fallback gets its turn.
type Dual struct {
	primary  Backend
	fallback Backend
	timeout  time.Duration
	logger   *slog.Logger
	metrics  Metrics
}

// NewDual constructs the chained store. primary may be nil (degraded mode);
// fallback must not be. timeout bounds each primary attempt; zero means the
// caller's context is the only limit.
func NewDual(primary, fallback Backend, timeout time.Duration, logger *slog.Logger, metrics Metrics) *Dual {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Dual{primary: primary, fallback: fallback, timeout: timeout, logger: logger, metrics: metrics}
}

func (d *Dual) primaryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// LoadConfig returns the tenant's configuration, synthesizing and persisting
// a default when no record exists in either backend. It never returns
// shared.ErrNotFound.
func (d *Dual) LoadConfig(ctx context.Context, tenantID string) (*tenant.Config, error) {
	if d.primary != nil {
		pctx, cancel := d.primaryCtx(ctx)
		cfg, err := d.primary.GetConfig(pctx, tenantID)
		cancel()
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			d.logger.Warn("primary config read failed, trying fallback",
				slog.String("tenant", tenantID), slog.Any("error", err))
		}
	}

	cfg, err := d.fallback.GetConfig(ctx, tenantID)
	if err == nil {
		d.metrics.FallbackRead("config")
		if verr := validateConfig(tenantID, cfg); verr != nil {
			d.logger.Warn("fallback config failed validation, serving best-effort",
				slog.String("tenant", tenantID), slog.Any("error", verr))
			return cfg, nil
		}
		d.migrateConfig(ctx, cfg)
		return cfg, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		d.logger.Warn("fallback config read failed",
			slog.String("tenant", tenantID), slog.Any("error", err))
	}

	cfg = tenant.NewConfig(tenantID)
	d.metrics.DefaultSynthesized("config")
	if werr := d.SaveConfig(ctx, cfg); werr != nil {
		d.logger.Warn("persisting default config failed",
			slog.String("tenant", tenantID), slog.Any("error", werr))
	}
	return cfg, nil
}

// SaveConfig writes the configuration to the active backend.
func (d *Dual) SaveConfig(ctx context.Context, cfg *tenant.Config) error {
	if d.primary != nil {
		pctx, cancel := d.primaryCtx(ctx)
		err := d.primary.PutConfig(pctx, cfg)
		cancel()
		if err == nil {
			return nil
		}
		d.logger.Warn("primary config write failed, using fallback",
			slog.String("tenant", cfg.TenantID), slog.Any("error", err))
	}
	if err := d.fallback.PutConfig(ctx, cfg); err != nil {
		return fmt.Errorf("store: save config %s: %w: %v", cfg.TenantID, shared.ErrPersistence, err)
	}
	return nil
}

// LoadPolicy returns the tenant's guild policy with the same read-through
// and default-synthesis behavior as LoadConfig.
func (d *Dual) LoadPolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error) {
	if d.primary != nil {
		pctx, cancel := d.primaryCtx(ctx)
		p, err := d.primary.GetPolicy(pctx, tenantID)
		cancel()
		if err == nil {
			normalizePolicy(p)
			return p, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			d.logger.Warn("primary policy read failed, trying fallback",
				slog.String("tenant", tenantID), slog.Any("error", err))
		}
	}

	p, err := d.fallback.GetPolicy(ctx, tenantID)
	if err == nil {
		d.metrics.FallbackRead("policy")
		if verr := validatePolicy(p); verr != nil {
			d.logger.Warn("fallback policy failed validation, serving best-effort",
				slog.String("tenant", tenantID), slog.Any("error", verr))
			normalizePolicy(p)
			return p, nil
		}
		d.migratePolicy(ctx, tenantID, p)
		return p, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		d.logger.Warn("fallback policy read failed",
			slog.String("tenant", tenantID), slog.Any("error", err))
	}

	p = policy.NewGuildPolicy()
	d.metrics.DefaultSynthesized("policy")
	if werr := d.SavePolicy(ctx, tenantID, p); werr != nil {
		d.logger.Warn("persisting default policy failed",
			slog.String("tenant", tenantID), slog.Any("error", werr))
	}
	return p, nil
}

// SavePolicy writes the policy to the active backend.
func (d *Dual) SavePolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) error {
	if d.primary != nil {
		pctx, cancel := d.primaryCtx(ctx)
		err := d.primary.PutPolicy(pctx, tenantID, p)
		cancel()
		if err == nil {
			return nil
		}
		d.logger.Warn("primary policy write failed, using fallback",
			slog.String("tenant", tenantID), slog.Any("error", err))
	}
	if err := d.fallback.PutPolicy(ctx, tenantID, p); err != nil {
		return fmt.Errorf("store: save policy %s: %w: %v", tenantID, shared.ErrPersistence, err)
	}
	return nil
}

// migrateConfig writes a fallback hit through to the primary. Failures are
// logged only; the read already succeeded.
func (d *Dual) migrateConfig(ctx context.Context, cfg *tenant.Config) {
	if d.primary == nil {
		return
	}
	pctx, cancel := d.primaryCtx(ctx)
	defer cancel()
	if err := d.primary.PutConfig(pctx, cfg); err != nil {
		d.metrics.Migration("config", false)
		d.logger.Warn("config migration to primary failed",
			slog.String("tenant", cfg.TenantID), slog.Any("error", err))
		return
	}
	d.metrics.Migration("config", true)
	d.logger.Info("migrated config to primary", slog.String("tenant", cfg.TenantID))
}

func (d *Dual) migratePolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) {
	if d.primary == nil {
		return
	}
	pctx, cancel := d.primaryCtx(ctx)
	defer cancel()
	if err := d.primary.PutPolicy(pctx, tenantID, p); err != nil {
		d.metrics.Migration("policy", false)
		d.logger.Warn("policy migration to primary failed",
			slog.String("tenant", tenantID), slog.Any("error", err))
		return
	}
	d.metrics.Migration("policy", true)
	d.logger.Info("migrated policy to primary", slog.String("tenant", tenantID))
}

// validateConfig checks structural integrity of a record read from the
// fallback before it is migrated.
func validateConfig(tenantID string, cfg *tenant.Config) error {
	if cfg.TenantID != tenantID {
		return fmt.Errorf("%w: tenant id %q does not match record %q", shared.ErrValidation, tenantID, cfg.TenantID)
	}
	if !tenant.KnownProvider(cfg.Provider) {
		return fmt.Errorf("%w: unknown provider %q", shared.ErrValidation, cfg.Provider)
	}
	return nil
}

// validatePolicy checks structural integrity of a policy record.
func validatePolicy(p *policy.GuildPolicy) error {
	if p.DefaultCapabilities == nil {
		return fmt.Errorf("%w: missing default capabilities", shared.ErrValidation)
	}
	if p.AdminOnly == nil {
		return fmt.Errorf("%w: missing admin-only capabilities", shared.ErrValidation)
	}
	for _, rb := range p.RoleBindings {
		if rb.RoleID == "" {
			return fmt.Errorf("%w: role binding without role id", shared.ErrValidation)
		}
	}
	for _, ub := range p.UserBindings {
		if ub.UserID == "" {
			return fmt.Errorf("%w: user binding without user id", shared.ErrValidation)
		}
	}
	return nil
}

// normalizePolicy fills holes in a partially-formed record so resolution
// always sees usable sets.
func normalizePolicy(p *policy.GuildPolicy) {
	if p.DefaultCapabilities == nil {
		p.DefaultCapabilities = capability.Defaults()
	}
	if p.AdminOnly == nil {
		p.AdminOnly = capability.AdminOnlyDefaults()
	}
	if p.RoleBindings == nil {
		p.RoleBindings = []policy.RoleBinding{}
	}
	if p.UserBindings == nil {
		p.UserBindings = []policy.UserBinding{}
	}
}
