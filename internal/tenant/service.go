package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wardenbot/warden/internal/capability"
	"github.com/wardenbot/warden/internal/policy"
	"github.com/wardenbot/warden/internal/shared"
)

// Store is the persistence surface the service depends on. Implemented by
// the dual-backend store (optionally wrapped in the Redis cache). Loads
// never report "not found"; they synthesize defaults.
type Store interface {
	LoadConfig(ctx context.Context, tenantID string) (*Config, error)
	SaveConfig(ctx context.Context, cfg *Config) error
	LoadPolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error)
	SavePolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) error
}

// DecisionMetrics receives authorization outcomes. Nil-safe on the
// observability side.
type DecisionMetrics interface {
	Decision(allowed bool)
}

// Decision is the result of one authorization check. ID correlates the
// decision across gateway logs and service logs.
type Decision struct {
	ID        string
	Allowed   bool
	IsAdmin   bool
	Effective capability.Set
}

// Service implements capability authorization and policy administration for
// all tenants. Mutations serialize per tenant so concurrent admin commands
// cannot overwrite each other's load-mutate-save cycles.
type Service struct {
	store   Store
	locks   *shared.KeyedMutex
	logger  *slog.Logger
	metrics DecisionMetrics
}

// NewService constructs the Service. metrics may be nil.
func NewService(store Store, logger *slog.Logger, metrics DecisionMetrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		locks:   shared.NewKeyedMutex(),
		logger:  logger,
		metrics: metrics,
	}
}

// Authorize decides whether the actor may exercise cap in the tenant. Read
// degradation never fails the caller; the decision comes from the last
// known-good records, or defaults.
func (s *Service) Authorize(ctx context.Context, tenantID string, actor policy.Actor, c capability.Capability) (Decision, error) {
	cfg, err := s.store.LoadConfig(ctx, tenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("tenant: authorize %s: %w", tenantID, err)
	}
	p, err := s.store.LoadPolicy(ctx, tenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("tenant: authorize %s: %w", tenantID, err)
	}

	isAdmin := policy.IsAdmin(cfg.AdminRoleIDs, actor)
	allowed := policy.Authorize(p, actor, isAdmin, c)
	if s.metrics != nil {
		s.metrics.Decision(allowed)
	}
	decision := Decision{
		ID:        uuid.NewString(),
		Allowed:   allowed,
		IsAdmin:   isAdmin,
		Effective: policy.Resolve(p, actor, isAdmin),
	}
	s.logger.Info("authorization decision",
		slog.String("decision_id", decision.ID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", actor.UserID),
		slog.String("capability", string(c)),
		slog.Bool("allowed", allowed),
		slog.Bool("is_admin", isAdmin))
	return decision, nil
}

// ResolveCapabilities returns the actor's effective capability set and admin
// status.
func (s *Service) ResolveCapabilities(ctx context.Context, tenantID string, actor policy.Actor) (capability.Set, bool, error) {
	cfg, err := s.store.LoadConfig(ctx, tenantID)
	if err != nil {
		return nil, false, fmt.Errorf("tenant: resolve %s: %w", tenantID, err)
	}
	p, err := s.store.LoadPolicy(ctx, tenantID)
	if err != nil {
		return nil, false, fmt.Errorf("tenant: resolve %s: %w", tenantID, err)
	}
	isAdmin := policy.IsAdmin(cfg.AdminRoleIDs, actor)
	return policy.Resolve(p, actor, isAdmin), isAdmin, nil
}

// DescribePolicy returns the tenant's policy for display and audit views,
// including disabled bindings.
func (s *Service) DescribePolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error) {
	return s.store.LoadPolicy(ctx, tenantID)
}

// Describe returns the tenant's config and policy together, loading both
// concurrently.
func (s *Service) Describe(ctx context.Context, tenantID string) (*Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg, err := s.store.LoadConfig(gctx, tenantID)
		snap.Config = cfg
		return err
	})
	g.Go(func() error {
		p, err := s.store.LoadPolicy(gctx, tenantID)
		snap.Policy = p
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tenant: describe %s: %w", tenantID, err)
	}
	return &snap, nil
}

// SetDefaultCapabilities replaces the tenant's default capability set.
// Unknown names are dropped and returned, never rejected.
func (s *Service) SetDefaultCapabilities(ctx context.Context, tenantID string, names []string) ([]string, error) {
	caps, dropped := s.parse(tenantID, "set default capabilities", names)
	err := s.mutatePolicy(ctx, tenantID, func(p *policy.GuildPolicy) error {
		p.DefaultCapabilities = caps
		return nil
	})
	return dropped, err
}

// BindRole upserts a role binding, replacing any existing binding for the
// role and enabling it.
func (s *Service) BindRole(ctx context.Context, tenantID, roleID, displayName string, names []string) ([]string, error) {
	if strings.TrimSpace(roleID) == "" {
		return nil, fmt.Errorf("tenant: %w: role id required", shared.ErrValidation)
	}
	caps, dropped := s.parse(tenantID, "bind role", names)
	err := s.mutatePolicy(ctx, tenantID, func(p *policy.GuildPolicy) error {
		p.UpsertRoleBinding(roleID, displayName, caps)
		return nil
	})
	return dropped, err
}

// UnbindRole removes a role binding entirely. Returns shared.ErrNotFound
// when no binding exists.
func (s *Service) UnbindRole(ctx context.Context, tenantID, roleID string) error {
	return s.mutatePolicy(ctx, tenantID, func(p *policy.GuildPolicy) error {
		if !p.RemoveRoleBinding(roleID) {
			return fmt.Errorf("tenant: unbind role %s: %w", roleID, shared.ErrNotFound)
		}
		return nil
	})
}

// BindUser upserts a user binding. custom selects replace semantics at
// resolution time.
func (s *Service) BindUser(ctx context.Context, tenantID, userID, displayName string, names []string, custom bool) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("tenant: %w: user id required", shared.ErrValidation)
	}
	caps, dropped := s.parse(tenantID, "bind user", names)
	err := s.mutatePolicy(ctx, tenantID, func(p *policy.GuildPolicy) error {
		p.UpsertUserBinding(userID, displayName, caps, custom)
		return nil
	})
	return dropped, err
}

// UnbindUser removes a user binding entirely. Returns shared.ErrNotFound
// when no binding exists.
func (s *Service) UnbindUser(ctx context.Context, tenantID, userID string) error {
	return s.mutatePolicy(ctx, tenantID, func(p *policy.GuildPolicy) error {
		if !p.RemoveUserBinding(userID) {
			return fmt.Errorf("tenant: unbind user %s: %w", userID, shared.ErrNotFound)
		}
		return nil
	})
}

// GetConfig returns the tenant's configuration, creating the default on
// first reference.
func (s *Service) GetConfig(ctx context.Context, tenantID string) (*Config, error) {
	return s.store.LoadConfig(ctx, tenantID)
}

// SetProvider selects the tenant's AI provider.
func (s *Service) SetProvider(ctx context.Context, tenantID string, p Provider) error {
	if !KnownProvider(p) {
		return fmt.Errorf("tenant: %w: unknown provider %q", shared.ErrValidation, p)
	}
	return s.mutateConfig(ctx, tenantID, func(cfg *Config) error {
		cfg.Provider = p
		return nil
	})
}

// SetCustomPrompt stores the tenant's prompt override and enables it.
func (s *Service) SetCustomPrompt(ctx context.Context, tenantID, prompt string) error {
	return s.mutateConfig(ctx, tenantID, func(cfg *Config) error {
		cfg.CustomPrompt = prompt
		cfg.Settings.UseCustomPrompt = prompt != ""
		return nil
	})
}

// SetAnalyzedChannels replaces the ordered analyzed-channel list.
func (s *Service) SetAnalyzedChannels(ctx context.Context, tenantID string, channelIDs []string) error {
	return s.mutateConfig(ctx, tenantID, func(cfg *Config) error {
		cfg.AnalyzedChannelIDs = Normalize(channelIDs)
		return nil
	})
}

// SetCommunityRules replaces the ordered community rules list.
func (s *Service) SetCommunityRules(ctx context.Context, tenantID string, rules []string) error {
	return s.mutateConfig(ctx, tenantID, func(cfg *Config) error {
		out := make([]string, 0, len(rules))
		for _, r := range rules {
			if r = strings.TrimSpace(r); r != "" {
				out = append(out, r)
			}
		}
		cfg.CommunityRules = out
		return nil
	})
}

// SetAdminRoles replaces the set of roles the admin classifier honors.
func (s *Service) SetAdminRoles(ctx context.Context, tenantID string, roleIDs []string) error {
	return s.mutateConfig(ctx, tenantID, func(cfg *Config) error {
		cfg.AdminRoleIDs = Normalize(roleIDs)
		return nil
	})
}

// SetDisplayName refreshes the cached guild name.
func (s *Service) SetDisplayName(ctx context.Context, tenantID, name string) error {
	return s.mutateConfig(ctx, tenantID, func(cfg *Config) error {
		cfg.DisplayName = strings.TrimSpace(name)
		return nil
	})
}

// UpdateSettings replaces the tenant's behavior toggles.
func (s *Service) UpdateSettings(ctx context.Context, tenantID string, settings Settings) error {
	if settings.DefaultAnalysisPeriod <= 0 {
		return fmt.Errorf("tenant: %w: analysis period must be positive", shared.ErrValidation)
	}
	return s.mutateConfig(ctx, tenantID, func(cfg *Config) error {
		cfg.Settings = settings
		return nil
	})
}

// mutatePolicy runs one load-mutate-save cycle under the tenant's lock.
func (s *Service) mutatePolicy(ctx context.Context, tenantID string, mutate func(*policy.GuildPolicy) error) error {
	s.locks.Lock(tenantID)
	defer s.locks.Unlock(tenantID)

	p, err := s.store.LoadPolicy(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("tenant: load policy %s: %w", tenantID, err)
	}
	if err := mutate(p); err != nil {
		return err
	}
	if err := s.store.SavePolicy(ctx, tenantID, p); err != nil {
		return fmt.Errorf("tenant: save policy %s: %w", tenantID, err)
	}
	return nil
}

// mutateConfig runs one load-mutate-save cycle under the tenant's lock.
func (s *Service) mutateConfig(ctx context.Context, tenantID string, mutate func(*Config) error) error {
	s.locks.Lock(tenantID)
	defer s.locks.Unlock(tenantID)

	cfg, err := s.store.LoadConfig(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("tenant: load config %s: %w", tenantID, err)
	}
	if err := mutate(cfg); err != nil {
		return err
	}
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("tenant: save config %s: %w", tenantID, err)
	}
	return nil
}

func (s *Service) parse(tenantID, op string, names []string) (capability.Set, []string) {
	caps, dropped := capability.ParseSet(names)
	if len(dropped) > 0 {
		s.logger.Warn("dropped unknown capabilities",
			slog.String("tenant", tenantID),
			slog.String("op", op),
			slog.Any("dropped", dropped))
	}
	return caps, dropped
}
