package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenbot/warden/internal/capability"
	"github.com/wardenbot/warden/internal/policy"
	"github.com/wardenbot/warden/internal/shared"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type mockStore struct {
	mu       sync.Mutex
	configs  map[string]*Config
	policies map[string]*policy.GuildPolicy

	// Error injection
	loadConfigErr error
	loadPolicyErr error
	saveConfigErr error
	savePolicyErr error

	savePolicyCalls int
}

func newMockStore() *mockStore {
	return &mockStore{
		configs:  make(map[string]*Config),
		policies: make(map[string]*policy.GuildPolicy),
	}
}

func (m *mockStore) LoadConfig(ctx context.Context, tenantID string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadConfigErr != nil {
		return nil, m.loadConfigErr
	}
	cfg, ok := m.configs[tenantID]
	if !ok {
		cfg = NewConfig(tenantID)
		m.configs[tenantID] = cfg
	}
	out := *cfg
	return &out, nil
}

func (m *mockStore) SaveConfig(ctx context.Context, cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveConfigErr != nil {
		return m.saveConfigErr
	}
	out := *cfg
	m.configs[cfg.TenantID] = &out
	return nil
}

func (m *mockStore) LoadPolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadPolicyErr != nil {
		return nil, m.loadPolicyErr
	}
	p, ok := m.policies[tenantID]
	if !ok {
		p = policy.NewGuildPolicy()
		m.policies[tenantID] = p
	}
	return p.Clone(), nil
}

func (m *mockStore) SavePolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savePolicyCalls++
	if m.savePolicyErr != nil {
		return m.savePolicyErr
	}
	m.policies[tenantID] = p.Clone()
	return nil
}

func newService(store Store) *Service {
	return NewService(store, nil, nil)
}

// ============================================================================
// AUTHORIZATION
// ============================================================================

func TestAuthorizeDefaultTenant(t *testing.T) {
	s := newService(newMockStore())
	ctx := context.Background()
	actor := policy.Actor{UserID: "U1"}

	d, err := s.Authorize(ctx, "T1", actor, capability.ViewHelp)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.False(t, d.IsAdmin)
	assert.NotEmpty(t, d.ID)

	d, err = s.Authorize(ctx, "T1", actor, capability.RunAnalysis)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestAuthorizeOwnerIsAdmin(t *testing.T) {
	s := newService(newMockStore())
	actor := policy.Actor{UserID: "U1", IsOwner: true}

	d, err := s.Authorize(context.Background(), "T1", actor, capability.ManagePermissions)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.IsAdmin)
	assert.True(t, d.Effective.Equal(capability.FullSet()))
}

func TestAuthorizeConfiguredAdminRole(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()
	require.NoError(t, s.SetAdminRoles(ctx, "T1", []string{"mods"}))

	d, err := s.Authorize(ctx, "T1", policy.Actor{UserID: "U1", RoleIDs: []string{"mods"}}, capability.ManageConfig)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.IsAdmin)
}

func TestAuthorizeFullScenario(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()

	_, err := s.BindRole(ctx, "T1", "R1", "Analysts", []string{"use-bot", "run-analysis"})
	require.NoError(t, err)
	_, err = s.BindUser(ctx, "T1", "U1", "Sam", []string{"consult"}, false)
	require.NoError(t, err)

	caps, isAdmin, err := s.ResolveCapabilities(ctx, "T1", policy.Actor{UserID: "U1", RoleIDs: []string{"R1"}})
	require.NoError(t, err)
	assert.False(t, isAdmin)
	assert.True(t, caps.Equal(capability.NewSet(
		capability.ViewHelp, capability.UseBot, capability.RunAnalysis, capability.Consult,
	)))

	// Flip the same user to a custom binding: replace semantics.
	_, err = s.BindUser(ctx, "T1", "U1", "Sam", []string{"consult"}, true)
	require.NoError(t, err)

	caps, _, err = s.ResolveCapabilities(ctx, "T1", policy.Actor{UserID: "U1", RoleIDs: []string{"R1"}})
	require.NoError(t, err)
	assert.True(t, caps.Equal(capability.NewSet(capability.Consult)))
}

// ============================================================================
// ADMINISTRATION
// ============================================================================

func TestBindRoleDropsUnknownCapabilities(t *testing.T) {
	store := newMockStore()
	s := newService(store)

	dropped, err := s.BindRole(context.Background(), "T1", "R1", "Team", []string{"use-bot", "fly", "teleport"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fly", "teleport"}, dropped)

	p := store.policies["T1"]
	require.NotNil(t, p.RoleBindingFor("R1"))
	assert.True(t, p.RoleBindingFor("R1").Capabilities.Equal(capability.NewSet(capability.UseBot)))
}

func TestBindRoleUpsertIdempotent(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()

	_, err := s.BindRole(ctx, "T1", "R1", "Team", []string{"use-bot"})
	require.NoError(t, err)
	_, err = s.BindRole(ctx, "T1", "R1", "Team", []string{"use-bot"})
	require.NoError(t, err)

	assert.Len(t, store.policies["T1"].RoleBindings, 1)
}

func TestBindRoleRequiresRoleID(t *testing.T) {
	s := newService(newMockStore())
	_, err := s.BindRole(context.Background(), "T1", "  ", "Team", []string{"use-bot"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUnbindRoleNotFound(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()

	assert.ErrorIs(t, s.UnbindRole(ctx, "T1", "R1"), shared.ErrNotFound)

	_, err := s.BindRole(ctx, "T1", "R1", "Team", []string{"use-bot"})
	require.NoError(t, err)
	require.NoError(t, s.UnbindRole(ctx, "T1", "R1"))
	assert.Empty(t, store.policies["T1"].RoleBindings)
}

func TestUnbindUser(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()

	_, err := s.BindUser(ctx, "T1", "U1", "", []string{"consult"}, true)
	require.NoError(t, err)
	require.NoError(t, s.UnbindUser(ctx, "T1", "U1"))
	assert.ErrorIs(t, s.UnbindUser(ctx, "T1", "U1"), shared.ErrNotFound)
}

func TestSetDefaultCapabilitiesReplaces(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()

	_, err := s.SetDefaultCapabilities(ctx, "T1", []string{"view-help", "use-bot"})
	require.NoError(t, err)
	_, err = s.SetDefaultCapabilities(ctx, "T1", []string{"view-help"})
	require.NoError(t, err)

	assert.True(t, store.policies["T1"].DefaultCapabilities.Equal(capability.NewSet(capability.ViewHelp)))
}

func TestUnbindSkipsSaveOnMissingBinding(t *testing.T) {
	store := newMockStore()
	s := newService(store)

	_ = s.UnbindRole(context.Background(), "T1", "ghost")
	assert.Zero(t, store.savePolicyCalls)
}

func TestMutationSurfacesPersistenceError(t *testing.T) {
	store := newMockStore()
	store.savePolicyErr = shared.ErrPersistence
	s := newService(store)

	_, err := s.BindRole(context.Background(), "T1", "R1", "", []string{"use-bot"})
	assert.ErrorIs(t, err, shared.ErrPersistence)
}

func TestAuthorizeSurfacesStoreError(t *testing.T) {
	store := newMockStore()
	store.loadPolicyErr = errors.New("everything is down")
	s := newService(store)

	_, err := s.Authorize(context.Background(), "T1", policy.Actor{UserID: "U1"}, capability.ViewHelp)
	assert.Error(t, err)
}

// ============================================================================
// CONFIGURATION
// ============================================================================

func TestSetProvider(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()

	require.NoError(t, s.SetProvider(ctx, "T1", ProviderAnthropic))
	assert.Equal(t, ProviderAnthropic, store.configs["T1"].Provider)

	assert.ErrorIs(t, s.SetProvider(ctx, "T1", Provider("skynet")), shared.ErrValidation)
}

func TestSetCustomPromptTogglesSetting(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()

	require.NoError(t, s.SetCustomPrompt(ctx, "T1", "be nice"))
	assert.True(t, store.configs["T1"].Settings.UseCustomPrompt)

	require.NoError(t, s.SetCustomPrompt(ctx, "T1", ""))
	assert.False(t, store.configs["T1"].Settings.UseCustomPrompt)
}

func TestSetAnalyzedChannelsNormalizes(t *testing.T) {
	store := newMockStore()
	s := newService(store)

	require.NoError(t, s.SetAnalyzedChannels(context.Background(), "T1", []string{" C1 ", "C2", "C1", ""}))
	assert.Equal(t, []string{"C1", "C2"}, store.configs["T1"].AnalyzedChannelIDs)
}

func TestUpdateSettingsValidatesPeriod(t *testing.T) {
	s := newService(newMockStore())
	err := s.UpdateSettings(context.Background(), "T1", Settings{DefaultAnalysisPeriod: 0})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDescribeLoadsBoth(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()
	_, err := s.BindRole(ctx, "T1", "R1", "", []string{"use-bot"})
	require.NoError(t, err)

	snap, err := s.Describe(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "T1", snap.Config.TenantID)
	assert.NotNil(t, snap.Policy.RoleBindingFor("R1"))
}

func TestConcurrentMutationsDoNotLoseWrites(t *testing.T) {
	store := newMockStore()
	s := newService(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			roleID := string(rune('A' + n))
			_, err := s.BindRole(ctx, "T1", roleID, "", []string{"use-bot"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.policies["T1"].RoleBindings, 10)
}
