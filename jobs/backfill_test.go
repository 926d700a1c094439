package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenbot/warden/internal/capability"
	"github.com/wardenbot/warden/internal/policy"
	"github.com/wardenbot/warden/internal/store"
	"github.com/wardenbot/warden/internal/tenant"
)

func newBackfillFixture(t *testing.T) (*PolicyBackfillJob, *store.FileBackend, *store.FileBackend) {
	t.Helper()
	primary, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	fallback, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	dual := store.NewDual(primary, fallback, 0, nil, nil)
	job := NewPolicyBackfillJob(fallback, dual, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	return job, primary, fallback
}

func seedTenant(t *testing.T, backend *store.FileBackend, tenantID string) {
	t.Helper()
	ctx := context.Background()
	cfg := tenant.NewConfig(tenantID)
	require.NoError(t, backend.PutConfig(ctx, cfg))
	pol := policy.NewGuildPolicy()
	pol.UpsertRoleBinding("mod", "Mods", capability.NewSet(capability.RunAnalysis))
	require.NoError(t, backend.PutPolicy(ctx, tenantID, pol))
}

func TestPolicyBackfillSweepMigratesFallbackTenants(t *testing.T) {
	job, primary, fallback := newBackfillFixture(t)
	seedTenant(t, fallback, "guild-1")
	seedTenant(t, fallback, "guild-2")

	task, err := NewPolicyBackfillTask(PolicyBackfillPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	for _, id := range []string{"guild-1", "guild-2"} {
		cfg, err := primary.GetConfig(context.Background(), id)
		require.NoError(t, err, "config for %s should have migrated", id)
		assert.Equal(t, id, cfg.TenantID)
		_, err = primary.GetPolicy(context.Background(), id)
		require.NoError(t, err, "policy for %s should have migrated", id)
	}
}

func TestPolicyBackfillHonoursExplicitTenantList(t *testing.T) {
	job, primary, fallback := newBackfillFixture(t)
	seedTenant(t, fallback, "guild-1")
	seedTenant(t, fallback, "guild-2")

	task, err := NewPolicyBackfillTask(PolicyBackfillPayload{TenantIDs: []string{"guild-2"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	_, err = primary.GetConfig(context.Background(), "guild-2")
	require.NoError(t, err)
	_, err = primary.GetConfig(context.Background(), "guild-1")
	assert.Error(t, err, "unlisted tenant must be left alone")
}

func TestPolicyBackfillSkipsRetryOnBadPayload(t *testing.T) {
	job, _, _ := newBackfillFixture(t)
	task := asynq.NewTask(TaskPolicyBackfill, []byte("{not json"))
	assert.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestPolicyBackfillEmptyFallbackIsNoop(t *testing.T) {
	job, _, _ := newBackfillFixture(t)
	task, err := NewPolicyBackfillTask(PolicyBackfillPayload{})
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
}
