package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wardenbot/warden/internal/jobs"
	"github.com/wardenbot/warden/internal/store"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PolicyBackfillJob sweeps tenants known to the file fallback through the
// dual store. Each read triggers the store's own read-through migration, so
// a sweep after a primary outage drains pending documents back into the
// primary without any dedicated copy path.
type PolicyBackfillJob struct {
	Files   *store.FileBackend
	Store   store.Loader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPolicyBackfillJob wires dependencies for the backfill handler.
func NewPolicyBackfillJob(files *store.FileBackend, loader store.Loader, logger *slog.Logger, metrics *jobmetrics.Metrics) *PolicyBackfillJob {
	return &PolicyBackfillJob{
		Files:   files,
		Store:   loader,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes policy backfill tasks.
func (j *PolicyBackfillJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Files == nil || j.Store == nil {
		return errors.New("policy backfill: handler not configured")
	}
	var payload PolicyBackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPolicyBackfill)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	tenantIDs := payload.TenantIDs
	if len(tenantIDs) == 0 {
		ids, err := j.Files.TenantIDs()
		if err != nil {
			resultErr = fmt.Errorf("jobs: list fallback tenants: %w", err)
			return resultErr
		}
		tenantIDs = ids
	}

	start := j.clock()
	swept, failed := 0, 0
	for _, id := range tenantIDs {
		if err := ctx.Err(); err != nil {
			resultErr = err
			return resultErr
		}
		if err := j.sweepTenant(ctx, id); err != nil {
			failed++
			j.logger().Warn("backfill tenant failed",
				slog.String("tenant_id", id),
				slog.Any("error", err))
			continue
		}
		swept++
	}
	j.metrics().AddTenants(TaskPolicyBackfill, "swept", swept)
	j.metrics().AddTenants(TaskPolicyBackfill, "failed", failed)
	j.logger().Info("policy backfill complete",
		slog.Int("swept", swept),
		slog.Int("failed", failed),
		slog.Duration("elapsed", j.clock().Sub(start)))

	if failed > 0 {
		resultErr = fmt.Errorf("jobs: backfill: %d of %d tenants failed", failed, len(tenantIDs))
	}
	return resultErr
}

func (j *PolicyBackfillJob) sweepTenant(ctx context.Context, tenantID string) error {
	if _, err := j.Store.LoadConfig(ctx, tenantID); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := j.Store.LoadPolicy(ctx, tenantID); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

func (j *PolicyBackfillJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PolicyBackfillJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
