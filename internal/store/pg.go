package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardenbot/warden/internal/policy"
	"github.com/wardenbot/warden/internal/shared"
	"github.com/wardenbot/warden/internal/tenant"
)

// PGBackend stores one JSONB record per tenant per model in PostgreSQL.
type PGBackend struct {
	pool *pgxpool.Pool
}

// NewPGBackend wraps the connection pool.
func NewPGBackend(pool *pgxpool.Pool) *PGBackend {
	return &PGBackend{pool: pool}
}

var _ Backend = (*PGBackend)(nil)

// EnsureSchema creates the storage tables when absent.
func (b *PGBackend) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS tenant_configs (
			tenant_id  TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS guild_policies (
			tenant_id  TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := b.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store/pg: ensure schema: %w", err)
	}
	return nil
}

// Name identifies the backend in logs.
func (b *PGBackend) Name() string { return "postgres" }

// GetConfig reads a tenant's configuration record.
func (b *PGBackend) GetConfig(ctx context.Context, tenantID string) (*tenant.Config, error) {
	var data []byte
	err := b.pool.QueryRow(ctx,
		`SELECT data FROM tenant_configs WHERE tenant_id = $1`, tenantID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("store/pg: get config %s: %w", tenantID, err)
	}
	var cfg tenant.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("store/pg: decode config %s: %w: %v", tenantID, shared.ErrValidation, err)
	}
	return &cfg, nil
}

// PutConfig upserts a tenant's configuration record.
func (b *PGBackend) PutConfig(ctx context.Context, cfg *tenant.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store/pg: encode config %s: %w", cfg.TenantID, err)
	}
	return b.upsert(ctx, "tenant_configs", cfg.TenantID, data)
}

// GetPolicy reads a tenant's policy record.
func (b *PGBackend) GetPolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error) {
	var data []byte
	err := b.pool.QueryRow(ctx,
		`SELECT data FROM guild_policies WHERE tenant_id = $1`, tenantID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("store/pg: get policy %s: %w", tenantID, err)
	}
	var p policy.GuildPolicy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("store/pg: decode policy %s: %w: %v", tenantID, shared.ErrValidation, err)
	}
	return &p, nil
}

// PutPolicy upserts a tenant's policy record.
func (b *PGBackend) PutPolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store/pg: encode policy %s: %w", tenantID, err)
	}
	return b.upsert(ctx, "guild_policies", tenantID, data)
}

func (b *PGBackend) upsert(ctx context.Context, table, tenantID string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (tenant_id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()
	`, table)
	if _, err := b.pool.Exec(ctx, query, tenantID, data); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("store/pg: upsert %s %s (sqlstate %s): %w", table, tenantID, pgErr.Code, err)
		}
		return fmt.Errorf("store/pg: upsert %s %s: %w", table, tenantID, err)
	}
	return nil
}
