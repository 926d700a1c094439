package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardenbot/warden/internal/policy"
	"github.com/wardenbot/warden/internal/shared"
	"github.com/wardenbot/warden/internal/tenant"
)

const (
	configFileName = "config.json"
	policyFileName = "policy.json"
)

// FileBackend stores one JSON document per tenant per model under a root
// directory. Writes go through a temp file and rename so readers never see a
// partial document.
type FileBackend struct {
	root string
}

// NewFileBackend ensures the root directory exists.
func NewFileBackend(root string) (*FileBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store/file: create root: %w", err)
	}
	return &FileBackend{root: root}, nil
}

var _ Backend = (*FileBackend)(nil)

// Name identifies the backend in logs.
func (b *FileBackend) Name() string { return "file" }

// Root returns the backend's base directory.
func (b *FileBackend) Root() string { return b.root }

// TenantIDs lists every tenant with at least one record on disk. Used by the
// backfill sweep.
func (b *FileBackend) TenantIDs() ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("store/file: list tenants: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// GetConfig reads a tenant's configuration document.
func (b *FileBackend) GetConfig(ctx context.Context, tenantID string) (*tenant.Config, error) {
	var cfg tenant.Config
	if err := b.read(ctx, tenantID, configFileName, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PutConfig writes a tenant's configuration document.
func (b *FileBackend) PutConfig(ctx context.Context, cfg *tenant.Config) error {
	return b.write(ctx, cfg.TenantID, configFileName, cfg)
}

// GetPolicy reads a tenant's policy document.
func (b *FileBackend) GetPolicy(ctx context.Context, tenantID string) (*policy.GuildPolicy, error) {
	var p policy.GuildPolicy
	if err := b.read(ctx, tenantID, policyFileName, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PutPolicy writes a tenant's policy document.
func (b *FileBackend) PutPolicy(ctx context.Context, tenantID string, p *policy.GuildPolicy) error {
	return b.write(ctx, tenantID, policyFileName, p)
}

func (b *FileBackend) read(ctx context.Context, tenantID, name string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := b.tenantDir(tenantID)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("store/file: read %s/%s: %w", tenantID, name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("store/file: decode %s/%s: %w: %v", tenantID, name, shared.ErrValidation, err)
	}
	return nil
}

func (b *FileBackend) write(ctx context.Context, tenantID, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := b.tenantDir(tenantID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store/file: create tenant dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store/file: encode %s/%s: %w", tenantID, name, err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("store/file: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store/file: write %s/%s: %w", tenantID, name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store/file: sync %s/%s: %w", tenantID, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store/file: close %s/%s: %w", tenantID, name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("store/file: rename %s/%s: %w", tenantID, name, err)
	}
	return nil
}

// tenantDir rejects tenant IDs that would escape the root directory.
func (b *FileBackend) tenantDir(tenantID string) (string, error) {
	if tenantID == "" || strings.ContainsAny(tenantID, `/\`) || tenantID == "." || tenantID == ".." {
		return "", fmt.Errorf("store/file: %w: unsafe tenant id %q", shared.ErrValidation, tenantID)
	}
	return filepath.Join(b.root, tenantID), nil
}
