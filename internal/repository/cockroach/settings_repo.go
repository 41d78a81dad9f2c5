package cockroach

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepository is a key/value store for tenant settings
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the value of key or repository.ErrNotFound
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	if err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value); err != nil {
		return "", mapError(err, "get setting")
	}
	return value, nil
}

// Set upserts key
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		UPSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
	`, key, value, time.Now().UTC())
	if err != nil {
		return mapError(err, "set setting")
	}
	return nil
}
