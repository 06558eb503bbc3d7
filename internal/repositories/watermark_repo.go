package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/retailpulse/internal/models"
)

type PostgresWatermarkRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresWatermarkRepository(pool *pgxpool.Pool) *PostgresWatermarkRepository {
	return &PostgresWatermarkRepository{pool: pool}
}

func (r *PostgresWatermarkRepository) Get(ctx context.Context, entity models.EntityKind) (*models.SyncWatermark, error) {
	query := `SELECT entity, last_sync_timestamp, synced, duration_ms, updated_at
	          FROM sync_metadata
	          WHERE entity = $1`

	var (
		wm     models.SyncWatermark
		entStr string
	)
	err := r.pool.QueryRow(ctx, query, string(entity)).Scan(
		&entStr,
		&wm.LastSyncTimestamp,
		&wm.Synced,
		&wm.DurationMs,
		&wm.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewDefaultWatermark(entity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}
	wm.Entity = models.EntityKind(entStr)
	wm.LastSyncTimestamp = wm.LastSyncTimestamp.UTC()
	return &wm, nil
}

func (r *PostgresWatermarkRepository) Save(ctx context.Context, wm *models.SyncWatermark) error {
	query := `INSERT INTO sync_metadata (entity, last_sync_timestamp, synced, duration_ms, updated_at)
	          VALUES ($1, $2, $3, $4, NOW())
	          ON CONFLICT (entity) DO UPDATE SET
	              last_sync_timestamp = EXCLUDED.last_sync_timestamp,
	              synced = EXCLUDED.synced,
	              duration_ms = EXCLUDED.duration_ms,
	              updated_at = NOW()
	          RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		string(wm.Entity),
		wm.LastSyncTimestamp.UTC(),
		wm.Synced,
		wm.DurationMs,
	).Scan(&wm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	return nil
}
