package repositories

import (
	"context"

	"github.com/prudhvinik1/retailpulse/internal/models"
)

// MirrorRepository is the local replica of CRM orders and customers.
// Upserts are keyed by id and apply a whole batch or nothing.
type MirrorRepository interface {
	UpsertOrders(ctx context.Context, orders []models.MirrorOrder) error
	UpsertCustomers(ctx context.Context, customers []models.MirrorCustomer) error
	QueryOrders(ctx context.Context, tr models.TimeRange, preds []models.Predicate) ([]models.Record, error)
}

type WatermarkRepository interface {
	// Get returns the default watermark when the entity was never synced.
	Get(ctx context.Context, entity models.EntityKind) (*models.SyncWatermark, error)
	Save(ctx context.Context, wm *models.SyncWatermark) error
}

// SyncLock guards an entity kind against overlapping syncs across replicas.
type SyncLock interface {
	TryAcquire(ctx context.Context, entity models.EntityKind) (release func(), acquired bool, err error)
}
