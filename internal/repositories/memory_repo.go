package repositories

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/prudhvinik1/retailpulse/internal/models"
)

// MemoryMirrorRepository keeps the mirror in process memory.
type MemoryMirrorRepository struct {
	mu        sync.RWMutex
	orders    map[int64]models.MirrorOrder
	customers map[int64]models.MirrorCustomer
}

func NewMemoryMirrorRepository() *MemoryMirrorRepository {
	return &MemoryMirrorRepository{
		orders:    make(map[int64]models.MirrorOrder),
		customers: make(map[int64]models.MirrorCustomer),
	}
}

func (r *MemoryMirrorRepository) UpsertOrders(ctx context.Context, orders []models.MirrorOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return nil
}

func (r *MemoryMirrorRepository) UpsertCustomers(ctx context.Context, customers []models.MirrorCustomer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range customers {
		r.customers[c.ID] = c
	}
	return nil
}

func (r *MemoryMirrorRepository) QueryOrders(ctx context.Context, tr models.TimeRange, preds []models.Predicate) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]models.MirrorOrder, 0, len(r.orders))
	for _, o := range r.orders {
		if tr.Contains(o.CreatedAt) {
			matched = append(matched, o)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b models.MirrorOrder) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	records := make([]models.Record, 0, len(matched))
	for _, o := range matched {
		rec := o.Record()
		if models.MatchAll(rec, preds) {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *MemoryMirrorRepository) OrderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

func (r *MemoryMirrorRepository) CustomerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.customers)
}

// Order returns the stored row for id.
func (r *MemoryMirrorRepository) Order(id int64) (models.MirrorOrder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	return o, ok
}

type MemoryWatermarkRepository struct {
	mu         sync.RWMutex
	watermarks map[models.EntityKind]models.SyncWatermark
}

func NewMemoryWatermarkRepository() *MemoryWatermarkRepository {
	return &MemoryWatermarkRepository{watermarks: make(map[models.EntityKind]models.SyncWatermark)}
}

func (r *MemoryWatermarkRepository) Get(ctx context.Context, entity models.EntityKind) (*models.SyncWatermark, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wm, ok := r.watermarks[entity]
	if !ok {
		return models.NewDefaultWatermark(entity), nil
	}
	return &wm, nil
}

func (r *MemoryWatermarkRepository) Save(ctx context.Context, wm *models.SyncWatermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watermarks[wm.Entity] = *wm
	return nil
}
