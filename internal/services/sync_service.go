package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/prudhvinik1/retailpulse/internal/clock"
	"github.com/prudhvinik1/retailpulse/internal/metrics"
	"github.com/prudhvinik1/retailpulse/internal/models"
	"github.com/prudhvinik1/retailpulse/internal/repositories"
	"github.com/prudhvinik1/retailpulse/internal/retailcrm"
	"go.uber.org/zap"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrUnknownEntity  = errors.New("unknown entity")
)

// SyncFailure reports a failed sync run. The entity's watermark was left
// unchanged.
type SyncFailure struct {
	Entity models.EntityKind
	Err    error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("sync %s failed: %v", e.Entity, e.Err)
}

func (e *SyncFailure) Unwrap() error {
	return e.Err
}

type SyncState string

const (
	SyncIdle      SyncState = "idle"
	SyncFetching  SyncState = "fetching"
	SyncUpserting SyncState = "upserting"
	SyncFailed    SyncState = "failed"
)

// RemotePages is the part of the CRM gateway the sync service pages through.
type RemotePages interface {
	OrderPages(ctx context.Context, filter retailcrm.Filter) iter.Seq2[retailcrm.Page[models.Order], error]
	CustomerPages(ctx context.Context, filter retailcrm.Filter) iter.Seq2[retailcrm.Page[models.Customer], error]
}

type SyncResult struct {
	Entity    models.EntityKind
	Synced    int
	Duration  time.Duration
	Watermark time.Time
}

type SyncAllResult struct {
	Orders        SyncResult
	Customers     SyncResult
	TotalDuration time.Duration
}

type SyncConfig struct {
	Clock    clock.Clock
	Location *time.Location // CRM timezone used to format the watermark
	Lock     repositories.SyncLock
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type entityState struct {
	running sync.Mutex
	state   SyncState
	lastErr error
}

type SyncService struct {
	remote     RemotePages
	mirror     repositories.MirrorRepository
	watermarks repositories.WatermarkRepository
	lock       repositories.SyncLock
	clock      clock.Clock
	location   *time.Location
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu     sync.Mutex
	states map[models.EntityKind]*entityState
}

func NewSyncService(
	remote RemotePages,
	mirror repositories.MirrorRepository,
	watermarks repositories.WatermarkRepository,
	cfg SyncConfig,
) *SyncService {
	s := &SyncService{
		remote:     remote,
		mirror:     mirror,
		watermarks: watermarks,
		lock:       cfg.Lock,
		clock:      cfg.Clock,
		location:   cfg.Location,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		states:     make(map[models.EntityKind]*entityState),
	}
	if s.clock == nil {
		s.clock = clock.SystemClock{}
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func ParseEntity(s string) (models.EntityKind, error) {
	switch e := models.EntityKind(s); e {
	case models.EntityOrders, models.EntityCustomers:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q (expected orders, customers or all)", ErrUnknownEntity, s)
}

func (s *SyncService) SyncOrders(ctx context.Context) (SyncResult, error) {
	return s.Sync(ctx, models.EntityOrders)
}

func (s *SyncService) SyncCustomers(ctx context.Context) (SyncResult, error) {
	return s.Sync(ctx, models.EntityCustomers)
}

// SyncAll syncs orders, then customers. It stops at the first failure.
func (s *SyncService) SyncAll(ctx context.Context) (SyncAllResult, error) {
	var res SyncAllResult
	orders, err := s.SyncOrders(ctx)
	if err != nil {
		return res, err
	}
	res.Orders = orders

	customers, err := s.SyncCustomers(ctx)
	if err != nil {
		return res, err
	}
	res.Customers = customers
	res.TotalDuration = orders.Duration + customers.Duration
	return res, nil
}

// Sync pulls every record created since the entity's watermark into the
// mirror. A second call for the same entity while one is running returns
// ErrSyncInProgress.
func (s *SyncService) Sync(ctx context.Context, entity models.EntityKind) (SyncResult, error) {
	st, err := s.entityState(entity)
	if err != nil {
		return SyncResult{}, err
	}
	if !st.running.TryLock() {
		s.metrics.ObserveSync(string(entity), "rejected", 0, 0)
		return SyncResult{}, ErrSyncInProgress
	}
	defer st.running.Unlock()
	defer s.settle(entity)

	if s.lock != nil {
		release, acquired, err := s.lock.TryAcquire(ctx, entity)
		if err != nil {
			return SyncResult{}, s.fail(entity, err)
		}
		if !acquired {
			s.metrics.ObserveSync(string(entity), "rejected", 0, 0)
			return SyncResult{}, ErrSyncInProgress
		}
		defer release()
	}

	switch entity {
	case models.EntityOrders:
		return syncEntity(ctx, s, entity, s.remote.OrderPages, func(ctx context.Context, items []models.Order, now time.Time) error {
			rows := make([]models.MirrorOrder, 0, len(items))
			for _, o := range items {
				rows = append(rows, models.NewMirrorOrder(o, now))
			}
			return s.mirror.UpsertOrders(ctx, rows)
		})
	default:
		return syncEntity(ctx, s, entity, s.remote.CustomerPages, func(ctx context.Context, items []models.Customer, now time.Time) error {
			rows := make([]models.MirrorCustomer, 0, len(items))
			for _, c := range items {
				rows = append(rows, models.NewMirrorCustomer(c, now))
			}
			return s.mirror.UpsertCustomers(ctx, rows)
		})
	}
}

func syncEntity[T any](
	ctx context.Context,
	s *SyncService,
	entity models.EntityKind,
	pages func(context.Context, retailcrm.Filter) iter.Seq2[retailcrm.Page[T], error],
	upsert func(context.Context, []T, time.Time) error,
) (SyncResult, error) {
	s.setState(entity, SyncFetching, nil)

	wm, err := s.watermarks.Get(ctx, entity)
	if err != nil {
		return SyncResult{}, s.fail(entity, err)
	}

	start := s.clock.Now()
	filter := retailcrm.Filter{
		"createdAtFrom": wm.LastSyncTimestamp.In(s.location).Format(models.CRMTimeLayout),
	}
	s.logger.Info("sync started",
		zap.String("entity", string(entity)),
		zap.Time("watermark", wm.LastSyncTimestamp),
	)

	synced := 0
	pageNo := 0
	for page, err := range pages(ctx, filter) {
		if err != nil {
			return SyncResult{}, s.fail(entity, err)
		}
		pageNo++

		s.setState(entity, SyncUpserting, nil)
		if err := upsert(ctx, page.Items, s.clock.Now()); err != nil {
			return SyncResult{}, s.fail(entity, err)
		}
		synced += len(page.Items)
		s.setState(entity, SyncFetching, nil)

		s.logger.Debug("sync page upserted",
			zap.String("entity", string(entity)),
			zap.Int("page", pageNo),
			zap.Int("items", len(page.Items)),
		)
	}

	duration := s.clock.Now().Sub(start)
	next := start.UTC()
	if next.Before(wm.LastSyncTimestamp) {
		next = wm.LastSyncTimestamp
	}
	err = s.watermarks.Save(ctx, &models.SyncWatermark{
		Entity:            entity,
		LastSyncTimestamp: next,
		Synced:            synced,
		DurationMs:        duration.Milliseconds(),
	})
	if err != nil {
		return SyncResult{}, s.fail(entity, err)
	}

	s.setState(entity, SyncIdle, nil)
	s.metrics.ObserveSync(string(entity), "success", synced, duration)
	s.logger.Info("sync finished",
		zap.String("entity", string(entity)),
		zap.Int("synced", synced),
		zap.Duration("duration", duration),
	)

	return SyncResult{Entity: entity, Synced: synced, Duration: duration, Watermark: next}, nil
}

// State returns the entity's current sync state and the error of the last
// run. A failed run ends in SyncIdle with its error kept until the next run
// starts.
func (s *SyncService) State(entity models.EntityKind) (SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[entity]
	if !ok {
		return SyncIdle, nil
	}
	return st.state, st.lastErr
}

func (s *SyncService) fail(entity models.EntityKind, err error) error {
	s.setState(entity, SyncFailed, err)
	s.metrics.ObserveSync(string(entity), "failed", 0, 0)
	s.logger.Error("sync failed", zap.String("entity", string(entity)), zap.Error(err))
	return &SyncFailure{Entity: entity, Err: err}
}

// settle moves a failed run back to SyncIdle, keeping its error.
func (s *SyncService) settle(entity models.EntityKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[entity]; ok && st.state == SyncFailed {
		st.state = SyncIdle
	}
}

func (s *SyncService) entityState(entity models.EntityKind) (*entityState, error) {
	if _, err := ParseEntity(string(entity)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[entity]
	if !ok {
		st = &entityState{state: SyncIdle}
		s.states[entity] = st
	}
	return st, nil
}

func (s *SyncService) setState(entity models.EntityKind, state SyncState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[entity]
	if !ok {
		return
	}
	st.state = state
	st.lastErr = err
}
