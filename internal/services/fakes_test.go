package services

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prudhvinik1/retailpulse/internal/models"
	"github.com/prudhvinik1/retailpulse/internal/retailcrm"
	"github.com/stretchr/testify/require"
)

func order(t *testing.T, doc string) models.Order {
	t.Helper()
	o, err := models.DecodeOrder(json.RawMessage(doc))
	require.NoError(t, err)
	return o
}

func customer(t *testing.T, doc string) models.Customer {
	t.Helper()
	c, err := models.DecodeCustomer(json.RawMessage(doc))
	require.NoError(t, err)
	return c
}

// fakeRemote serves canned pages and records the filters it was asked for.
type fakeRemote struct {
	orderPages    [][]models.Order
	customerPages [][]models.Customer

	// failAt is the 1-based page that fails with err; 0 never fails.
	failAt int
	err    error

	// When set, iteration signals started and waits for release before the
	// first page.
	started chan struct{}
	release chan struct{}

	mu      sync.Mutex
	filters map[models.EntityKind][]retailcrm.Filter
}

func (f *fakeRemote) record(entity models.EntityKind, filter retailcrm.Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filters == nil {
		f.filters = make(map[models.EntityKind][]retailcrm.Filter)
	}
	f.filters[entity] = append(f.filters[entity], filter)
}

func (f *fakeRemote) filtersFor(entity models.EntityKind) []retailcrm.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[entity]
}

func (f *fakeRemote) OrderPages(ctx context.Context, filter retailcrm.Filter) iter.Seq2[retailcrm.Page[models.Order], error] {
	f.record(models.EntityOrders, filter)
	return cannedPages(f, f.orderPages)
}

func (f *fakeRemote) CustomerPages(ctx context.Context, filter retailcrm.Filter) iter.Seq2[retailcrm.Page[models.Customer], error] {
	f.record(models.EntityCustomers, filter)
	return cannedPages(f, f.customerPages)
}

func cannedPages[T any](f *fakeRemote, pages [][]T) iter.Seq2[retailcrm.Page[T], error] {
	return func(yield func(retailcrm.Page[T], error) bool) {
		if f.started != nil {
			close(f.started)
			<-f.release
		}
		for i, items := range pages {
			if f.failAt == i+1 {
				yield(retailcrm.Page[T]{}, f.err)
				return
			}
			page := retailcrm.Page[T]{
				Items: items,
				Pagination: retailcrm.Pagination{
					CurrentPage:    i + 1,
					TotalPageCount: len(pages),
				},
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// fakeFetcher returns the same orders for every filter.
type fakeFetcher struct {
	orders []models.Order
	err    error
	gate   chan struct{}

	calls   atomic.Int32
	mu      sync.Mutex
	filters []retailcrm.Filter
}

func (f *fakeFetcher) FetchOrders(ctx context.Context, filter retailcrm.Filter) ([]models.Order, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

func (f *fakeFetcher) lastFilter() retailcrm.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.filters) == 0 {
		return nil
	}
	return f.filters[len(f.filters)-1]
}

// brokenMirror fails every query.
type brokenMirror struct{}

var errMirrorDown = errors.New("connection refused")

func (brokenMirror) UpsertOrders(ctx context.Context, orders []models.MirrorOrder) error {
	return errMirrorDown
}

func (brokenMirror) UpsertCustomers(ctx context.Context, customers []models.MirrorCustomer) error {
	return errMirrorDown
}

func (brokenMirror) QueryOrders(ctx context.Context, tr models.TimeRange, preds []models.Predicate) ([]models.Record, error) {
	return nil, errMirrorDown
}

// fakeLock grants or refuses every acquisition.
type fakeLock struct {
	deny     bool
	acquired atomic.Int32
	released atomic.Int32
}

func (l *fakeLock) TryAcquire(ctx context.Context, entity models.EntityKind) (func(), bool, error) {
	if l.deny {
		return nil, false, nil
	}
	l.acquired.Add(1)
	return func() { l.released.Add(1) }, true, nil
}
