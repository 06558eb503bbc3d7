package retailcrm

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/prudhvinik1/retailpulse/internal/models"
	"go.uber.org/zap"
)

const (
	ordersEndpoint       = "/api/v5/orders"
	customersEndpoint    = "/api/v5/customers"
	orderHistoryEndpoint = "/api/v5/orders/history"
)

// Paginate lazily walks every page of endpoint. Each range over the returned
// sequence starts again from page 1. Iteration stops at the first empty page
// or once the reported current page reaches the total page count; the next
// request asks for currentPage+1. A failed request yields the error once and
// ends the sequence.
func Paginate[T any](ctx context.Context, c *Client, endpoint, entityKey string, filter Filter, decode func(json.RawMessage) (T, error)) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		page := 1
		for {
			raw, err := c.FetchPage(ctx, endpoint, entityKey, filter, c.pageSize, page)
			if err != nil {
				yield(Page[T]{}, err)
				return
			}
			if len(raw.Items) == 0 {
				return
			}

			items := make([]T, 0, len(raw.Items))
			for _, item := range raw.Items {
				v, err := decode(item)
				if err != nil {
					yield(Page[T]{}, &RemoteFetchError{Endpoint: endpoint, Body: string(item), Err: err})
					return
				}
				items = append(items, v)
			}

			c.logger.Debug("fetched page",
				zap.String("endpoint", endpoint),
				zap.Int("page", page),
				zap.Int("items", len(items)),
				zap.Int("total_pages", raw.Pagination.TotalPageCount),
			)

			if !yield(Page[T]{Items: items, Pagination: raw.Pagination}, nil) {
				return
			}

			current := raw.Pagination.CurrentPage
			if current < page {
				current = page
			}
			if current >= raw.Pagination.TotalPageCount {
				return
			}
			page = current + 1
		}
	}
}

// Collect drains a page sequence. On error nothing is returned besides the
// error itself.
func Collect[T any](pages iter.Seq2[Page[T], error]) ([]T, error) {
	var all []T
	for page, err := range pages {
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
	}
	if all == nil {
		all = []T{}
	}
	return all, nil
}

func (c *Client) OrderPages(ctx context.Context, filter Filter) iter.Seq2[Page[models.Order], error] {
	return Paginate(ctx, c, ordersEndpoint, "orders", filter, models.DecodeOrder)
}

func (c *Client) CustomerPages(ctx context.Context, filter Filter) iter.Seq2[Page[models.Customer], error] {
	return Paginate(ctx, c, customersEndpoint, "customers", filter, models.DecodeCustomer)
}

// FetchOrders returns every order matching filter.
func (c *Client) FetchOrders(ctx context.Context, filter Filter) ([]models.Order, error) {
	return Collect(c.OrderPages(ctx, filter))
}

func (c *Client) Orders(ctx context.Context, filter Filter, limit, page int) (Page[json.RawMessage], error) {
	return c.FetchPage(ctx, ordersEndpoint, "orders", filter, limit, page)
}

func (c *Client) Customers(ctx context.Context, filter Filter, limit, page int) (Page[json.RawMessage], error) {
	return c.FetchPage(ctx, customersEndpoint, "customers", filter, limit, page)
}

func (c *Client) OrderHistory(ctx context.Context, filter Filter, limit, page int) (Page[json.RawMessage], error) {
	return c.FetchPage(ctx, orderHistoryEndpoint, "history", filter, limit, page)
}
