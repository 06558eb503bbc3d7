package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prudhvinik1/retailpulse/internal/retailcrm"
	"go.uber.org/zap"
)

const (
	DefaultListLimit    = 20
	DefaultHistoryLimit = 20
	MaxListLimit        = 100
)

var ErrInvalidArgument = errors.New("invalid argument")

// CRMGateway is the part of the CRM client the pass-through tools use.
type CRMGateway interface {
	Orders(ctx context.Context, filter retailcrm.Filter, limit, page int) (retailcrm.Page[json.RawMessage], error)
	Customers(ctx context.Context, filter retailcrm.Filter, limit, page int) (retailcrm.Page[json.RawMessage], error)
	OrderHistory(ctx context.Context, filter retailcrm.Filter, limit, page int) (retailcrm.Page[json.RawMessage], error)
	Reference(ctx context.Context, dictionary string) ([]json.RawMessage, error)
}

type ListRequest struct {
	Filter retailcrm.Filter `json:"filter,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Page   int              `json:"page,omitempty"`
	Fields []string         `json:"fields,omitempty"`
}

type OrdersResponse struct {
	Orders     []map[string]any     `json:"orders"`
	Pagination retailcrm.Pagination `json:"pagination"`
}

type CustomersResponse struct {
	Customers  []map[string]any     `json:"customers"`
	Pagination retailcrm.Pagination `json:"pagination"`
}

type HistoryFilter struct {
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	OrderID     int64  `json:"orderId,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
}

type HistoryRequest struct {
	Filter *HistoryFilter `json:"filter,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Page   int            `json:"page,omitempty"`
}

type HistoryResponse struct {
	History    []json.RawMessage     `json:"history"`
	Pagination *retailcrm.Pagination `json:"pagination,omitempty"`
	Meta       *HistoryMeta          `json:"meta,omitempty"`
}

type HistoryMeta struct {
	Message string `json:"message"`
}

type ReferenceResponse struct {
	Dictionary string            `json:"dictionary"`
	Items      []json.RawMessage `json:"items"`
}

// CRMService serves the raw CRM lookups that bypass the mirror.
type CRMService struct {
	crm    CRMGateway
	logger *zap.Logger
}

func NewCRMService(crm CRMGateway, logger *zap.Logger) *CRMService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CRMService{crm: crm, logger: logger}
}

// GetOrders returns one page of orders. Without fields each order is reduced
// to a summary; with fields only those keys (plus id and number) are kept.
func (s *CRMService) GetOrders(ctx context.Context, req ListRequest) (*OrdersResponse, error) {
	limit, page, err := pageArgs(req.Limit, req.Page, DefaultListLimit)
	if err != nil {
		return nil, err
	}
	res, err := s.crm.Orders(ctx, req.Filter, limit, page)
	if err != nil {
		return nil, err
	}
	orders, err := project(res.Items, req.Fields, orderSummary)
	if err != nil {
		return nil, err
	}
	return &OrdersResponse{Orders: orders, Pagination: res.Pagination}, nil
}

// GetCustomers returns one page of customers, projected to fields if given.
func (s *CRMService) GetCustomers(ctx context.Context, req ListRequest) (*CustomersResponse, error) {
	limit, page, err := pageArgs(req.Limit, req.Page, DefaultListLimit)
	if err != nil {
		return nil, err
	}
	res, err := s.crm.Customers(ctx, req.Filter, limit, page)
	if err != nil {
		return nil, err
	}
	customers, err := project(res.Items, req.Fields, nil)
	if err != nil {
		return nil, err
	}
	return &CustomersResponse{Customers: customers, Pagination: res.Pagination}, nil
}

// GetOrderHistory pages through order change history. An order number is
// resolved to its id first; an unknown number yields an empty history.
func (s *CRMService) GetOrderHistory(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	limit, page, err := pageArgs(req.Limit, req.Page, DefaultHistoryLimit)
	if err != nil {
		return nil, err
	}

	filter := retailcrm.Filter{}
	if f := req.Filter; f != nil {
		if f.StartDate != "" {
			filter["startDate"] = f.StartDate
		}
		if f.EndDate != "" {
			filter["endDate"] = f.EndDate
		}
		if f.OrderID != 0 {
			filter["orderId"] = f.OrderID
		}
		if f.OrderNumber != "" {
			id, found, err := s.resolveOrderNumber(ctx, f.OrderNumber)
			if err != nil {
				return nil, err
			}
			if !found {
				return &HistoryResponse{
					History: []json.RawMessage{},
					Meta:    &HistoryMeta{Message: fmt.Sprintf("Order with number %s not found", f.OrderNumber)},
				}, nil
			}
			filter["orderId"] = id
		}
	}

	res, err := s.crm.OrderHistory(ctx, filter, limit, page)
	if err != nil {
		return nil, err
	}
	history := res.Items
	if history == nil {
		history = []json.RawMessage{}
	}
	return &HistoryResponse{History: history, Pagination: &res.Pagination}, nil
}

func (s *CRMService) resolveOrderNumber(ctx context.Context, number string) (int64, bool, error) {
	res, err := s.crm.Orders(ctx, retailcrm.Filter{"numbers": []string{number}}, DefaultListLimit, 1)
	if err != nil {
		return 0, false, err
	}
	if len(res.Items) == 0 {
		s.logger.Info("order number not found", zap.String("number", number))
		return 0, false, nil
	}
	var head struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(res.Items[0], &head); err != nil {
		return 0, false, fmt.Errorf("failed to decode order: %w", err)
	}
	return head.ID, true, nil
}

// GetReference loads a whole reference dictionary.
func (s *CRMService) GetReference(ctx context.Context, dictionary string) (*ReferenceResponse, error) {
	if dictionary == "" {
		return nil, fmt.Errorf("%w: dictionary is required", ErrInvalidArgument)
	}
	items, err := s.crm.Reference(ctx, dictionary)
	if err != nil {
		return nil, err
	}
	return &ReferenceResponse{Dictionary: dictionary, Items: items}, nil
}

func pageArgs(limit, page, defaultLimit int) (int, int, error) {
	if limit == 0 {
		limit = defaultLimit
	}
	if page == 0 {
		page = 1
	}
	if limit < 1 || limit > MaxListLimit {
		return 0, 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxListLimit)
	}
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be at least 1", ErrInvalidArgument)
	}
	return limit, page, nil
}

var orderSummaryFields = []string{"id", "number", "createdAt", "status", "summ", "totalSumm", "customer"}

func orderSummary(doc map[string]any) map[string]any {
	out := make(map[string]any, len(orderSummaryFields))
	for _, k := range orderSummaryFields {
		v, ok := doc[k]
		if !ok {
			continue
		}
		if k == "customer" {
			if c, ok := v.(map[string]any); ok {
				v = map[string]any{"id": c["id"], "externalId": c["externalId"]}
			}
		}
		out[k] = v
	}
	return out
}

// project decodes items and keeps only the requested fields. With no fields
// the summary function is applied, or the document is returned whole.
func project(items []json.RawMessage, fields []string, summary func(map[string]any) map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		var doc map[string]any
		if err := json.Unmarshal(item, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode CRM item: %w", err)
		}
		switch {
		case len(fields) > 0:
			picked := make(map[string]any, len(fields)+2)
			for _, f := range fields {
				if v, ok := doc[f]; ok {
					picked[f] = v
				}
			}
			picked["id"] = doc["id"]
			if n, ok := doc["number"]; ok {
				picked["number"] = n
			}
			out = append(out, picked)
		case summary != nil:
			out = append(out, summary(doc))
		default:
			out = append(out, doc)
		}
	}
	return out, nil
}
