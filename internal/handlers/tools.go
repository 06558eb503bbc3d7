package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prudhvinik1/retailpulse/internal/models"
	"github.com/prudhvinik1/retailpulse/internal/retailcrm"
	"github.com/prudhvinik1/retailpulse/internal/services"
	"go.uber.org/zap"
)

type AnalyticsRunner interface {
	GetAnalytics(ctx context.Context, req services.AnalyticsRequest) (*services.AnalyticsResult, error)
}

type Syncer interface {
	Sync(ctx context.Context, entity models.EntityKind) (services.SyncResult, error)
	SyncAll(ctx context.Context) (services.SyncAllResult, error)
}

type CRMTools interface {
	GetOrders(ctx context.Context, req services.ListRequest) (*services.OrdersResponse, error)
	GetCustomers(ctx context.Context, req services.ListRequest) (*services.CustomersResponse, error)
	GetOrderHistory(ctx context.Context, req services.HistoryRequest) (*services.HistoryResponse, error)
	GetReference(ctx context.Context, dictionary string) (*services.ReferenceResponse, error)
}

type ToolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolCallResponse struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type syncDataResponse struct {
	Success    bool   `json:"success"`
	Entity     string `json:"entity"`
	Synced     int    `json:"synced"`
	DurationMs int64  `json:"duration_ms"`
	Message    string `json:"message"`
}

type syncAllResponse struct {
	Success         bool   `json:"success"`
	Entity          string `json:"entity"`
	OrdersSynced    int    `json:"orders_synced"`
	CustomersSynced int    `json:"customers_synced"`
	TotalDurationMs int64  `json:"total_duration_ms"`
	Message         string `json:"message"`
}

// ToolsHandler exposes the CRM tools over HTTP. syncer may be nil when no
// mirror is configured.
type ToolsHandler struct {
	analytics AnalyticsRunner
	syncer    Syncer
	crm       CRMTools
	logger    *zap.Logger
}

func NewToolsHandler(analytics AnalyticsRunner, syncer Syncer, crm CRMTools, logger *zap.Logger) *ToolsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolsHandler{
		analytics: analytics,
		syncer:    syncer,
		crm:       crm,
		logger:    logger,
	}
}

func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"tools": toolDefinitions()})
}

// Call runs one tool. Tool failures are reported in the response body with
// isError set; only a malformed envelope is an HTTP error.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	var req ToolCallRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "tool name is required")
		return
	}

	result, err := h.dispatch(r.Context(), req.Name, req.Arguments)
	if err != nil {
		detail := toolError(err)
		h.logger.Warn("tool call failed",
			zap.String("tool", req.Name),
			zap.String("code", detail.Code),
			zap.Error(err),
		)
		WriteJSON(w, http.StatusOK, textResponse(ErrorResponse{Error: detail}, true))
		return
	}
	WriteJSON(w, http.StatusOK, textResponse(result, false))
}

func (h *ToolsHandler) dispatch(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "get_analytics":
		req, err := services.ParseAnalyticsRequest(args)
		if err != nil {
			if errors.Is(err, services.ErrUnknownFilterField) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", services.ErrInvalidArgument, err)
		}
		return h.analytics.GetAnalytics(ctx, req)

	case "sync_data":
		var req struct {
			Entity string `json:"entity"`
		}
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return h.syncData(ctx, req.Entity)

	case "get_orders":
		var req services.ListRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return h.crm.GetOrders(ctx, req)

	case "get_customers":
		var req services.ListRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return h.crm.GetCustomers(ctx, req)

	case "get_order_history":
		var req services.HistoryRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return h.crm.GetOrderHistory(ctx, req)

	case "get_reference":
		var req struct {
			Dictionary string `json:"dictionary"`
		}
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return h.crm.GetReference(ctx, req.Dictionary)
	}
	return nil, fmt.Errorf("%w: unknown tool %q", services.ErrInvalidArgument, name)
}

func (h *ToolsHandler) syncData(ctx context.Context, entity string) (any, error) {
	if entity == "" {
		entity = "all"
	}
	var kind models.EntityKind
	if entity != "all" {
		k, err := services.ParseEntity(entity)
		if err != nil {
			return nil, err
		}
		kind = k
	}
	if h.syncer == nil {
		return nil, errMirrorDisabled
	}
	if entity == "all" {
		res, err := h.syncer.SyncAll(ctx)
		if err != nil {
			return nil, err
		}
		return syncAllResponse{
			Success:         true,
			Entity:          "all",
			OrdersSynced:    res.Orders.Synced,
			CustomersSynced: res.Customers.Synced,
			TotalDurationMs: res.TotalDuration.Milliseconds(),
			Message:         fmt.Sprintf("Synced %d orders and %d customers", res.Orders.Synced, res.Customers.Synced),
		}, nil
	}

	res, err := h.syncer.Sync(ctx, kind)
	if err != nil {
		return nil, err
	}
	return syncDataResponse{
		Success:    true,
		Entity:     entity,
		Synced:     res.Synced,
		DurationMs: res.Duration.Milliseconds(),
		Message:    fmt.Sprintf("Synced %d %s", res.Synced, entity),
	}, nil
}

func decodeArgs(args json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(args)) == 0 || string(args) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", services.ErrInvalidArgument, err)
	}
	return nil
}

func textResponse(v any, isError bool) ToolCallResponse {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		text = []byte(fmt.Sprintf(`{"error":{"code":"internal_error","message":%q}}`, err.Error()))
		isError = true
	}
	return ToolCallResponse{
		Content: []ToolContent{{Type: "text", Text: string(text)}},
		IsError: isError,
	}
}

func toolDefinitions() []ToolDefinition {
	filterSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"sites":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"customFields": map[string]any{"type": "object", "description": `Exact values, or "exists" to require a non-empty value`},
		},
		"additionalProperties": false,
	}
	paging := map[string]any{
		"limit": map[string]any{"type": "number", "minimum": 1, "maximum": services.MaxListLimit},
		"page":  map[string]any{"type": "number", "minimum": 1},
	}

	return []ToolDefinition{
		{
			Name:        "get_analytics",
			Description: "Aggregate orders by day, ISO week or month with optional split and filters. Served from the local mirror when synced, otherwise from the CRM API.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dateFrom": map[string]any{"type": "string", "description": "YYYY-MM-DD"},
					"dateTo":   map[string]any{"type": "string", "description": "YYYY-MM-DD"},
					"groupBy":  map[string]any{"type": "string", "enum": []string{"day", "week", "month"}},
					"splitBy":  map[string]any{"type": "string", "description": "Field path such as status, site or source_source"},
					"metrics":  map[string]any{"type": "array", "items": map[string]any{"type": "string", "enum": []string{"count", "sum"}}},
					"filter":   filterSchema,
				},
				"required": []string{"dateFrom", "dateTo", "groupBy"},
			},
		},
		{
			Name:        "sync_data",
			Description: "Pull orders and customers created since the last sync into the local mirror.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"entity": map[string]any{"type": "string", "enum": []string{"orders", "customers", "all"}},
				},
			},
		},
		{
			Name:        "get_orders",
			Description: "Search orders with CRM filters (createdAtFrom, createdAtTo, extendedStatus, numbers, customerId, managerId).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": mergeSchema(paging, map[string]any{
					"filter": map[string]any{"type": "object"},
					"fields": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Fields to return; a short summary when empty"},
				}),
			},
		},
		{
			Name:        "get_customers",
			Description: "Search customers with CRM filters.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": mergeSchema(paging, map[string]any{
					"filter": map[string]any{"type": "object"},
					"fields": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				}),
			},
		},
		{
			Name:        "get_order_history",
			Description: "Retrieve order change history by date range, order id or order number.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": mergeSchema(paging, map[string]any{
					"filter": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"startDate":   map[string]any{"type": "string", "description": "YYYY-MM-DD HH:mm:ss"},
							"endDate":     map[string]any{"type": "string", "description": "YYYY-MM-DD HH:mm:ss"},
							"orderId":     map[string]any{"type": "number"},
							"orderNumber": map[string]any{"type": "string"},
						},
					},
				}),
			},
		},
		{
			Name:        "get_reference",
			Description: "Load a CRM reference dictionary.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dictionary": map[string]any{"type": "string", "enum": retailcrm.Dictionaries()},
				},
				"required": []string{"dictionary"},
			},
		},
	}
}

func mergeSchema(parts ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, p := range parts {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}
