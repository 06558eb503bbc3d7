package retailcrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prudhvinik1/retailpulse/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 100
	DefaultTimeout  = 30 * time.Second

	maxErrorBody = 64 << 10
)

type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	PageSize int
}

// Client talks to the RetailCRM v5 REST API.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

type Pagination struct {
	Limit          int `json:"limit"`
	TotalCount     int `json:"totalCount"`
	CurrentPage    int `json:"currentPage"`
	TotalPageCount int `json:"totalPageCount"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func NewClient(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		logger:     logger,
	}
}

func (c *Client) PageSize() int {
	return c.pageSize
}

// Get performs one GET request and returns the top-level fields of a
// successful response envelope.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (map[string]json.RawMessage, error) {
	start := time.Now()
	fields, err := c.get(ctx, endpoint, params)
	c.metrics.ObserveRemoteRequest(endpoint, time.Since(start), err)
	if err != nil {
		c.logger.Warn("retailcrm request failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}
	return fields, err
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (map[string]json.RawMessage, error) {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &RemoteFetchError{Endpoint: endpoint, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteFetchError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteFetchError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &RemoteFetchError{Endpoint: endpoint, Status: resp.StatusCode, Body: truncate(body)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &RemoteFetchError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Body:     truncate(body),
			Err:      fmt.Errorf("failed to decode response: %w", err),
		}
	}
	var success bool
	if raw, ok := fields["success"]; ok {
		_ = json.Unmarshal(raw, &success)
	}
	if !success {
		return nil, &RemoteFetchError{Endpoint: endpoint, Status: resp.StatusCode, Body: errorPayload(fields, body)}
	}
	return fields, nil
}

// FetchPage requests one page of endpoint and extracts the entityKey array.
// An empty entityKey takes the first payload key other than success and
// pagination; map payloads are flattened into a list ordered by key.
func (c *Client) FetchPage(ctx context.Context, endpoint, entityKey string, filter Filter, limit, page int) (Page[json.RawMessage], error) {
	params := EncodeFilter(filter)
	if limit <= 0 {
		limit = c.pageSize
	}
	if page <= 0 {
		page = 1
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page", strconv.Itoa(page))

	fields, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return Page[json.RawMessage]{}, err
	}

	var out Page[json.RawMessage]
	if raw, ok := fields["pagination"]; ok {
		if err := json.Unmarshal(raw, &out.Pagination); err != nil {
			return Page[json.RawMessage]{}, &RemoteFetchError{Endpoint: endpoint, Body: string(raw), Err: fmt.Errorf("invalid pagination: %w", err)}
		}
	}

	if entityKey == "" {
		entityKey = payloadKey(fields)
	}
	items, err := decodeItems(fields[entityKey])
	if err != nil {
		return Page[json.RawMessage]{}, &RemoteFetchError{Endpoint: endpoint, Err: fmt.Errorf("invalid %s payload: %w", entityKey, err)}
	}
	out.Items = items
	return out, nil
}

func payloadKey(fields map[string]json.RawMessage) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "success" || k == "pagination" {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func decodeItems(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []json.RawMessage{}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	list = make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		list = append(list, byKey[k])
	}
	return list, nil
}

func errorPayload(fields map[string]json.RawMessage, body []byte) string {
	if raw, ok := fields["errors"]; ok && len(raw) > 0 && string(raw) != "null" {
		return string(raw)
	}
	if raw, ok := fields["errorMsg"]; ok {
		var msg string
		if json.Unmarshal(raw, &msg) == nil && msg != "" {
			return msg
		}
	}
	return truncate(body)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
