package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prudhvinik1/retailpulse/internal/aggregation"
	"github.com/prudhvinik1/retailpulse/internal/cache"
	"github.com/prudhvinik1/retailpulse/internal/metrics"
	"github.com/prudhvinik1/retailpulse/internal/models"
	"github.com/prudhvinik1/retailpulse/internal/repositories"
	"github.com/prudhvinik1/retailpulse/internal/retailcrm"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	dateLayout = "2006-01-02"

	SourceMirror = "cache"
	SourceRemote = "api"

	DefaultCacheTTL = 5 * time.Minute
)

var (
	ErrUnknownGroupBy     = aggregation.ErrUnknownGroupBy
	ErrUnknownFilterField = errors.New("unknown filter field")
	ErrUnknownMetric      = errors.New("unknown metric")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidFilterValue = errors.New("invalid filter value")
)

var knownMetrics = []string{"count", "sum"}

type AnalyticsFilter struct {
	Status       []string       `json:"status,omitempty"`
	Sites        []string       `json:"sites,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
}

type AnalyticsRequest struct {
	DateFrom string           `json:"dateFrom"`
	DateTo   string           `json:"dateTo"`
	GroupBy  string           `json:"groupBy"`
	SplitBy  string           `json:"splitBy,omitempty"`
	Metrics  []string         `json:"metrics,omitempty"`
	Filter   *AnalyticsFilter `json:"filter,omitempty"`
}

// ParseAnalyticsRequest decodes tool arguments strictly. Unknown keys are
// rejected, those inside filter with ErrUnknownFilterField.
func ParseAnalyticsRequest(raw json.RawMessage) (AnalyticsRequest, error) {
	var req AnalyticsRequest
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, errors.New("missing arguments")
	}
	var probe struct {
		Filter json.RawMessage `json:"filter"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return req, fmt.Errorf("invalid arguments: %w", err)
	}
	if len(probe.Filter) > 0 && string(probe.Filter) != "null" {
		fdec := json.NewDecoder(bytes.NewReader(probe.Filter))
		fdec.DisallowUnknownFields()
		var f AnalyticsFilter
		if err := fdec.Decode(&f); err != nil {
			if field, ok := unknownField(err); ok {
				return req, fmt.Errorf("%w: %s", ErrUnknownFilterField, field)
			}
			return req, fmt.Errorf("invalid filter: %w", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid arguments: %w", err)
	}
	return req, nil
}

func unknownField(err error) (string, bool) {
	const prefix = "json: unknown field "
	msg := err.Error()
	if !strings.HasPrefix(msg, prefix) {
		return "", false
	}
	return strings.Trim(strings.TrimPrefix(msg, prefix), `"`), true
}

type PeriodRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type AnalyticsMeta struct {
	TotalRecords int         `json:"totalRecords"`
	Period       PeriodRange `json:"period"`
	GroupBy      string      `json:"groupBy"`
	SplitBy      string      `json:"splitBy,omitempty"`
	Metrics      []string    `json:"metrics"`
	Source       string      `json:"source"`
	CacheHit     bool        `json:"cacheHit"`
}

type AnalyticsResult struct {
	Meta      AnalyticsMeta        `json:"meta"`
	Analytics []aggregation.Period `json:"analytics"`
}

type MirrorResultKind int

const (
	MirrorHit MirrorResultKind = iota
	MirrorMiss
	MirrorError
)

func (k MirrorResultKind) String() string {
	switch k {
	case MirrorHit:
		return "hit"
	case MirrorMiss:
		return "miss"
	default:
		return "error"
	}
}

// MirrorResult is the outcome of asking the mirror for a query's records.
type MirrorResult struct {
	Kind    MirrorResultKind
	Records []models.Record
	Err     error
}

// OrderFetcher loads every order matching a CRM filter.
type OrderFetcher interface {
	FetchOrders(ctx context.Context, filter retailcrm.Filter) ([]models.Order, error)
}

type analyticsQuery struct {
	dateFrom   string
	dateTo     string
	timeRange  models.TimeRange
	groupBy    aggregation.GroupBy
	splitBy    string
	metrics    []string
	filter     AnalyticsFilter
	predicates []models.Predicate
}

type AnalyticsConfig struct {
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// AnalyticsService answers aggregated order queries from the mirror when it
// has data for the period and from the CRM API otherwise. Results are
// memoized in the result cache.
type AnalyticsService struct {
	remote   OrderFetcher
	mirror   repositories.MirrorRepository
	cache    cache.Store
	cacheTTL time.Duration
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewAnalyticsService wires the orchestrator. mirror and store may be nil.
func NewAnalyticsService(remote OrderFetcher, mirror repositories.MirrorRepository, store cache.Store, cfg AnalyticsConfig) *AnalyticsService {
	s := &AnalyticsService{
		remote:   remote,
		mirror:   mirror,
		cache:    store,
		cacheTTL: cfg.CacheTTL,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *AnalyticsService) GetAnalytics(ctx context.Context, req AnalyticsRequest) (*AnalyticsResult, error) {
	q, err := validateAnalytics(req)
	if err != nil {
		return nil, err
	}
	key, err := cacheKey(q)
	if err != nil {
		return nil, err
	}

	if res, ok := s.cached(ctx, key); ok {
		return res, nil
	}

	// The shared computation outlives any single caller; each caller waits on
	// its own context.
	ch := s.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		res, err := s.compute(shared, q)
		if err != nil {
			return nil, err
		}
		s.store(shared, key, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			s.logger.Debug("analytics query shared", zap.String("key", key))
		}
		res := *r.Val.(*AnalyticsResult)
		return &res, nil
	}
}

func (s *AnalyticsService) compute(ctx context.Context, q analyticsQuery) (*AnalyticsResult, error) {
	var (
		records []models.Record
		source  string
	)

	mr := s.queryMirror(ctx, q)
	switch mr.Kind {
	case MirrorHit:
		records = mr.Records
		source = SourceMirror
	case MirrorMiss:
		s.metrics.IncMirrorFallback(fallbackReason(s.mirror))
	case MirrorError:
		s.metrics.IncMirrorFallback("error")
		s.logger.Warn("mirror query failed, falling back to CRM API", zap.Error(mr.Err))
	}

	if source == "" {
		fetched, err := s.fetchRemote(ctx, q)
		if err != nil {
			return nil, err
		}
		records = fetched
		source = SourceRemote
	}

	s.metrics.IncAnalytics(source)
	s.logger.Info("analytics computed",
		zap.String("source", source),
		zap.Int("records", len(records)),
		zap.String("group_by", string(q.groupBy)),
	)

	return &AnalyticsResult{
		Meta: AnalyticsMeta{
			TotalRecords: len(records),
			Period:       PeriodRange{From: q.dateFrom, To: q.dateTo},
			GroupBy:      string(q.groupBy),
			SplitBy:      q.splitBy,
			Metrics:      q.metrics,
			Source:       source,
		},
		Analytics: aggregation.Aggregate(records, q.groupBy, q.splitBy),
	}, nil
}

// queryMirror never fails; errors are reported as MirrorError so the caller
// can fall back.
func (s *AnalyticsService) queryMirror(ctx context.Context, q analyticsQuery) MirrorResult {
	if s.mirror == nil {
		return MirrorResult{Kind: MirrorMiss}
	}
	records, err := s.mirror.QueryOrders(ctx, q.timeRange, q.predicates)
	if err != nil {
		return MirrorResult{Kind: MirrorError, Err: err}
	}
	if len(records) == 0 {
		return MirrorResult{Kind: MirrorMiss}
	}
	return MirrorResult{Kind: MirrorHit, Records: records}
}

// fetchRemote pushes every predicate the CRM supports into the request and
// checks the rest on the fetched orders. Errors are returned unchanged.
func (s *AnalyticsService) fetchRemote(ctx context.Context, q analyticsQuery) ([]models.Record, error) {
	pushed, residual := retailcrm.PushDown(q.predicates)
	filter := retailcrm.Filter{
		"createdAtFrom": q.dateFrom + " 00:00:00",
		"createdAtTo":   q.dateTo + " 23:59:59",
	}.Merge(pushed)

	orders, err := s.remote.FetchOrders(ctx, filter)
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(orders))
	for _, o := range orders {
		records = append(records, o.Record())
	}
	return models.FilterRecords(records, residual), nil
}

func (s *AnalyticsService) cached(ctx context.Context, key string) (*AnalyticsResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.IncCacheLookup("error")
		s.logger.Warn("result cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		s.metrics.IncCacheLookup("miss")
		return nil, false
	}
	var res AnalyticsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		s.metrics.IncCacheLookup("error")
		s.logger.Warn("result cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	s.metrics.IncCacheLookup("hit")
	res.Meta.CacheHit = true
	return &res, true
}

func (s *AnalyticsService) store(ctx context.Context, key string, res *AnalyticsResult) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn("failed to encode analytics result", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.logger.Warn("result cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func fallbackReason(mirror repositories.MirrorRepository) string {
	if mirror == nil {
		return "disabled"
	}
	return "miss"
}

func validateAnalytics(req AnalyticsRequest) (analyticsQuery, error) {
	var q analyticsQuery

	from, err := time.ParseInLocation(dateLayout, req.DateFrom, time.UTC)
	if err != nil {
		return q, fmt.Errorf("%w: dateFrom %q (expected YYYY-MM-DD)", ErrInvalidDate, req.DateFrom)
	}
	to, err := time.ParseInLocation(dateLayout, req.DateTo, time.UTC)
	if err != nil {
		return q, fmt.Errorf("%w: dateTo %q (expected YYYY-MM-DD)", ErrInvalidDate, req.DateTo)
	}
	if to.Before(from) {
		return q, fmt.Errorf("%w: dateTo %s is before dateFrom %s", ErrInvalidDate, req.DateTo, req.DateFrom)
	}

	groupBy, err := aggregation.ParseGroupBy(req.GroupBy)
	if err != nil {
		return q, err
	}

	metricNames := req.Metrics
	if len(metricNames) == 0 {
		metricNames = []string{"count"}
	}
	seen := make(map[string]bool, len(metricNames))
	var normalized []string
	for _, m := range metricNames {
		if !slices.Contains(knownMetrics, m) {
			return q, fmt.Errorf("%w: %q (expected count or sum)", ErrUnknownMetric, m)
		}
		if !seen[m] {
			seen[m] = true
			normalized = append(normalized, m)
		}
	}
	slices.Sort(normalized)

	var f AnalyticsFilter
	if req.Filter != nil {
		f = *req.Filter
	}
	preds, err := buildPredicates(f)
	if err != nil {
		return q, err
	}

	q = analyticsQuery{
		dateFrom: req.DateFrom,
		dateTo:   req.DateTo,
		timeRange: models.TimeRange{
			From: from,
			To:   to.Add(24*time.Hour - time.Second),
		},
		groupBy:    groupBy,
		splitBy:    strings.TrimSpace(req.SplitBy),
		metrics:    normalized,
		filter:     f,
		predicates: preds,
	}
	return q, nil
}

// buildPredicates turns a filter into predicates in a fixed order: status,
// sites, then custom fields by name.
func buildPredicates(f AnalyticsFilter) ([]models.Predicate, error) {
	var preds []models.Predicate
	if len(f.Status) > 0 {
		preds = append(preds, models.StatusIn{Statuses: sortedCopy(f.Status)})
	}
	if len(f.Sites) > 0 {
		preds = append(preds, models.SiteIn{Sites: sortedCopy(f.Sites)})
	}

	names := make([]string, 0, len(f.CustomFields))
	for name := range f.CustomFields {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty custom field name", ErrUnknownFilterField)
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v := f.CustomFields[name]
		if s, ok := v.(string); ok && s == models.ExistsMarker {
			preds = append(preds, models.CustomFieldExists{Field: name})
			continue
		}
		if !scalarValue(v) {
			return nil, fmt.Errorf("%w: customFields.%s must be a string, number or boolean", ErrInvalidFilterValue, name)
		}
		preds = append(preds, models.CustomFieldEquals{Field: name, Value: v})
	}
	return preds, nil
}

// scalarValue reports whether v can be matched exactly by both the CRM
// filter and the mirror. Null, arrays and objects cannot.
func scalarValue(v any) bool {
	switch v.(type) {
	case string, bool, json.Number, float64, float32, int, int32, int64:
		return true
	}
	return false
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// cacheKey hashes the canonical JSON of the query's semantic inputs.
func cacheKey(q analyticsQuery) (string, error) {
	canonical := struct {
		DateFrom string          `json:"dateFrom"`
		DateTo   string          `json:"dateTo"`
		GroupBy  string          `json:"groupBy"`
		SplitBy  string          `json:"splitBy"`
		Metrics  []string        `json:"metrics"`
		Filter   AnalyticsFilter `json:"filter"`
	}{
		DateFrom: q.dateFrom,
		DateTo:   q.dateTo,
		GroupBy:  string(q.groupBy),
		SplitBy:  q.splitBy,
		Metrics:  q.metrics,
		Filter: AnalyticsFilter{
			Status:       sortedCopy(q.filter.Status),
			Sites:        sortedCopy(q.filter.Sites),
			CustomFields: q.filter.CustomFields,
		},
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}
	return fmt.Sprintf("analytics:%016x", xxhash.Sum64(b)), nil
}
