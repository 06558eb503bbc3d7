package aggregation

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/prudhvinik1/retailpulse/internal/models"
)

const (
	TotalKey     = "total"
	UndefinedKey = "undefined"
)

// Aggregate buckets records by period and split key. The result is sorted by
// period key ascending.
func Aggregate(records []models.Record, groupBy GroupBy, splitBy string) []Period {
	buckets := make(map[string]map[string]Metrics)
	for _, r := range records {
		period := PeriodKey(r.CreatedAt, groupBy)
		split := SplitKey(r, splitBy)

		cells, ok := buckets[period]
		if !ok {
			cells = make(map[string]Metrics)
			buckets[period] = cells
		}
		m := cells[split]
		m.Add(r.Sum)
		cells[split] = m
	}
	return sortedPeriods(buckets)
}

// Merge adds two aggregation results cell by cell.
func Merge(a, b []Period) []Period {
	buckets := make(map[string]map[string]Metrics)
	for _, src := range [][]Period{a, b} {
		for _, p := range src {
			cells, ok := buckets[p.Period]
			if !ok {
				cells = make(map[string]Metrics)
				buckets[p.Period] = cells
			}
			for k, m := range p.Data {
				cells[k] = cells[k].Plus(m)
			}
		}
	}
	return sortedPeriods(buckets)
}

func sortedPeriods(buckets map[string]map[string]Metrics) []Period {
	out := make([]Period, 0, len(buckets))
	for period, data := range buckets {
		out = append(out, Period{Period: period, Data: data})
	}
	slices.SortFunc(out, func(x, y Period) int {
		return strings.Compare(x.Period, y.Period)
	})
	return out
}

// SplitKey resolves the split dimension of a record. An empty splitBy puts
// everything under "total"; a missing, null or empty value under "undefined".
func SplitKey(r models.Record, splitBy string) string {
	if splitBy == "" {
		return TotalKey
	}
	v, ok := r.Lookup(splitBy)
	if !ok || !models.Present(v) {
		return UndefinedKey
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
