package retailcrm

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/prudhvinik1/retailpulse/internal/models"
)

// Filter is a nested set of CRM filter parameters. Values may be scalars,
// slices of scalars, or nested Filter / map[string]any values.
type Filter map[string]any

// EncodeFilter serializes f into bracket notation under "filter": scalars as
// filter[k]=v, slices as repeated filter[k][]=v, nested maps as
// filter[a][b]=v. Keys are emitted in sorted order and nil values are
// skipped, so equal filters always encode identically.
func EncodeFilter(f Filter) url.Values {
	values := url.Values{}
	appendFilter(values, "filter", map[string]any(f))
	return values
}

func appendFilter(values url.Values, prefix string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		appendValue(values, prefix+"["+k+"]", m[k])
	}
}

func appendValue(values url.Values, key string, v any) {
	switch t := v.(type) {
	case nil:
		return
	case Filter:
		appendFilter(values, key, map[string]any(t))
		return
	case map[string]any:
		appendFilter(values, key, t)
		return
	case json.Number, []byte, json.RawMessage:
		values.Add(key, scalarString(t))
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i).Interface()
			if item == nil {
				continue
			}
			values.Add(key+"[]", scalarString(item))
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			values.Add(key, scalarString(v))
			return
		}
		nested := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			nested[iter.Key().String()] = iter.Value().Interface()
		}
		appendFilter(values, key, nested)
	case reflect.Pointer:
		if rv.IsNil() {
			return
		}
		appendValue(values, key, rv.Elem().Interface())
	default:
		values.Add(key, scalarString(v))
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case []byte:
		return string(t)
	case json.RawMessage:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(models.CRMTimeLayout)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// Merge returns a new filter with the keys of other layered over f.
func (f Filter) Merge(other Filter) Filter {
	out := make(Filter, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// PushDown translates predicates into the CRM's native filter parameters.
// Predicates the API cannot evaluate (custom-field presence) are returned as
// the residual to be checked after fetching.
func PushDown(preds []models.Predicate) (Filter, []models.Predicate) {
	f := Filter{}
	var residual []models.Predicate
	customFields := Filter{}
	for _, p := range preds {
		switch t := p.(type) {
		case models.StatusIn:
			f["extendedStatus"] = append(stringSlice(f["extendedStatus"]), t.Statuses...)
		case models.SiteIn:
			f["sites"] = append(stringSlice(f["sites"]), t.Sites...)
		case models.CustomFieldEquals:
			customFields[t.Field] = t.Value
		default:
			residual = append(residual, p)
		}
	}
	if len(customFields) > 0 {
		f["customFields"] = customFields
	}
	return f, residual
}

func stringSlice(v any) []string {
	s, _ := v.([]string)
	return s
}
