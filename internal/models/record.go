package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Shape tells which naming convention Record.Attrs follows.
type Shape int

const (
	// ShapeRemote is the camelCase document returned by the CRM API.
	ShapeRemote Shape = iota
	// ShapeMirror is the snake_case row stored in the mirror tables.
	ShapeMirror
)

func (s Shape) String() string {
	if s == ShapeMirror {
		return "mirror"
	}
	return "remote"
}

// Record is the normalized view the aggregation and filtering code works on.
// The typed fields are the same for both shapes; Attrs keeps the source
// document for split-dimension lookups.
type Record struct {
	Kind         EntityKind
	Shape        Shape
	ID           int64
	CreatedAt    time.Time
	Status       string
	Site         string
	Sum          decimal.Decimal
	CustomFields map[string]any
	Attrs        map[string]any
}

// Lookup resolves a field path against the record document. It tries the
// path as a direct key, then as a dotted path, then with underscores read as
// dots so that "source_source" finds source.source in the remote shape.
func (r Record) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	if v, ok := r.Attrs[path]; ok && v != nil {
		return v, true
	}
	if strings.Contains(path, ".") {
		if v, ok := walk(r.Attrs, strings.Split(path, ".")); ok {
			return v, true
		}
	}
	if strings.Contains(path, "_") {
		if v, ok := walk(r.Attrs, strings.Split(path, "_")); ok {
			return v, true
		}
	}
	return nil, false
}

func walk(doc map[string]any, parts []string) (any, bool) {
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// CustomField returns a custom-field value; ok is false when the field is
// absent or null.
func (r Record) CustomField(name string) (any, bool) {
	v, ok := r.CustomFields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Present reports whether a value counts as set for "exists" checks.
func Present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	default:
		return true
	}
}

// ValuesEqual compares two custom-field values. Numbers compare by value so
// json.Number("10") equals float64(10); everything else compares by its JSON
// encoding.
func ValuesEqual(a, b any) bool {
	da, aNum := asDecimal(a)
	db, bNum := asDecimal(b)
	if aNum && bNum {
		return da.Equal(db)
	}
	if aNum != bNum {
		return false
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ja) == string(jb)
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case int32:
		return decimal.NewFromInt(int64(t)), true
	case decimal.Decimal:
		return t, true
	}
	return decimal.Decimal{}, false
}
