package models

import (
	"slices"
	"time"
)

// ExistsMarker is the custom-field filter value that asks for presence
// instead of an exact match.
const ExistsMarker = "exists"

// TimeRange is an inclusive creation-time window.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.From) && !t.After(tr.To)
}

// Predicate is one filter condition. Filters combine predicates with AND.
type Predicate interface {
	Match(r Record) bool
}

type StatusIn struct {
	Statuses []string
}

func (p StatusIn) Match(r Record) bool {
	return slices.Contains(p.Statuses, r.Status)
}

type SiteIn struct {
	Sites []string
}

func (p SiteIn) Match(r Record) bool {
	return slices.Contains(p.Sites, r.Site)
}

type CustomFieldEquals struct {
	Field string
	Value any
}

func (p CustomFieldEquals) Match(r Record) bool {
	v, ok := r.CustomField(p.Field)
	if !ok {
		return false
	}
	return ValuesEqual(v, p.Value)
}

// CustomFieldExists matches when the field is present, non-null and not the
// empty string.
type CustomFieldExists struct {
	Field string
}

func (p CustomFieldExists) Match(r Record) bool {
	v, ok := r.CustomField(p.Field)
	return ok && Present(v)
}

// MatchAll reports whether r satisfies every predicate.
func MatchAll(r Record, preds []Predicate) bool {
	for _, p := range preds {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

// FilterRecords keeps the records matching every predicate.
func FilterRecords(records []Record, preds []Predicate) []Record {
	if len(preds) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if MatchAll(r, preds) {
			out = append(out, r)
		}
	}
	return out
}
