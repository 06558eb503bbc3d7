package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderFixtures(t *testing.T) []Order {
	t.Helper()
	docs := []string{
		`{"id": 1, "createdAt": "2024-06-01 09:00:00", "status": "new", "site": "a", "customFields": {"adress_client": "x", "tier": "gold"}}`,
		`{"id": 2, "createdAt": "2024-06-02 09:00:00", "status": "complete", "site": "b", "customFields": {"adress_client": ""}}`,
		`{"id": 3, "createdAt": "2024-06-03 09:00:00", "status": "new", "site": "b", "customFields": []}`,
		`{"id": 4, "createdAt": "2024-06-04 09:00:00", "status": "new", "site": "a", "customFields": {"adress_client": null, "tier": "silver"}}`,
		`{"id": 5, "createdAt": "2024-06-05 09:00:00", "status": "cancel", "site": "a", "customFields": {"adress_client": 12, "tier": "gold"}}`,
	}
	orders := make([]Order, 0, len(docs))
	for _, d := range docs {
		o, err := DecodeOrder(json.RawMessage(d))
		require.NoError(t, err)
		orders = append(orders, o)
	}
	return orders
}

func ids(records []Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestPredicates_SameSubsetForBothShapes(t *testing.T) {
	// ARRANGE: the same orders in remote and mirror shape
	orders := orderFixtures(t)
	var remote, mirror []Record
	for _, o := range orders {
		remote = append(remote, o.Record())
		mirror = append(mirror, NewMirrorOrder(o, time.Now()).Record())
	}

	cases := []struct {
		preds []Predicate
		want  []int64
	}{
		{[]Predicate{CustomFieldExists{Field: "adress_client"}}, []int64{1, 5}},
		{[]Predicate{CustomFieldEquals{Field: "tier", Value: "gold"}}, []int64{1, 5}},
		{[]Predicate{StatusIn{Statuses: []string{"new"}}, SiteIn{Sites: []string{"a"}}}, []int64{1, 4}},
		{[]Predicate{StatusIn{Statuses: []string{"new", "cancel"}}, CustomFieldExists{Field: "adress_client"}}, []int64{1, 5}},
		{[]Predicate{CustomFieldEquals{Field: "adress_client", Value: float64(12)}}, []int64{5}},
		{nil, []int64{1, 2, 3, 4, 5}},
	}

	for i, tc := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			// ACT
			gotRemote := ids(FilterRecords(remote, tc.preds))
			gotMirror := ids(FilterRecords(mirror, tc.preds))

			// ASSERT
			assert.Equal(t, tc.want, gotRemote)
			assert.Equal(t, gotRemote, gotMirror)
		})
	}
}

func TestTimeRange_ContainsIsInclusive(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC)
	tr := TimeRange{From: from, To: to}

	assert.True(t, tr.Contains(from))
	assert.True(t, tr.Contains(to))
	assert.False(t, tr.Contains(to.Add(time.Second)))
	assert.False(t, tr.Contains(from.Add(-time.Second)))
}
