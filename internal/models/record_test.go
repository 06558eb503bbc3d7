package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOrderJSON = `{
	"id": 42,
	"number": "42A",
	"externalId": "ext-42",
	"createdAt": "2024-06-01 10:15:00",
	"status": "new",
	"site": "shop-main",
	"orderMethod": "phone",
	"totalSumm": 1250.5,
	"summ": 1200,
	"source": {"source": "google", "medium": "cpc", "campaign": "summer"},
	"customer": {"id": 7, "externalId": "c-7"},
	"customFields": {"adress_client": "Main st. 1", "priority": 3}
}`

func decodeSample(t *testing.T, raw string) Order {
	t.Helper()
	o, err := DecodeOrder(json.RawMessage(raw))
	require.NoError(t, err)
	return o
}

func TestDecodeOrder_Fields(t *testing.T) {
	o := decodeSample(t, sampleOrderJSON)

	assert.Equal(t, int64(42), o.ID)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC), o.CreatedAt.Time)
	assert.True(t, decimal.RequireFromString("1250.5").Equal(o.Total()))
	assert.Equal(t, "google", o.Source.Source)
	assert.Equal(t, int64(7), o.Customer.ID)
	assert.Equal(t, "Main st. 1", o.CustomFields["adress_client"])
}

func TestDecodeOrder_EmptyCustomFieldsArray(t *testing.T) {
	o := decodeSample(t, `{"id": 1, "createdAt": "2024-06-01 00:00:00", "customFields": []}`)

	assert.NotNil(t, o.CustomFields)
	assert.Empty(t, o.CustomFields)
	assert.True(t, o.Total().IsZero(), "missing sums default to zero")
}

func TestOrder_TotalFallsBackToSumm(t *testing.T) {
	o := decodeSample(t, `{"id": 1, "createdAt": "2024-06-01 00:00:00", "summ": 99}`)

	assert.True(t, decimal.NewFromInt(99).Equal(o.Total()))
}

func TestRecord_Lookup(t *testing.T) {
	o := decodeSample(t, sampleOrderJSON)
	remote := o.Record()
	mirror := NewMirrorOrder(o, time.Now()).Record()

	tests := []struct {
		name string
		rec  Record
		path string
		want any
	}{
		{"remote direct key", remote, "status", "new"},
		{"remote dotted path", remote, "source.source", "google"},
		{"remote underscore fallback", remote, "source_source", "google"},
		{"mirror direct key", mirror, "source_source", "google"},
		{"mirror status", mirror, "status", "new"},
		{"remote custom field", remote, "customFields.adress_client", "Main st. 1"},
		{"mirror custom field", mirror, "custom_fields.adress_client", "Main st. 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rec.Lookup(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord_LookupMissing(t *testing.T) {
	r := decodeSample(t, `{"id": 1, "createdAt": "2024-06-01 00:00:00", "source": null}`).Record()

	_, ok := r.Lookup("source.source")
	assert.False(t, ok)
	_, ok = r.Lookup("source_source")
	assert.False(t, ok)
	_, ok = r.Lookup("")
	assert.False(t, ok)
}

func TestNewMirrorOrder_Projection(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	o := decodeSample(t, sampleOrderJSON)

	m := NewMirrorOrder(o, now)

	assert.Equal(t, int64(42), m.ID)
	assert.Equal(t, "ext-42", m.ExternalID)
	assert.True(t, decimal.RequireFromString("1250.5").Equal(m.TotalSumm))
	assert.True(t, decimal.NewFromInt(1200).Equal(m.SumPaid))
	assert.True(t, m.Discount.IsZero())
	require.NotNil(t, m.CustomerID)
	assert.Equal(t, int64(7), *m.CustomerID)
	assert.Equal(t, "cpc", m.SourceMedium)
	assert.Equal(t, now, m.UpdatedAt)
	assert.JSONEq(t, sampleOrderJSON, string(m.RawData))
}

func TestNewMirrorCustomer_Defaults(t *testing.T) {
	c, err := DecodeCustomer(json.RawMessage(`{
		"id": 5,
		"createdAt": "2023-02-03 04:05:06",
		"phones": [{"number": "+100"}],
		"phone": "+200",
		"totalSumm": 500,
		"customFields": []
	}`))
	require.NoError(t, err)

	m := NewMirrorCustomer(c, time.Now())

	assert.Equal(t, "+100", m.Phone)
	assert.True(t, decimal.NewFromInt(500).Equal(m.LTV), "ltv falls back to totalSumm")
	assert.True(t, m.AverageCheck.IsZero())
	assert.Equal(t, json.RawMessage("[]"), m.Tags)
	assert.Empty(t, m.CustomFields)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(json.Number("10"), float64(10)))
	assert.True(t, ValuesEqual("a", "a"))
	assert.False(t, ValuesEqual("10", float64(10)))
	assert.True(t, ValuesEqual(true, true))
	assert.False(t, ValuesEqual(nil, "x"))
}

func TestPresent(t *testing.T) {
	assert.False(t, Present(nil))
	assert.False(t, Present(""))
	assert.True(t, Present("Main st"))
	assert.True(t, Present(json.Number("0")))
	assert.True(t, Present(false))
	// only null and the empty string count as absent
	assert.True(t, Present([]any{}))
	assert.True(t, Present(map[string]any{}))
}
