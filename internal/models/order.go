package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CRMTimeLayout is the wall-clock layout RetailCRM uses for every timestamp.
const CRMTimeLayout = "2006-01-02 15:04:05"

type EntityKind string

const (
	EntityOrders    EntityKind = "orders"
	EntityCustomers EntityKind = "customers"
)

// CRMTime parses RetailCRM timestamps. Values are kept as UTC wall-clock so
// period keys match the dates the CRM shows.
type CRMTime struct {
	time.Time
}

func (t *CRMTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid CRM timestamp %s: %w", data, err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseCRMTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t CRMTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(CRMTimeLayout))
}

func ParseCRMTime(s string) (time.Time, error) {
	if parsed, err := time.ParseInLocation(CRMTimeLayout, s, time.UTC); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid CRM timestamp %q", s)
	}
	return parsed.UTC(), nil
}

// CustomFields holds the open custom-field map. RetailCRM encodes an empty
// map as [] so both shapes decode to an empty map.
type CustomFields map[string]any

func (c *CustomFields) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.HasPrefix(trimmed, []byte("[")) {
		*c = CustomFields{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	m := map[string]any{}
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("invalid customFields: %w", err)
	}
	*c = m
	return nil
}

type OrderSource struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Keyword  string `json:"keyword,omitempty"`
	Content  string `json:"content,omitempty"`
}

type CustomerRef struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"externalId,omitempty"`
}

type Order struct {
	ID                   int64               `json:"id"`
	Number               string              `json:"number"`
	ExternalID           string              `json:"externalId,omitempty"`
	CreatedAt            CRMTime             `json:"createdAt"`
	Status               string              `json:"status"`
	Site                 string              `json:"site"`
	OrderMethod          string              `json:"orderMethod,omitempty"`
	ManagerID            *int64              `json:"managerId,omitempty"`
	TotalSumm            decimal.NullDecimal `json:"totalSumm"`
	Summ                 decimal.NullDecimal `json:"summ"`
	PrepaySum            decimal.NullDecimal `json:"prepaySum"`
	DiscountManualAmount decimal.NullDecimal `json:"discountManualAmount"`
	Source               *OrderSource        `json:"source,omitempty"`
	Customer             *CustomerRef        `json:"customer,omitempty"`
	CustomFields         CustomFields        `json:"customFields"`

	Raw json.RawMessage `json:"-"`
}

// DecodeOrder decodes one remote order and keeps its original payload.
func DecodeOrder(raw json.RawMessage) (Order, error) {
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return Order{}, fmt.Errorf("failed to decode order: %w", err)
	}
	o.Raw = append(json.RawMessage(nil), raw...)
	if o.CustomFields == nil {
		o.CustomFields = CustomFields{}
	}
	return o, nil
}

// Total returns totalSumm, falling back to summ, then zero.
func (o Order) Total() decimal.Decimal {
	if o.TotalSumm.Valid {
		return o.TotalSumm.Decimal
	}
	if o.Summ.Valid {
		return o.Summ.Decimal
	}
	return decimal.Zero
}

// Record returns the remote-shaped (camelCase) view of the order.
func (o Order) Record() Record {
	return Record{
		Kind:         EntityOrders,
		Shape:        ShapeRemote,
		ID:           o.ID,
		CreatedAt:    o.CreatedAt.Time,
		Status:       o.Status,
		Site:         o.Site,
		Sum:          o.Total(),
		CustomFields: map[string]any(o.CustomFields),
		Attrs:        decodeAttrs(o.payload()),
	}
}

func decodeAttrs(raw json.RawMessage) map[string]any {
	attrs := map[string]any{}
	if len(raw) == 0 {
		return attrs
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return map[string]any{}
	}
	// keep the custom-field quirk consistent with the typed view
	if cf, ok := attrs["customFields"].([]any); ok && len(cf) == 0 {
		attrs["customFields"] = map[string]any{}
	}
	return attrs
}

func (o Order) payload() json.RawMessage {
	if len(o.Raw) > 0 {
		return o.Raw
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil
	}
	return b
}
