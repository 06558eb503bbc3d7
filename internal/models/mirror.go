package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MirrorOrder is one row of the orders mirror table.
type MirrorOrder struct {
	ID                 int64           `json:"id"`
	Number             string          `json:"number"`
	ExternalID         string          `json:"external_id"`
	CreatedAt          time.Time       `json:"created_at"`
	Status             string          `json:"status"`
	CustomerID         *int64          `json:"customer_id"`
	CustomerExternalID string          `json:"customer_external_id"`
	TotalSumm          decimal.Decimal `json:"total_summ"`
	SumPaid            decimal.Decimal `json:"sum_paid"`
	Discount           decimal.Decimal `json:"discount"`
	SourceSource       string          `json:"source_source"`
	SourceMedium       string          `json:"source_medium"`
	SourceCampaign     string          `json:"source_campaign"`
	Site               string          `json:"site"`
	ManagerID          *int64          `json:"manager_id"`
	OrderMethod        string          `json:"order_method"`
	CustomFields       CustomFields    `json:"custom_fields"`
	RawData            json.RawMessage `json:"raw_data"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewMirrorOrder projects a remote order onto the mirror columns. Missing
// amounts become zero and missing custom fields an empty map.
func NewMirrorOrder(o Order, now time.Time) MirrorOrder {
	m := MirrorOrder{
		ID:           o.ID,
		Number:       o.Number,
		ExternalID:   o.ExternalID,
		CreatedAt:    o.CreatedAt.Time,
		Status:       o.Status,
		TotalSumm:    o.Total(),
		SumPaid:      orZero(o.Summ),
		Discount:     orZero(o.DiscountManualAmount),
		Site:         o.Site,
		ManagerID:    o.ManagerID,
		OrderMethod:  o.OrderMethod,
		CustomFields: o.CustomFields,
		RawData:      o.payload(),
		UpdatedAt:    now.UTC(),
	}
	if m.CustomFields == nil {
		m.CustomFields = CustomFields{}
	}
	if o.Customer != nil {
		id := o.Customer.ID
		m.CustomerID = &id
		m.CustomerExternalID = o.Customer.ExternalID
	}
	if o.Source != nil {
		m.SourceSource = o.Source.Source
		m.SourceMedium = o.Source.Medium
		m.SourceCampaign = o.Source.Campaign
	}
	return m
}

// Record returns the mirror-shaped (snake_case) view of the row.
func (m MirrorOrder) Record() Record {
	attrs := map[string]any{
		"id":                   m.ID,
		"number":               m.Number,
		"external_id":          m.ExternalID,
		"created_at":           m.CreatedAt.UTC().Format(CRMTimeLayout),
		"status":               m.Status,
		"customer_id":          ptrValue(m.CustomerID),
		"customer_external_id": m.CustomerExternalID,
		"total_summ":           json.Number(m.TotalSumm.String()),
		"sum_paid":             json.Number(m.SumPaid.String()),
		"discount":             json.Number(m.Discount.String()),
		"source_source":        m.SourceSource,
		"source_medium":        m.SourceMedium,
		"source_campaign":      m.SourceCampaign,
		"site":                 m.Site,
		"manager_id":           ptrValue(m.ManagerID),
		"order_method":         m.OrderMethod,
		"custom_fields":        map[string]any(m.CustomFields),
	}
	return Record{
		Kind:         EntityOrders,
		Shape:        ShapeMirror,
		ID:           m.ID,
		CreatedAt:    m.CreatedAt,
		Status:       m.Status,
		Site:         m.Site,
		Sum:          m.TotalSumm,
		CustomFields: map[string]any(m.CustomFields),
		Attrs:        attrs,
	}
}

// MirrorCustomer is one row of the customers mirror table.
type MirrorCustomer struct {
	ID           int64           `json:"id"`
	ExternalID   string          `json:"external_id"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	CreatedAt    time.Time       `json:"created_at"`
	Site         string          `json:"site"`
	Vip          bool            `json:"vip"`
	Bad          bool            `json:"bad"`
	Tags         json.RawMessage `json:"tags"`
	CustomFields CustomFields    `json:"custom_fields"`
	LTV          decimal.Decimal `json:"ltv"`
	AverageCheck decimal.Decimal `json:"average_check"`
	OrdersCount  int             `json:"orders_count"`
	RawData      json.RawMessage `json:"raw_data"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewMirrorCustomer(c Customer, now time.Time) MirrorCustomer {
	m := MirrorCustomer{
		ID:           c.ID,
		ExternalID:   c.ExternalID,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Email:        c.Email,
		Phone:        c.PrimaryPhone(),
		CreatedAt:    c.CreatedAt.Time,
		Site:         c.Site,
		Vip:          c.Vip,
		Bad:          c.Bad,
		Tags:         c.Tags,
		CustomFields: c.CustomFields,
		LTV:          c.LTV(),
		AverageCheck: orZero(c.AverageSumm),
		OrdersCount:  c.OrdersCount,
		RawData:      c.payload(),
		UpdatedAt:    now.UTC(),
	}
	if len(m.Tags) == 0 || string(m.Tags) == "null" {
		m.Tags = json.RawMessage("[]")
	}
	if m.CustomFields == nil {
		m.CustomFields = CustomFields{}
	}
	return m
}

func (m MirrorCustomer) Record() Record {
	attrs := map[string]any{
		"id":            m.ID,
		"external_id":   m.ExternalID,
		"first_name":    m.FirstName,
		"last_name":     m.LastName,
		"email":         m.Email,
		"phone":         m.Phone,
		"created_at":    m.CreatedAt.UTC().Format(CRMTimeLayout),
		"site":          m.Site,
		"vip":           m.Vip,
		"bad":           m.Bad,
		"ltv":           json.Number(m.LTV.String()),
		"average_check": json.Number(m.AverageCheck.String()),
		"orders_count":  m.OrdersCount,
		"custom_fields": map[string]any(m.CustomFields),
	}
	return Record{
		Kind:         EntityCustomers,
		Shape:        ShapeMirror,
		ID:           m.ID,
		CreatedAt:    m.CreatedAt,
		Site:         m.Site,
		Sum:          m.LTV,
		CustomFields: map[string]any(m.CustomFields),
		Attrs:        attrs,
	}
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}

func ptrValue(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
