package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type CustomerPhone struct {
	Number string `json:"number"`
}

type Customer struct {
	ID           int64               `json:"id"`
	ExternalID   string              `json:"externalId,omitempty"`
	FirstName    string              `json:"firstName,omitempty"`
	LastName     string              `json:"lastName,omitempty"`
	Email        string              `json:"email,omitempty"`
	Phone        string              `json:"phone,omitempty"`
	Phones       []CustomerPhone     `json:"phones,omitempty"`
	CreatedAt    CRMTime             `json:"createdAt"`
	Site         string              `json:"site,omitempty"`
	Vip          bool                `json:"vip"`
	Bad          bool                `json:"bad"`
	Tags         json.RawMessage     `json:"tags,omitempty"`
	MarginSumm   decimal.NullDecimal `json:"marginSumm"`
	TotalSumm    decimal.NullDecimal `json:"totalSumm"`
	AverageSumm  decimal.NullDecimal `json:"averageSumm"`
	OrdersCount  int                 `json:"ordersCount"`
	CustomFields CustomFields        `json:"customFields"`

	Raw json.RawMessage `json:"-"`
}

func DecodeCustomer(raw json.RawMessage) (Customer, error) {
	var c Customer
	if err := json.Unmarshal(raw, &c); err != nil {
		return Customer{}, fmt.Errorf("failed to decode customer: %w", err)
	}
	c.Raw = append(json.RawMessage(nil), raw...)
	if c.CustomFields == nil {
		c.CustomFields = CustomFields{}
	}
	return c, nil
}

// PrimaryPhone prefers the first entry of phones over the legacy phone field.
func (c Customer) PrimaryPhone() string {
	if len(c.Phones) > 0 && c.Phones[0].Number != "" {
		return c.Phones[0].Number
	}
	return c.Phone
}

// LTV is marginSumm, falling back to totalSumm, then zero.
func (c Customer) LTV() decimal.Decimal {
	if c.MarginSumm.Valid {
		return c.MarginSumm.Decimal
	}
	if c.TotalSumm.Valid {
		return c.TotalSumm.Decimal
	}
	return decimal.Zero
}

func (c Customer) Record() Record {
	return Record{
		Kind:         EntityCustomers,
		Shape:        ShapeRemote,
		ID:           c.ID,
		CreatedAt:    c.CreatedAt.Time,
		Site:         c.Site,
		Sum:          c.LTV(),
		CustomFields: map[string]any(c.CustomFields),
		Attrs:        decodeAttrs(c.payload()),
	}
}

func (c Customer) payload() json.RawMessage {
	if len(c.Raw) > 0 {
		return c.Raw
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	return b
}
