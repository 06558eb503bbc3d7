package aggregation

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Metrics is one bucket's running totals.
type Metrics struct {
	Count int64
	Sum   decimal.Decimal
}

func (m *Metrics) Add(sum decimal.Decimal) {
	m.Count++
	m.Sum = m.Sum.Add(sum)
}

func (m Metrics) Plus(other Metrics) Metrics {
	return Metrics{Count: m.Count + other.Count, Sum: m.Sum.Add(other.Sum)}
}

func (m Metrics) Equal(other Metrics) bool {
	return m.Count == other.Count && m.Sum.Equal(other.Sum)
}

// MarshalJSON writes sum as a JSON number.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Count int64       `json:"count"`
		Sum   json.Number `json:"sum"`
	}{
		Count: m.Count,
		Sum:   json.Number(m.Sum.String()),
	})
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var aux struct {
		Count int64           `json:"count"`
		Sum   decimal.Decimal `json:"sum"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Count = aux.Count
	m.Sum = aux.Sum
	return nil
}

// Period is one time bucket with its split-key cells.
type Period struct {
	Period string             `json:"period"`
	Data   map[string]Metrics `json:"data"`
}
