package retailcrm

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

var referenceEndpoints = map[string]string{
	"statuses":       "/api/v5/reference/statuses",
	"order-types":    "/api/v5/reference/order-types",
	"payment-types":  "/api/v5/reference/payment-types",
	"delivery-types": "/api/v5/reference/delivery-types",
	"sites":          "/api/v5/reference/sites",
	"order-methods":  "/api/v5/reference/order-methods",
	"custom-fields":  "/api/v5/custom-fields",
}

// Dictionaries lists the reference dictionaries Reference accepts.
func Dictionaries() []string {
	names := make([]string, 0, len(referenceEndpoints))
	for k := range referenceEndpoints {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Reference loads every entry of a reference dictionary. Dictionaries that
// come back as a code-keyed map are flattened into a list.
func (c *Client) Reference(ctx context.Context, dictionary string) ([]json.RawMessage, error) {
	endpoint, ok := referenceEndpoints[dictionary]
	if !ok {
		return nil, fmt.Errorf("%w: %q (allowed: %s)", ErrUnknownDictionary, dictionary, strings.Join(Dictionaries(), ", "))
	}
	entityKey := ""
	if dictionary == "custom-fields" {
		entityKey = "customFields"
	}
	return Collect(Paginate(ctx, c, endpoint, entityKey, nil, func(raw json.RawMessage) (json.RawMessage, error) {
		return raw, nil
	}))
}
