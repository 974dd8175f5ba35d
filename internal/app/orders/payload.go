package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderPayload is the subset of the platform's order webhook body the interpreter reads.
// Field types are lenient: platforms and apps disagree on whether ids, prices and
// quantities are strings or numbers.
type OrderPayload struct {
	ID               OpaqueID   `json:"id"`
	Name             string     `json:"name"`
	CheckoutID       OpaqueID   `json:"checkout_id"`
	FinancialStatus  string     `json:"financial_status"`
	TotalPrice       Money      `json:"total_price"`
	Currency         string     `json:"currency"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone"`
	LineItems        []LineItem `json:"line_items"`
	NoteAttributes   Attributes `json:"note_attributes"`
	CustomAttributes Attributes `json:"custom_attributes"`
	ShippingAddress  *Address   `json:"shipping_address"`
	BillingAddress   *Address   `json:"billing_address"`
	Customer         *Customer  `json:"customer"`
}

type LineItem struct {
	ID           OpaqueID   `json:"id"`
	ProductID    OpaqueID   `json:"product_id"`
	Title        string     `json:"title"`
	Name         string     `json:"name"`
	VariantTitle string     `json:"variant_title"`
	SKU          string     `json:"sku"`
	Price        Money      `json:"price"`
	Quantity     Quantity   `json:"quantity"`
	Tags         Tags       `json:"tags"`
	Properties   Attributes `json:"properties"`
}

type Address struct {
	Phone string `json:"phone"`
}

type Customer struct {
	Phone string `json:"phone"`
}

// Attribute is a free-form name/value pair (line-item property, note attribute).
type Attribute struct {
	Name  string
	Value string
}

// Decode parses a raw webhook body.
func Decode(raw []byte) (OrderPayload, error) {
	var o OrderPayload
	if err := json.Unmarshal(raw, &o); err != nil {
		return OrderPayload{}, err
	}
	return o, nil
}

// OpaqueID accepts a JSON string or number and keeps its textual form.
type OpaqueID string

func (id *OpaqueID) UnmarshalJSON(b []byte) error {
	s, err := scalarString(b)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = OpaqueID(s)
	return nil
}

// Money accepts "10.00", 10, 10.5, "" and null. Absent or empty is zero.
type Money struct {
	decimal.Decimal
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s, err := scalarString(b)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if s == "" {
		m.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("amount %q: %w", s, err)
	}
	m.Decimal = d
	return nil
}

// Quantity accepts an integer or its string form.
type Quantity int

func (q *Quantity) UnmarshalJSON(b []byte) error {
	s, err := scalarString(b)
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	if s == "" {
		*q = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("quantity %q: %w", s, err)
	}
	*q = Quantity(n)
	return nil
}

// Tags accepts a comma-separated string or an array of strings.
type Tags []string

func (t *Tags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var arr []string
		if err := json.Unmarshal(b, &arr); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		*t = cleanTags(arr)
		return nil
	}
	s, err := scalarString(b)
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*t = cleanTags(strings.Split(s, ","))
	return nil
}

func cleanTags(in []string) Tags {
	out := make(Tags, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Attributes accepts either [{"name":..,"value":..}] or a {"name": value} object.
// Object keys are sorted so lookups stay deterministic.
type Attributes []Attribute

func (a *Attributes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*a = nil
		return nil
	case len(b) > 0 && b[0] == '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("attributes: %w", err)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Attributes, 0, len(keys))
		for _, k := range keys {
			v, err := scalarString(m[k])
			if errors.Is(err, errNotScalar) {
				continue
			}
			if err != nil {
				return fmt.Errorf("attribute %q: %w", k, err)
			}
			out = append(out, Attribute{Name: k, Value: v})
		}
		*a = out
		return nil
	}

	var raw []struct {
		Name  string          `json:"name"`
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	out := make(Attributes, 0, len(raw))
	for _, r := range raw {
		name := r.Name
		if name == "" {
			name = r.Key
		}
		v, err := scalarString(r.Value)
		if errors.Is(err, errNotScalar) {
			continue
		}
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
		out = append(out, Attribute{Name: name, Value: v})
	}
	*a = out
	return nil
}

// errNotScalar marks an object or array where text was expected. Attribute lists skip
// such values; order fields reject them.
var errNotScalar = errors.New("expected scalar")

// scalarString renders a JSON string, number, bool or null as text.
func scalarString(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case '{', '[':
		return "", fmt.Errorf("%w, got %s", errNotScalar, string(b[:1]))
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		return n.String(), nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return "", err
	}
	return strconv.FormatBool(v), nil
}
