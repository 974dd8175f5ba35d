package orders

import "github.com/lakay-digital/recharge-relay/internal/domain"

// PhoneStrategy is one phone lookup. Lookup is pure; item is the matched recharge line item.
type PhoneStrategy struct {
	Source string
	Lookup func(order OrderPayload, item *LineItem) (string, bool)
}

// DefaultPhoneStrategies returns the lookups in precedence order: line-item properties,
// note attributes, custom attributes, shipping, billing, then customer phone.
func DefaultPhoneStrategies(keywords []string) []PhoneStrategy {
	return []PhoneStrategy{
		{Source: "line_item_properties", Lookup: func(_ OrderPayload, item *LineItem) (string, bool) {
			if item == nil {
				return "", false
			}
			return findAttribute(item.Properties, keywords)
		}},
		{Source: "note_attributes", Lookup: func(o OrderPayload, _ *LineItem) (string, bool) {
			return findAttribute(o.NoteAttributes, keywords)
		}},
		{Source: "custom_attributes", Lookup: func(o OrderPayload, _ *LineItem) (string, bool) {
			return findAttribute(o.CustomAttributes, keywords)
		}},
		{Source: "shipping_address", Lookup: func(o OrderPayload, _ *LineItem) (string, bool) {
			if o.ShippingAddress == nil {
				return "", false
			}
			return nonEmpty(o.ShippingAddress.Phone)
		}},
		{Source: "billing_address", Lookup: func(o OrderPayload, _ *LineItem) (string, bool) {
			if o.BillingAddress == nil {
				return "", false
			}
			return nonEmpty(o.BillingAddress.Phone)
		}},
		{Source: "customer", Lookup: func(o OrderPayload, _ *LineItem) (string, bool) {
			if o.Customer == nil {
				return "", false
			}
			return nonEmpty(o.Customer.Phone)
		}},
	}
}

func findAttribute(attrs Attributes, keywords []string) (string, bool) {
	for _, a := range attrs {
		if a.Value != "" && domain.ContainsAnyFolded(a.Name, keywords) {
			return a.Value, true
		}
	}
	return "", false
}

func nonEmpty(s string) (string, bool) {
	return s, s != ""
}
