// Package orders turns a paid-order webhook payload into a RechargeRequest.
package orders

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lakay-digital/recharge-relay/internal/domain"
)

var (
	DefaultPhoneKeywords    = []string{"phone", "numero", "telephone", "tel"}
	DefaultAmountKeywords   = []string{"amount", "montant"}
	DefaultRechargeKeywords = []string{"recharge", "top-up", "topup", "airtime"}
)

// BundleRule classifies a fixed-denomination product and pins its operator.
type BundleRule struct {
	Name       string   `yaml:"name"`
	Keywords   []string `yaml:"keywords"`
	OperatorID int64    `yaml:"operator_id"`
}

type Config struct {
	Country          domain.Country
	PhoneKeywords    []string
	AmountKeywords   []string
	RechargeKeywords []string
	Bundles          []BundleRule
}

func (c Config) withDefaults() Config {
	if c.Country.Code == "" {
		c.Country = domain.Haiti()
	}
	if len(c.PhoneKeywords) == 0 {
		c.PhoneKeywords = DefaultPhoneKeywords
	}
	if len(c.AmountKeywords) == 0 {
		c.AmountKeywords = DefaultAmountKeywords
	}
	if len(c.RechargeKeywords) == 0 {
		c.RechargeKeywords = DefaultRechargeKeywords
	}
	return c
}

type Interpreter struct {
	cfg        Config
	strategies []PhoneStrategy
}

func New(cfg Config) *Interpreter {
	cfg = cfg.withDefaults()
	return &Interpreter{cfg: cfg, strategies: DefaultPhoneStrategies(cfg.PhoneKeywords)}
}

// Extract applies eligibility, classification, phone and amount lookups in that order.
// Ineligible orders return an *IgnoredError; unusable data returns a *ValidationError.
func (in *Interpreter) Extract(order OrderPayload) (domain.RechargeRequest, error) {
	if !strings.EqualFold(strings.TrimSpace(order.FinancialStatus), "paid") {
		return domain.RechargeRequest{}, &IgnoredError{Reason: ReasonNotPaid}
	}

	item, bundle, ok := in.rechargeItem(order)
	if !ok {
		return domain.RechargeRequest{}, &IgnoredError{Reason: ReasonNoRechargeItem}
	}

	req := domain.RechargeRequest{
		OrderID:      string(order.ID),
		CheckoutID:   string(order.CheckoutID),
		ProductTitle: item.Title,
		Tags:         []string(item.Tags),
	}
	if bundle != nil {
		req.BundleOperatorID = bundle.OperatorID
	}
	if req.OrderID == "" && req.CheckoutID == "" {
		return domain.RechargeRequest{}, &ValidationError{Field: "order_id", Reason: "missing order and checkout id"}
	}

	rawPhone, _, found := in.lookupPhone(order, item)
	if !found {
		return domain.RechargeRequest{}, &ValidationError{Field: "phone", Reason: "missing", Err: domain.ErrInvalidPhone}
	}
	phone, err := in.cfg.Country.Normalize(rawPhone)
	if err != nil {
		return domain.RechargeRequest{}, &ValidationError{Field: "phone", Reason: "does not match national format", Err: err}
	}
	req.Phone = phone

	amount, err := in.lookupAmount(order, item)
	if err != nil {
		return domain.RechargeRequest{}, err
	}
	req.Amount = amount

	if err := req.Validate(in.cfg.Country); err != nil {
		return domain.RechargeRequest{}, &ValidationError{Field: "request", Reason: "invariant violated", Err: err}
	}
	return req, nil
}

// PhoneSource reports which strategy produced the phone; used for logging.
func (in *Interpreter) PhoneSource(order OrderPayload) string {
	item, _, ok := in.rechargeItem(order)
	if !ok {
		return ""
	}
	_, source, _ := in.lookupPhone(order, item)
	return source
}

func (in *Interpreter) lookupPhone(order OrderPayload, item *LineItem) (string, string, bool) {
	for _, s := range in.strategies {
		if v, ok := s.Lookup(order, item); ok {
			return v, s.Source, true
		}
	}
	return "", "", false
}

// rechargeItem returns the first line item classified as a recharge, and the bundle
// rule it matched, if any. Bundle rules are checked before generic keywords.
func (in *Interpreter) rechargeItem(order OrderPayload) (*LineItem, *BundleRule, bool) {
	for i := range order.LineItems {
		item := &order.LineItems[i]
		labels := itemLabels(item)
		for j := range in.cfg.Bundles {
			rule := &in.cfg.Bundles[j]
			if matchesAny(labels, rule.Keywords) {
				return item, rule, true
			}
		}
		if matchesAny(labels, in.cfg.RechargeKeywords) {
			return item, nil, true
		}
	}
	return nil, nil, false
}

func itemLabels(item *LineItem) []string {
	labels := []string{item.Title, item.Name, item.VariantTitle, item.SKU}
	return append(labels, item.Tags...)
}

func matchesAny(labels, keywords []string) bool {
	for _, l := range labels {
		if domain.ContainsAnyFolded(l, keywords) {
			return true
		}
	}
	return false
}

// lookupAmount prefers an explicit amount property, then unit price times quantity,
// then the order total.
func (in *Interpreter) lookupAmount(order OrderPayload, item *LineItem) (decimal.Decimal, error) {
	if raw, ok := findAttribute(item.Properties, in.cfg.AmountKeywords); ok {
		d, err := ParseAmount(raw)
		if err != nil {
			return decimal.Zero, &ValidationError{Field: "amount", Reason: "unparseable amount property", Err: domain.ErrInvalidAmount}
		}
		return positive(d)
	}
	if item.Price.IsPositive() {
		qty := int64(item.Quantity)
		if qty <= 0 {
			qty = 1
		}
		return positive(item.Price.Mul(decimal.NewFromInt(qty)))
	}
	if !order.TotalPrice.IsZero() {
		return positive(order.TotalPrice.Decimal)
	}
	return decimal.Zero, &ValidationError{Field: "amount", Reason: "missing", Err: domain.ErrInvalidAmount}
}

func positive(d decimal.Decimal) (decimal.Decimal, error) {
	if !d.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "must be positive", Err: domain.ErrInvalidAmount}
	}
	return d, nil
}

// ParseAmount reads a customer-entered amount such as "25", "25,50" or "$ 10.00".
func ParseAmount(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}
	return decimal.NewFromString(b.String())
}
