package operators

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lakay-digital/recharge-relay/internal/app/orders"
)

// CarrierRule maps phone prefixes and operator-name substrings to a carrier. Used when
// the provider cannot auto-detect the operator for a number.
type CarrierRule struct {
	Name string `yaml:"name"`
	// NameContains is matched, folded, against the provider's operator names.
	NameContains []string `yaml:"name_contains"`
	// Prefixes are national-number prefixes served by the carrier.
	Prefixes []string `yaml:"prefixes"`
}

// Rules is the operator rules file.
type Rules struct {
	Carriers []CarrierRule       `yaml:"carriers"`
	Bundles  []orders.BundleRule `yaml:"bundles"`
}

// DefaultRules are the built-in Haiti carriers.
func DefaultRules() Rules {
	return Rules{
		Carriers: []CarrierRule{
			{Name: "Digicel", NameContains: []string{"digicel"}, Prefixes: []string{"3", "46", "47", "48", "49"}},
			{Name: "Natcom", NameContains: []string{"natcom"}, Prefixes: []string{"40", "41", "42", "43", "44", "55"}},
		},
	}
}

// LoadRules reads path, or returns DefaultRules when path is empty. Sections missing from
// the file keep their defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read operator rules: %w", err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (Rules, error) {
	var parsed Rules
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return Rules{}, fmt.Errorf("parse operator rules: %w", err)
	}
	rules := DefaultRules()
	if len(parsed.Carriers) > 0 {
		rules.Carriers = parsed.Carriers
	}
	rules.Bundles = parsed.Bundles
	if err := rules.validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) validate() error {
	var errs []error
	for i, c := range r.Carriers {
		if len(c.NameContains) == 0 {
			errs = append(errs, fmt.Errorf("carriers[%d] %q: name_contains is required", i, c.Name))
		}
	}
	for i, b := range r.Bundles {
		if b.OperatorID <= 0 {
			errs = append(errs, fmt.Errorf("bundles[%d] %q: operator_id must be positive", i, b.Name))
		}
		if len(b.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("bundles[%d] %q: keywords are required", i, b.Name))
		}
	}
	return errors.Join(errs...)
}
