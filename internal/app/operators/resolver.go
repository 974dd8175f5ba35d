// Package operators decides which provider operator a recharge is sent to.
package operators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lakay-digital/recharge-relay/internal/domain"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/provider"
)

var (
	// ErrDenominationNotAllowed means a bundle amount is not one the pinned operator sells.
	ErrDenominationNotAllowed = errors.New("amount is not an allowed denomination for the bundle operator")

	// ErrOperatorUnresolved means neither detection nor the carrier rules produced an operator.
	ErrOperatorUnresolved = errors.New("operator could not be resolved")
)

const (
	SourceBundle   = "bundle"
	SourceDetected = "detected"
	SourceRules    = "rules"
)

type Resolution struct {
	OperatorID   int64
	OperatorName string
	Source       string
}

type Resolver struct {
	dir     provider.OperatorDirectory
	country domain.Country
	rules   []CarrierRule
	log     *zap.Logger
}

func NewResolver(dir provider.OperatorDirectory, country domain.Country, rules Rules, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{dir: dir, country: country, rules: rules.Carriers, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, req domain.RechargeRequest) (Resolution, error) {
	if req.IsBundle() {
		return r.resolveBundle(ctx, req)
	}
	return r.resolveAuto(ctx, req.Phone)
}

func (r *Resolver) resolveBundle(ctx context.Context, req domain.RechargeRequest) (Resolution, error) {
	allowed, err := r.dir.OperatorDenominations(ctx, req.BundleOperatorID)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: denominations for operator %d: %v", ErrOperatorUnresolved, req.BundleOperatorID, err)
	}
	for _, a := range allowed {
		if a.Equal(req.Amount) {
			return Resolution{OperatorID: req.BundleOperatorID, Source: SourceBundle}, nil
		}
	}
	return Resolution{}, fmt.Errorf("%w: %s not in %v", ErrDenominationNotAllowed, req.Amount, allowed)
}

func (r *Resolver) resolveAuto(ctx context.Context, phone domain.Phone) (Resolution, error) {
	intl := strings.TrimPrefix(r.country.International(phone), "+")

	op, detectErr := r.dir.DetectOperator(ctx, intl, r.country.Code)
	if detectErr == nil && op.ID != 0 {
		return Resolution{OperatorID: op.ID, OperatorName: op.Name, Source: SourceDetected}, nil
	}
	if detectErr == nil {
		detectErr = errors.New("detection returned no operator")
	}
	r.log.Warn("operator auto-detection failed, falling back to carrier rules", zap.Error(detectErr))

	ops, listErr := r.dir.ListOperators(ctx, r.country.Code)
	if listErr != nil {
		return Resolution{}, fmt.Errorf("%w: detect: %v; list: %v", ErrOperatorUnresolved, detectErr, listErr)
	}
	if op, ok := SelectByRules(phone, ops, r.rules); ok {
		return Resolution{OperatorID: op.ID, OperatorName: op.Name, Source: SourceRules}, nil
	}
	return Resolution{}, fmt.Errorf("%w: detect: %v; no carrier rule matched %d operators", ErrOperatorUnresolved, detectErr, len(ops))
}

// SelectByRules picks an operator for phone. Carriers whose prefixes match phone are
// tried first, then every carrier in rule order.
func SelectByRules(phone domain.Phone, ops []provider.Operator, rules []CarrierRule) (provider.Operator, bool) {
	ordered := make([]CarrierRule, 0, len(rules)*2)
	for _, rule := range rules {
		if hasPrefix(string(phone), rule.Prefixes) {
			ordered = append(ordered, rule)
		}
	}
	ordered = append(ordered, rules...)

	for _, rule := range ordered {
		for _, op := range ops {
			if domain.ContainsAnyFolded(op.Name, rule.NameContains) {
				return op, true
			}
		}
	}
	return provider.Operator{}, false
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
