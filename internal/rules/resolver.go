package rules

import (
	"context"
	"fmt"

	"price-negotiation/backend/internal/money"
)

// Scope identifies what a negotiation rule applies to.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopeProduct    Scope = "product"
	ScopeCollection Scope = "collection"
)

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeProduct, ScopeCollection:
		return true
	}
	return false
}

// Rule defines the floor price for a product, collection, or whole shop.
type Rule struct {
	ID                    uint     `json:"id,omitempty"`
	Scope                 Scope    `json:"scope"`
	TargetID              string   `json:"target_id,omitempty"`
	MinDiscountMultiplier float64  `json:"min_discount_multiplier"`
	MinPrice              *float64 `json:"min_price,omitempty"`
	Enabled               bool     `json:"enabled"`
	// Implicit marks the built-in default used when a shop has no rule at all.
	Implicit bool `json:"implicit,omitempty"`
}

// DefaultRule accepts nothing below the list price.
func DefaultRule() Rule {
	return Rule{Scope: ScopeGlobal, MinDiscountMultiplier: 1.0, Enabled: true, Implicit: true}
}

// MinAcceptedPrice derives the floor for the supplied list price. An explicit
// minimum price wins over the multiplier.
func (r Rule) MinAcceptedPrice(originalPrice float64) float64 {
	if r.MinPrice != nil {
		return money.Round2(*r.MinPrice)
	}
	multiplier := r.MinDiscountMultiplier
	if multiplier <= 0 || multiplier > 1 {
		multiplier = 1
	}
	return money.MulRound2(originalPrice, multiplier)
}

// Store exposes the enabled rules of a shop. Implementations must return only
// enabled rules, ordered by creation.
type Store interface {
	EnabledRules(ctx context.Context, shopID string, scope Scope, targetIDs []string) ([]Rule, error)
}

// Resolver finds the most specific rule for a product.
type Resolver struct {
	store Store
}

// NewResolver returns a resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks product, collection, and shop-wide rules in that order and returns
// the built-in default when none apply. When several collection rules match, the
// first one the store returns wins.
func (r *Resolver) Resolve(ctx context.Context, shopID, productID string, collectionIDs []string) (Rule, error) {
	if productID != "" {
		rule, found, err := r.first(ctx, shopID, ScopeProduct, []string{productID})
		if err != nil || found {
			return rule, err
		}
	}
	if len(collectionIDs) > 0 {
		rule, found, err := r.first(ctx, shopID, ScopeCollection, collectionIDs)
		if err != nil || found {
			return rule, err
		}
	}
	rule, found, err := r.first(ctx, shopID, ScopeGlobal, nil)
	if err != nil || found {
		return rule, err
	}
	return DefaultRule(), nil
}

func (r *Resolver) first(ctx context.Context, shopID string, scope Scope, targets []string) (Rule, bool, error) {
	rows, err := r.store.EnabledRules(ctx, shopID, scope, targets)
	if err != nil {
		return Rule{}, false, fmt.Errorf("load %s rules: %w", scope, err)
	}
	for _, row := range rows {
		if row.Enabled {
			return row, true, nil
		}
	}
	return Rule{}, false, nil
}
