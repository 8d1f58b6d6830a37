package rules

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	rules []Rule
	err   error
	calls []Scope
}

func (f *fakeStore) EnabledRules(_ context.Context, _ string, scope Scope, targetIDs []string) ([]Rule, error) {
	f.calls = append(f.calls, scope)
	if f.err != nil {
		return nil, f.err
	}
	targets := make(map[string]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		targets[id] = struct{}{}
	}
	var out []Rule
	for _, rule := range f.rules {
		if rule.Scope != scope || !rule.Enabled {
			continue
		}
		if scope != ScopeGlobal {
			if _, ok := targets[rule.TargetID]; !ok {
				continue
			}
		}
		out = append(out, rule)
	}
	return out, nil
}

func floatPtr(v float64) *float64 { return &v }

func TestResolveSpecificity(t *testing.T) {
	store := &fakeStore{rules: []Rule{
		{ID: 1, Scope: ScopeGlobal, MinDiscountMultiplier: 0.95, Enabled: true},
		{ID: 2, Scope: ScopeCollection, TargetID: "summer", MinDiscountMultiplier: 0.85, Enabled: true},
		{ID: 3, Scope: ScopeProduct, TargetID: "p-1", MinDiscountMultiplier: 0.7, Enabled: true},
		{ID: 4, Scope: ScopeProduct, TargetID: "p-2", MinDiscountMultiplier: 0.5, Enabled: false},
		{ID: 5, Scope: ScopeCollection, TargetID: "winter", MinDiscountMultiplier: 0.6, Enabled: false},
	}}
	resolver := NewResolver(store)

	tests := []struct {
		name        string
		productID   string
		collections []string
		expectedID  uint
	}{
		{"product beats collection", "p-1", []string{"summer"}, 3},
		{"disabled product rule falls through to collection", "p-2", []string{"summer"}, 2},
		{"disabled collection falls through to global", "p-3", []string{"winter"}, 1},
		{"no collections uses global", "p-3", nil, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule, err := resolver.Resolve(context.Background(), "shop", tc.productID, tc.collections)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if rule.ID != tc.expectedID {
				t.Fatalf("expected rule %d got %d", tc.expectedID, rule.ID)
			}
		})
	}
}

func TestResolveImplicitDefault(t *testing.T) {
	resolver := NewResolver(&fakeStore{})
	rule, err := resolver.Resolve(context.Background(), "shop", "p-1", []string{"c-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !rule.Implicit || rule.MinDiscountMultiplier != 1.0 {
		t.Fatalf("expected implicit default, got %+v", rule)
	}
	if floor := rule.MinAcceptedPrice(59.9); floor != 59.9 {
		t.Fatalf("default rule should not discount, got %.2f", floor)
	}
}

func TestResolveStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	_, err := NewResolver(store).Resolve(context.Background(), "shop", "p-1", nil)
	if err == nil || !errors.Is(err, store.err) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected lookup to stop after error, got %d calls", len(store.calls))
	}
}

func TestMinAcceptedPrice(t *testing.T) {
	tests := []struct {
		name     string
		rule     Rule
		price    float64
		expected float64
	}{
		{"multiplier", Rule{MinDiscountMultiplier: 0.8}, 100, 80},
		{"half up rounding", Rule{MinDiscountMultiplier: 0.75}, 33.33, 25.00},
		{"round down", Rule{MinDiscountMultiplier: 0.85}, 99.99, 84.99},
		{"explicit min price wins", Rule{MinDiscountMultiplier: 0.5, MinPrice: floatPtr(72.5)}, 100, 72.5},
		{"invalid multiplier means no discount", Rule{MinDiscountMultiplier: 0}, 40, 40},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rule.MinAcceptedPrice(tc.price); got != tc.expected {
				t.Fatalf("expected %.2f got %.2f", tc.expected, got)
			}
		})
	}
}
