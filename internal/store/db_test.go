package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"price-negotiation/backend/internal/messages"
	"price-negotiation/backend/internal/negotiation"
	"price-negotiation/backend/internal/offer"
	"price-negotiation/backend/internal/rules"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := Open(DriverSQLite, dsn, true)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func floatPtr(v float64) *float64 { return &v }

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "whatever", true); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestEnabledRulesFiltersAndOrders(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	seed := []NegotiationRule{
		{ShopID: "shop", Scope: "collection", TargetID: "summer", MinDiscountMultiplier: 0.9, Enabled: true},
		{ShopID: "shop", Scope: "collection", TargetID: "winter", MinDiscountMultiplier: 0.7, Enabled: true},
		{ShopID: "shop", Scope: "collection", TargetID: "summer", MinDiscountMultiplier: 0.5, Enabled: false},
		{ShopID: "shop", Scope: "global", TargetID: "ignored", MinDiscountMultiplier: 0.8, Enabled: true},
		{ShopID: "other", Scope: "global", MinDiscountMultiplier: 0.6, Enabled: true},
	}
	for i := range seed {
		if err := db.SaveRule(ctx, &seed[i]); err != nil {
			t.Fatalf("save rule: %v", err)
		}
	}

	got, err := db.EnabledRules(ctx, "shop", rules.ScopeCollection, []string{"winter", "summer"})
	if err != nil {
		t.Fatalf("enabled rules: %v", err)
	}
	if len(got) != 2 || got[0].TargetID != "summer" || got[1].TargetID != "winter" {
		t.Fatalf("expected summer then winter, got %+v", got)
	}

	global, err := db.EnabledRules(ctx, "shop", rules.ScopeGlobal, nil)
	if err != nil {
		t.Fatalf("global rules: %v", err)
	}
	if len(global) != 1 || global[0].MinDiscountMultiplier != 0.8 || global[0].TargetID != "" {
		t.Fatalf("unexpected global rules %+v", global)
	}

	none, err := db.EnabledRules(ctx, "shop", rules.ScopeProduct, nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no product rules, got %+v, %v", none, err)
	}
}

func TestResolverAgainstDatabase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for _, rule := range []NegotiationRule{
		{ShopID: "shop", Scope: "global", MinDiscountMultiplier: 0.9, Enabled: true},
		{ShopID: "shop", Scope: "product", TargetID: "p1", MinPrice: floatPtr(42), Enabled: true},
	} {
		rule := rule
		if err := db.SaveRule(ctx, &rule); err != nil {
			t.Fatalf("save rule: %v", err)
		}
	}

	resolver := rules.NewResolver(db)
	rule, err := resolver.Resolve(ctx, "shop", "p1", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rule.MinAcceptedPrice(100) != 42 {
		t.Fatalf("expected product min price 42, got %.2f", rule.MinAcceptedPrice(100))
	}
	rule, err = resolver.Resolve(ctx, "shop", "p2", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rule.MinAcceptedPrice(100) != 90 {
		t.Fatalf("expected global floor 90, got %.2f", rule.MinAcceptedPrice(100))
	}
}

func TestSaveRuleUpdatesOnlyOwnShop(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	own := NegotiationRule{ShopID: "shop-1", Scope: "global", MinDiscountMultiplier: 0.8, Enabled: true}
	if err := db.SaveRule(ctx, &own); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	foreign := NegotiationRule{ID: own.ID, ShopID: "shop-2", Scope: "global", MinDiscountMultiplier: 0.1, Enabled: true}
	if err := db.SaveRule(ctx, &foreign); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating another shop's rule, got %v", err)
	}
	rows, err := db.ListRules(ctx, "shop-1")
	if err != nil || len(rows) != 1 || rows[0].MinDiscountMultiplier != 0.8 {
		t.Fatalf("expected shop-1 rule untouched, got %+v, %v", rows, err)
	}
	if rows, _ := db.ListRules(ctx, "shop-2"); len(rows) != 0 {
		t.Fatalf("expected shop-2 to own no rules, got %+v", rows)
	}

	update := NegotiationRule{ID: own.ID, ShopID: "shop-1", Scope: "product", TargetID: "desk", MinDiscountMultiplier: 0.7, Enabled: false}
	if err := db.SaveRule(ctx, &update); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	if update.CreatedAt.IsZero() || update.Scope != "product" || update.Enabled {
		t.Fatalf("expected reloaded rule, got %+v", update)
	}
	enabled, err := db.EnabledRules(ctx, "shop-1", rules.ScopeProduct, []string{"desk"})
	if err != nil || len(enabled) != 0 {
		t.Fatalf("expected disabled rule to be filtered, got %+v, %v", enabled, err)
	}
}

func TestDeleteRule(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rule := NegotiationRule{ShopID: "shop", Scope: "global", MinDiscountMultiplier: 0.9, Enabled: true}
	if err := db.SaveRule(ctx, &rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}
	if err := db.DeleteRule(ctx, "other", rule.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting another shop's rule, got %v", err)
	}
	if err := db.DeleteRule(ctx, "shop", rule.ID); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	rows, err := db.ListRules(ctx, "shop")
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected no rules left, got %+v, %v", rows, err)
	}
}

func TestShopConfigDefaultsAndUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cfg, err := db.ShopConfig(ctx, "shop")
	if err != nil {
		t.Fatalf("shop config: %v", err)
	}
	if cfg.Settings != negotiation.DefaultSettings() || cfg.Locale != messages.DefaultLocale {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	settings := DefaultShopSettings("shop")
	settings.Strategy = "aggressive"
	settings.MaxRounds = 5
	settings.Locale = "de"
	if err := db.SaveShopSettings(ctx, &settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	settings.AllowSaleItems = true
	if err := db.SaveShopSettings(ctx, &settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	cfg, err = db.ShopConfig(ctx, "shop")
	if err != nil {
		t.Fatalf("shop config: %v", err)
	}
	if cfg.Settings.Strategy != negotiation.StrategyAggressive || cfg.Settings.MaxRounds != 5 || !cfg.Settings.AllowSaleItems || cfg.Locale != "de" {
		t.Fatalf("unexpected stored config %+v", cfg)
	}
}

func TestLookupProduct(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.LookupProduct(ctx, "shop", "missing"); !errors.Is(err, offer.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	product := Product{ShopID: "shop", ProductID: "p1", Title: "Lamp", Price: 59.99, CompareAtPrice: floatPtr(79.99)}
	product.SetCollections([]string{"lighting", "sale"})
	if err := db.UpsertProduct(ctx, &product); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	product.Price = 49.99
	if err := db.UpsertProduct(ctx, &product); err != nil {
		t.Fatalf("re-upsert product: %v", err)
	}

	got, err := db.LookupProduct(ctx, "shop", "p1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Price != 49.99 || got.CompareAtPrice == nil || *got.CompareAtPrice != 79.99 {
		t.Fatalf("unexpected product %+v", got)
	}
	if len(got.CollectionIDs) != 2 || got.CollectionIDs[0] != "lighting" {
		t.Fatalf("unexpected collections %+v", got.CollectionIDs)
	}
}

func TestAttemptWindowCounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, age := range []time.Duration{90 * time.Second, 45 * time.Second, 10 * time.Second} {
		err := db.RecordAttempt(ctx, offer.Attempt{
			ShopID:        "shop",
			SessionID:     "sess",
			ProductID:     "p1",
			Round:         i + 1,
			OriginalPrice: 100,
			OfferedPrice:  floatPtr(60),
			Status:        offer.AttemptCountered,
			CreatedAt:     now.Add(-age),
		})
		if err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}
	if err := db.RecordAttempt(ctx, offer.Attempt{ShopID: "shop", SessionID: "other", ProductID: "p1", Status: offer.AttemptPending, CreatedAt: now}); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	count, err := db.CountAttemptsSince(ctx, "sess", "shop", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("count since: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 attempts in window, got %d", count)
	}

	total, err := db.CountSessionAttempts(ctx, "shop", "sess", "p1")
	if err != nil || total != 3 {
		t.Fatalf("expected 3 session attempts, got %d, %v", total, err)
	}

	rows, total, err := db.ListAttempts(ctx, AttemptQuery{ShopID: "shop", Status: "countered", Limit: 2})
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if total != 3 || len(rows) != 2 || rows[0].Round != 3 {
		t.Fatalf("expected newest first page of 2/3, got %d rows total %d", len(rows), total)
	}
}

func TestIssueDiscount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	code, err := db.IssueDiscount(ctx, offer.DiscountRequest{Code: "NEGO-ABCDEFGH", ShopID: "shop", ProductID: "p1", SessionID: "sess", Amount: 15})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if code != "NEGO-ABCDEFGH" {
		t.Fatalf("unexpected code %q", code)
	}
	row, err := db.GetDiscountCode(ctx, code)
	if err != nil {
		t.Fatalf("get code: %v", err)
	}
	if row.UsageLimit != 1 || row.Amount != 15 || row.ProductID != "p1" || row.UsedAt != nil {
		t.Fatalf("unexpected code row %+v", row)
	}
	if _, err := db.IssueDiscount(ctx, offer.DiscountRequest{Code: "NEGO-ABCDEFGH", ShopID: "shop"}); err == nil {
		t.Fatalf("expected duplicate code to fail")
	}
	if _, err := db.IssueDiscount(ctx, offer.DiscountRequest{}); err == nil {
		t.Fatalf("expected empty code to fail")
	}
}
