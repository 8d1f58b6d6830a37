package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"price-negotiation/backend/internal/messages"
	"price-negotiation/backend/internal/negotiation"
	"price-negotiation/backend/internal/offer"
)

// LookupProduct implements offer.ProductCatalog on the local product snapshot.
func (d *Database) LookupProduct(ctx context.Context, shopID, productID string) (offer.Product, error) {
	row, err := d.GetProduct(ctx, shopID, productID)
	if errors.Is(err, ErrNotFound) {
		return offer.Product{}, fmt.Errorf("%w: %s", offer.ErrProductNotFound, productID)
	}
	if err != nil {
		return offer.Product{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	return offer.Product{
		ID:             row.ProductID,
		Title:          row.Title,
		Price:          row.Price,
		CompareAtPrice: row.CompareAtPrice,
		CollectionIDs:  row.Collections(),
	}, nil
}

// ShopConfig implements offer.SettingsProvider. Shops without a settings row get
// the defaults.
func (d *Database) ShopConfig(ctx context.Context, shopID string) (offer.ShopConfig, error) {
	row, err := d.GetShopSettings(ctx, shopID)
	if errors.Is(err, ErrNotFound) {
		return offer.DefaultShopConfig(), nil
	}
	if err != nil {
		return offer.ShopConfig{}, fmt.Errorf("load shop settings: %w", err)
	}
	return row.ToShopConfig(), nil
}

// ToShopConfig converts the stored row into the engine settings value.
func (s ShopSettings) ToShopConfig() offer.ShopConfig {
	locale := strings.TrimSpace(s.Locale)
	if locale == "" {
		locale = messages.DefaultLocale
	}
	return offer.ShopConfig{
		Settings: negotiation.Settings{
			Strategy:       negotiation.ParseStrategy(s.Strategy),
			RoundingSuffix: s.PriceRoundingSuffix,
			MaxRounds:      s.MaxRounds,
			AllowSaleItems: s.AllowSaleItems,
		},
		Locale: locale,
	}
}

// DefaultShopSettings is the row a shop implicitly has before saving settings.
func DefaultShopSettings(shopID string) ShopSettings {
	cfg := offer.DefaultShopConfig()
	return ShopSettings{
		ShopID:              shopID,
		Strategy:            string(cfg.Settings.Strategy),
		PriceRoundingSuffix: cfg.Settings.RoundingSuffix,
		MaxRounds:           cfg.Settings.MaxRounds,
		AllowSaleItems:      cfg.Settings.AllowSaleItems,
		Locale:              cfg.Locale,
	}
}

// IssueDiscount implements offer.DiscountIssuer by storing a single-use code.
func (d *Database) IssueDiscount(ctx context.Context, req offer.DiscountRequest) (string, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return "", errors.New("discount code is empty")
	}
	row := &DiscountCode{
		Code:       code,
		ShopID:     req.ShopID,
		ProductID:  req.ProductID,
		SessionID:  req.SessionID,
		Amount:     req.Amount,
		UsageLimit: 1,
	}
	if err := d.CreateDiscountCode(ctx, row); err != nil {
		return "", fmt.Errorf("create discount code: %w", err)
	}
	return row.Code, nil
}

// RecordAttempt implements offer.AttemptRecorder.
func (d *Database) RecordAttempt(ctx context.Context, attempt offer.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = ulid.Make().String()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	return d.InsertAttempt(ctx, &OfferAttempt{
		ID:            attempt.ID,
		ShopID:        attempt.ShopID,
		SessionID:     attempt.SessionID,
		ProductID:     attempt.ProductID,
		Round:         attempt.Round,
		OriginalPrice: attempt.OriginalPrice,
		OfferedPrice:  attempt.OfferedPrice,
		CounterPrice:  attempt.CounterPrice,
		Status:        string(attempt.Status),
		Category:      string(attempt.Category),
		DiscountCode:  attempt.DiscountCode,
		CreatedAt:     attempt.CreatedAt.UTC(),
	})
}

// CountSessionAttempts implements offer.AttemptRecorder.
func (d *Database) CountSessionAttempts(ctx context.Context, shopID, sessionID, productID string) (int64, error) {
	var count int64
	err := d.gorm.WithContext(ctx).Model(&OfferAttempt{}).
		Where("shop_id = ? AND session_id = ? AND product_id = ?", shopID, sessionID, productID).
		Count(&count).Error
	return count, err
}
