package api

import (
	"time"

	"price-negotiation/backend/internal/negotiation"
	"price-negotiation/backend/internal/store"
)

// NegotiateRequest is one shopper submission.
type NegotiateRequest struct {
	ShopID    string `json:"shop_id"`
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
	Round     int    `json:"round"`
}

// NegotiateResponse wraps the decision returned to the storefront.
type NegotiateResponse struct {
	negotiation.Decision
	RequestID string `json:"request_id,omitempty"`
}

// RuleRequest creates or replaces a negotiation rule.
type RuleRequest struct {
	ID                    uint     `json:"id"`
	Scope                 string   `json:"scope"`
	TargetID              string   `json:"target_id"`
	MinDiscountMultiplier float64  `json:"min_discount_multiplier"`
	MinPrice              *float64 `json:"min_price"`
	Enabled               *bool    `json:"enabled"`
}

// RuleDTO is the API representation of a stored rule.
type RuleDTO struct {
	ID                    uint      `json:"id"`
	Scope                 string    `json:"scope"`
	TargetID              string    `json:"target_id,omitempty"`
	MinDiscountMultiplier float64   `json:"min_discount_multiplier"`
	MinPrice              *float64  `json:"min_price,omitempty"`
	Enabled               bool      `json:"enabled"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// RulesResponse lists the rules of a shop.
type RulesResponse struct {
	Items []RuleDTO `json:"items"`
}

// RuleFromModel converts the store model.
func RuleFromModel(row store.NegotiationRule) RuleDTO {
	return RuleDTO{
		ID:                    row.ID,
		Scope:                 row.Scope,
		TargetID:              row.TargetID,
		MinDiscountMultiplier: row.MinDiscountMultiplier,
		MinPrice:              row.MinPrice,
		Enabled:               row.Enabled,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
}

// SettingsDTO is both the request and response body of the settings endpoints.
type SettingsDTO struct {
	Strategy            string  `json:"strategy"`
	PriceRoundingSuffix float64 `json:"price_rounding_suffix"`
	MaxRounds           int     `json:"max_rounds"`
	AllowSaleItems      bool    `json:"allow_sale_items"`
	Locale              string  `json:"locale"`
}

// SettingsFromModel converts the store model.
func SettingsFromModel(row store.ShopSettings) SettingsDTO {
	return SettingsDTO{
		Strategy:            row.Strategy,
		PriceRoundingSuffix: row.PriceRoundingSuffix,
		MaxRounds:           row.MaxRounds,
		AllowSaleItems:      row.AllowSaleItems,
		Locale:              row.Locale,
	}
}

// ProductRequest refreshes the local snapshot of a product.
type ProductRequest struct {
	Title          string   `json:"title"`
	Price          float64  `json:"price"`
	CompareAtPrice *float64 `json:"compare_at_price"`
	CollectionIDs  []string `json:"collection_ids"`
}

// ProductDTO is the API representation of a product snapshot.
type ProductDTO struct {
	ProductID      string    `json:"product_id"`
	Title          string    `json:"title"`
	Price          float64   `json:"price"`
	CompareAtPrice *float64  `json:"compare_at_price,omitempty"`
	CollectionIDs  []string  `json:"collection_ids"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProductFromModel converts the store model.
func ProductFromModel(row store.Product) ProductDTO {
	collections := row.Collections()
	if collections == nil {
		collections = []string{}
	}
	return ProductDTO{
		ProductID:      row.ProductID,
		Title:          row.Title,
		Price:          row.Price,
		CompareAtPrice: row.CompareAtPrice,
		CollectionIDs:  collections,
		UpdatedAt:      row.UpdatedAt,
	}
}

// OfferAttemptDTO is the API representation of a recorded turn.
type OfferAttemptDTO struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	ProductID     string    `json:"product_id"`
	Round         int       `json:"round"`
	OriginalPrice float64   `json:"original_price"`
	OfferedPrice  *float64  `json:"offered_price"`
	CounterPrice  *float64  `json:"counter_price"`
	Status        string    `json:"status"`
	Category      string    `json:"category,omitempty"`
	DiscountCode  string    `json:"discount_code,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// OffersResponse holds a page of attempts and the total match count.
type OffersResponse struct {
	Items []OfferAttemptDTO `json:"items"`
	Total int64             `json:"total"`
}

// OfferAttemptFromModel converts the store model.
func OfferAttemptFromModel(row store.OfferAttempt) OfferAttemptDTO {
	return OfferAttemptDTO{
		ID:            row.ID,
		SessionID:     row.SessionID,
		ProductID:     row.ProductID,
		Round:         row.Round,
		OriginalPrice: row.OriginalPrice,
		OfferedPrice:  row.OfferedPrice,
		CounterPrice:  row.CounterPrice,
		Status:        row.Status,
		Category:      row.Category,
		DiscountCode:  row.DiscountCode,
		CreatedAt:     row.CreatedAt,
	}
}
