package store

import (
	"encoding/json"
	"strings"
	"time"
)

// NegotiationRule is a shop-configured floor policy.
type NegotiationRule struct {
	ID                    uint   `gorm:"primaryKey"`
	ShopID                string `gorm:"size:128;index:idx_rule_lookup"`
	Scope                 string `gorm:"size:16;index:idx_rule_lookup"`
	TargetID              string `gorm:"size:128;index:idx_rule_lookup"`
	MinDiscountMultiplier float64
	MinPrice              *float64
	Enabled               bool `gorm:"index"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ShopSettings holds the per-shop negotiation behaviour.
type ShopSettings struct {
	ShopID              string `gorm:"primaryKey;size:128"`
	Strategy            string `gorm:"size:32"`
	PriceRoundingSuffix float64
	MaxRounds           int
	AllowSaleItems      bool
	Locale              string `gorm:"size:16"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Product is the local snapshot of a commerce-platform product.
type Product struct {
	ShopID          string `gorm:"primaryKey;size:128"`
	ProductID       string `gorm:"primaryKey;size:128"`
	Title           string `gorm:"size:255"`
	Price           float64
	CompareAtPrice  *float64
	CollectionsJSON string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetCollections stores collection memberships as JSON.
func (p *Product) SetCollections(ids []string) {
	if ids == nil {
		p.CollectionsJSON = "[]"
		return
	}
	payload, _ := json.Marshal(ids)
	p.CollectionsJSON = string(payload)
}

// Collections returns the decoded collection memberships.
func (p *Product) Collections() []string {
	if strings.TrimSpace(p.CollectionsJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(p.CollectionsJSON), &out); err != nil {
		return nil
	}
	return out
}

// OfferAttempt is one recorded negotiation turn.
type OfferAttempt struct {
	ID            string `gorm:"primaryKey;size:26"`
	ShopID        string `gorm:"size:128;index:idx_attempt_window,priority:2"`
	SessionID     string `gorm:"size:128;index:idx_attempt_window,priority:1"`
	ProductID     string `gorm:"size:128;index"`
	Round         int
	OriginalPrice float64
	OfferedPrice  *float64
	CounterPrice  *float64
	Status        string    `gorm:"size:16;index"`
	Category      string    `gorm:"size:32"`
	DiscountCode  string    `gorm:"size:64"`
	CreatedAt     time.Time `gorm:"index:idx_attempt_window,priority:3"`
}

// DiscountCode is a single-use code restricted to one product.
type DiscountCode struct {
	ID         uint   `gorm:"primaryKey"`
	Code       string `gorm:"size:64;uniqueIndex"`
	ShopID     string `gorm:"size:128;index"`
	ProductID  string `gorm:"size:128"`
	SessionID  string `gorm:"size:128"`
	Amount     float64
	UsageLimit int
	UsedAt     *time.Time
	CreatedAt  time.Time
}
