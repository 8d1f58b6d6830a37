package offer

import (
	"context"
	"errors"
	"strings"
	"time"

	"price-negotiation/backend/internal/ai"
	"price-negotiation/backend/internal/messages"
	"price-negotiation/backend/internal/negotiation"
	"price-negotiation/backend/internal/rules"
)

var (
	// ErrInvalidInput marks requests missing a shop, product, or message.
	ErrInvalidInput = errors.New("invalid negotiation request")
	// ErrUpstream marks turns that failed in a collaborator (catalog, rules, issuance).
	ErrUpstream = errors.New("upstream failure")
	// ErrProductNotFound is returned by catalogs for unknown products.
	ErrProductNotFound = errors.New("product not found")
)

// Request is one shopper submission.
type Request struct {
	ShopID    string `json:"shop_id"`
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
	Round     int    `json:"round"`
}

// Product is what the negotiation needs to know about a catalog item.
type Product struct {
	ID             string
	Title          string
	Price          float64
	CompareAtPrice *float64
	CollectionIDs  []string
}

// ShopConfig bundles the per-shop negotiation settings with the reply locale.
type ShopConfig struct {
	Settings negotiation.Settings
	Locale   string
}

// DefaultShopConfig is used for shops that never saved settings.
func DefaultShopConfig() ShopConfig {
	return ShopConfig{Settings: negotiation.DefaultSettings(), Locale: messages.DefaultLocale}
}

// AttemptStatus is the persisted outcome of a turn.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "PENDING"
	AttemptAccepted  AttemptStatus = "ACCEPTED"
	AttemptRejected  AttemptStatus = "REJECTED"
	AttemptCountered AttemptStatus = "COUNTERED"
)

// AttemptStatusFor maps a decision status onto the attempt log vocabulary. The
// second result is false for decisions that are never recorded.
func AttemptStatusFor(status negotiation.Status) (AttemptStatus, bool) {
	switch status {
	case negotiation.StatusAccepted:
		return AttemptAccepted, true
	case negotiation.StatusCounter:
		return AttemptCountered, true
	case negotiation.StatusRejected:
		return AttemptRejected, true
	case negotiation.StatusChat:
		return AttemptPending, true
	default:
		return "", false
	}
}

// ParseAttemptStatus accepts either vocabulary, case-insensitively.
func ParseAttemptStatus(label string) (AttemptStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case string(AttemptPending), string(negotiation.StatusChat):
		return AttemptPending, true
	case string(AttemptAccepted):
		return AttemptAccepted, true
	case string(AttemptRejected):
		return AttemptRejected, true
	case string(AttemptCountered), string(negotiation.StatusCounter):
		return AttemptCountered, true
	}
	return "", false
}

// Attempt is one recorded turn.
type Attempt struct {
	ID            string
	ShopID        string
	SessionID     string
	ProductID     string
	Round         int
	OriginalPrice float64
	OfferedPrice  *float64
	CounterPrice  *float64
	Status        AttemptStatus
	Category      messages.Category
	DiscountCode  string
	CreatedAt     time.Time
}

// DiscountRequest asks the issuer for a single-use code on one product.
type DiscountRequest struct {
	Code      string
	ShopID    string
	ProductID string
	SessionID string
	Amount    float64
}

// Event is published after every turn.
type Event struct {
	ShopID    string
	SessionID string
	ProductID string
	Round     int
	Decision  negotiation.Decision
	Source    ai.Source
	Duration  time.Duration
	At        time.Time
}

// ProductCatalog looks up products. Unknown products yield ErrProductNotFound.
type ProductCatalog interface {
	LookupProduct(ctx context.Context, shopID, productID string) (Product, error)
}

// SettingsProvider loads the negotiation settings of a shop.
type SettingsProvider interface {
	ShopConfig(ctx context.Context, shopID string) (ShopConfig, error)
}

// DiscountIssuer creates a code and returns it. An empty code counts as a failure.
type DiscountIssuer interface {
	IssueDiscount(ctx context.Context, req DiscountRequest) (string, error)
}

// AttemptRecorder persists turns and answers round queries.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
	CountSessionAttempts(ctx context.Context, shopID, sessionID, productID string) (int64, error)
}

// RuleResolver picks the rule that governs a product.
type RuleResolver interface {
	Resolve(ctx context.Context, shopID, productID string, collectionIDs []string) (rules.Rule, error)
}

// Gate decides whether a session may submit another offer.
type Gate interface {
	Check(ctx context.Context, sessionID, shopID string) error
}

// Observer receives every published turn.
type Observer interface {
	ObserveDecision(ctx context.Context, event Event)
}

// RoundSource selects who counts negotiation rounds.
type RoundSource string

const (
	// RoundFromClient trusts the round number supplied with the request.
	RoundFromClient RoundSource = "client"
	// RoundFromServer derives the round from the attempt log.
	RoundFromServer RoundSource = "server"
)

// ParseRoundSource falls back to RoundFromClient for unknown labels.
func ParseRoundSource(label string) RoundSource {
	if RoundSource(strings.ToLower(strings.TrimSpace(label))) == RoundFromServer {
		return RoundFromServer
	}
	return RoundFromClient
}
