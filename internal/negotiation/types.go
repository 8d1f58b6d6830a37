package negotiation

import "price-negotiation/backend/internal/messages"

// Status is the verdict returned to the shopper.
type Status string

const (
	StatusAccepted Status = "ACCEPTED"
	StatusCounter  Status = "COUNTER"
	StatusRejected Status = "REJECTED"
	StatusChat     Status = "CHAT"
	StatusError    Status = "ERROR"
)

// Reason explains rejections and errors with a stable code.
type Reason string

const (
	ReasonInputInvalid    Reason = "INPUT_INVALID"
	ReasonRateLimited     Reason = "RATE_LIMITED"
	ReasonUnparseable     Reason = "UNPARSEABLE_OFFER"
	ReasonUpstreamFailure Reason = "UPSTREAM_FAILURE"
	ReasonSaleRestricted  Reason = "SALE_RESTRICTED"
)

// Settings is the per-shop configuration passed into every decision.
type Settings struct {
	Strategy       Strategy `json:"strategy"`
	RoundingSuffix float64  `json:"price_rounding_suffix"`
	MaxRounds      int      `json:"max_rounds"`
	AllowSaleItems bool     `json:"allow_sale_items"`
}

const (
	DefaultRoundingSuffix = 0.85
	DefaultMaxRounds      = 3
)

// DefaultSettings mirrors a shop that never changed its negotiation settings.
func DefaultSettings() Settings {
	return Settings{
		Strategy:       DefaultStrategy,
		RoundingSuffix: DefaultRoundingSuffix,
		MaxRounds:      DefaultMaxRounds,
	}
}

func (s Settings) normalized() Settings {
	s.Strategy = ParseStrategy(string(s.Strategy))
	if s.RoundingSuffix < 0 || s.RoundingSuffix >= 1 {
		s.RoundingSuffix = DefaultRoundingSuffix
	}
	if s.MaxRounds <= 0 {
		s.MaxRounds = DefaultMaxRounds
	}
	return s
}

// Input carries everything a single decision depends on.
type Input struct {
	OriginalPrice    float64
	MinAcceptedPrice float64
	CompareAtPrice   *float64
	// Offer is nil when no numeric price could be extracted.
	Offer *float64
	Round int
}

// OnSale reports whether the compare-at price marks the product as discounted.
func (in Input) OnSale() bool {
	return in.CompareAtPrice != nil && *in.CompareAtPrice > in.OriginalPrice
}

// SaleRestricted reports whether the shop policy forbids negotiating this input.
func (s Settings) SaleRestricted(in Input) bool {
	return !s.AllowSaleItems && in.OnSale()
}

// Decision is the outcome of one negotiation turn.
type Decision struct {
	Status         Status            `json:"status"`
	CounterPrice   *float64          `json:"counter_price"`
	OfferValue     *float64          `json:"offer_value,omitempty"`
	DiscountAmount float64           `json:"discount_amount,omitempty"`
	DiscountCode   string            `json:"discount_code,omitempty"`
	Message        string            `json:"message"`
	Category       messages.Category `json:"category,omitempty"`
	Final          bool              `json:"final,omitempty"`
	Reason         Reason            `json:"reason,omitempty"`
}

// MessagePrice is the amount a reaction message should quote for this decision.
func (d Decision) MessagePrice() *float64 {
	switch d.Status {
	case StatusAccepted:
		return d.OfferValue
	default:
		return d.CounterPrice
	}
}
