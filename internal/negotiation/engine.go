package negotiation

import (
	"github.com/shopspring/decimal"

	"price-negotiation/backend/internal/messages"
	"price-negotiation/backend/internal/money"
)

// overListMargin is how far below list price a counter is pulled when the rounding
// suffix would push it above the original price.
var overListMargin = decimal.RequireFromString("0.15")

// Decide evaluates one offer against the shop settings. It holds no state between
// calls; the round number is whatever the caller supplies.
func Decide(in Input, settings Settings) Decision {
	settings = settings.normalized()
	original := money.Round2(in.OriginalPrice)
	floor := money.Round2(in.MinAcceptedPrice)
	if floor > original {
		floor = original
	}

	if settings.SaleRestricted(in) {
		return Decision{
			Status:       StatusRejected,
			CounterPrice: money.Ptr(original),
			OfferValue:   in.Offer,
			Category:     messages.CategorySale,
			Reason:       ReasonSaleRestricted,
		}
	}

	if in.Offer == nil {
		return Decision{
			Status:   StatusRejected,
			Category: messages.CategoryClarify,
			Reason:   ReasonUnparseable,
		}
	}
	offer := *in.Offer

	if offer > original {
		return Decision{
			Status:       StatusRejected,
			CounterPrice: money.Ptr(original),
			OfferValue:   in.Offer,
			Category:     messages.CategoryHigh,
		}
	}

	if offer >= floor {
		discount := original - offer
		if discount < 0 {
			discount = 0
		}
		return Decision{
			Status:         StatusAccepted,
			OfferValue:     in.Offer,
			DiscountAmount: money.Round2(discount),
			Category:       messages.CategorySuccess,
		}
	}

	if in.Round > settings.MaxRounds {
		return Decision{
			Status:       StatusCounter,
			CounterPrice: money.Ptr(floor),
			OfferValue:   in.Offer,
			Category:     messages.CategoryFinal,
			Final:        true,
		}
	}

	counter := CounterPrice(original, floor, in.Round, settings)
	return Decision{
		Status:       StatusCounter,
		CounterPrice: &counter,
		OfferValue:   in.Offer,
		Category:     classifyOffer(offer, original, counter),
	}
}

// CounterPrice computes the non-final counter offer for a round. The result always
// lies within [floor, original].
func CounterPrice(original, floor float64, round int, settings Settings) float64 {
	settings = settings.normalized()
	orig := decimal.NewFromFloat(original)
	lower := decimal.NewFromFloat(floor)
	if lower.GreaterThan(orig) {
		lower = orig
	}

	gap := orig.Sub(lower)
	pct := decimal.NewFromFloat(Concession(settings.Strategy, round))
	target := orig.Sub(gap.Mul(pct))
	if target.LessThan(lower) {
		target = lower
	}

	counter := target.Floor().Add(decimal.NewFromFloat(settings.RoundingSuffix))
	if counter.LessThan(lower) {
		counter = lower
	}
	if counter.GreaterThan(orig) {
		counter = orig.Sub(overListMargin)
	}
	if counter.LessThan(lower) {
		counter = lower
	}
	return counter.Round(2).InexactFloat64()
}

func classifyOffer(offer, original, counter float64) messages.Category {
	switch {
	case offer < 0.5*original:
		return messages.CategoryShocked
	case offer >= 0.9*counter:
		return messages.CategoryClose
	default:
		return messages.CategoryLow
	}
}
