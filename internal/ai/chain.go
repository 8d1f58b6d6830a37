package ai

import (
	"context"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

type extractorChain struct {
	primary  Extractor
	fallback Extractor
}

// WithFallback returns an extractor that first tries the primary implementation and
// falls back to the provided extractor when the primary is unavailable, fails, or
// produces an unusable result. Primary errors never reach the caller.
func WithFallback(primary, fallback Extractor) Extractor {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &extractorChain{primary: primary, fallback: fallback}
}

func (c *extractorChain) Enabled() bool {
	if c == nil {
		return false
	}
	if c.primary != nil && c.primary.Enabled() {
		return true
	}
	if c.fallback != nil && c.fallback.Enabled() {
		return true
	}
	return false
}

func (c *extractorChain) Extract(ctx context.Context, text string, input ExtractionContext) (Extraction, error) {
	if c == nil {
		return Extraction{}, ErrDisabled
	}
	if c.primary != nil && c.primary.Enabled() {
		extraction, err := c.primary.Extract(ctx, text, input)
		if err == nil && usable(extraction) {
			return extraction, nil
		}
		if err != nil {
			logrus.WithError(err).Debug("model extraction failed, using parser")
		}
	}
	if c.fallback != nil && c.fallback.Enabled() {
		// The primary may have consumed the deadline; the fallback is local and fast.
		return c.fallback.Extract(context.WithoutCancel(ctx), text, input)
	}
	return Extraction{}, ErrDisabled
}

func usable(e Extraction) bool {
	switch e.Kind {
	case KindOffer:
		return e.Price >= 0 && !math.IsNaN(e.Price) && !math.IsInf(e.Price, 0)
	case KindChat:
		return strings.TrimSpace(e.Message) != ""
	}
	return false
}
