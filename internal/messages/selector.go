package messages

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Category selects the pool a shopper-facing reply is drawn from.
type Category string

const (
	CategoryShocked     Category = "SHOCKED"
	CategoryLow         Category = "LOW"
	CategoryClose       Category = "CLOSE"
	CategorySuccess     Category = "SUCCESS"
	CategoryHigh        Category = "HIGH"
	CategoryFinal       Category = "FINAL"
	CategorySale        Category = "SALE"
	CategoryClarify     Category = "CLARIFY"
	CategoryRateLimited Category = "RATE_LIMITED"
	CategoryError       Category = "ERROR"
)

// DefaultLocale is used when a shop has no locale or an unknown one.
const DefaultLocale = "en"

const pricePlaceholder = "{price}"

// Selector picks a reaction message for a decision category.
type Selector struct {
	mu    sync.Mutex
	rng   *rand.Rand
	pools map[string]map[Category][]string
}

// NewSelector builds a selector over the built-in pools. A nil rng is replaced by
// a time-seeded source.
func NewSelector(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{rng: rng, pools: defaultPools()}
}

// NewSeededSelector is a convenience for deterministic selection in tests.
func NewSeededSelector(seed int64) *Selector {
	return NewSelector(rand.New(rand.NewSource(seed)))
}

// Pick returns a message in the default locale.
func (s *Selector) Pick(category Category, price *float64) string {
	return s.PickLocale(DefaultLocale, category, price)
}

// PickLocale draws uniformly from the category pool of the given locale and fills in
// the price placeholder. Unknown categories fall back to the LOW pool.
func (s *Selector) PickLocale(locale string, category Category, price *float64) string {
	pool := s.Pool(locale, category)
	s.mu.Lock()
	idx := s.rng.Intn(len(pool))
	s.mu.Unlock()
	return render(pool[idx], normalizeLocale(locale), price)
}

// Pool exposes the templates backing a category after locale and category fallback.
func (s *Selector) Pool(locale string, category Category) []string {
	pools := s.pools[normalizeLocale(locale)]
	if pool := pools[category]; len(pool) > 0 {
		return pool
	}
	return pools[CategoryLow]
}

// Locales lists the locales with message pools.
func (s *Selector) Locales() []string {
	out := make([]string, 0, len(s.pools))
	for locale := range s.pools {
		out = append(out, locale)
	}
	return out
}

func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if idx := strings.IndexAny(locale, "-_"); idx > 0 {
		locale = locale[:idx]
	}
	if _, ok := builtinLocales[locale]; ok {
		return locale
	}
	return DefaultLocale
}

func render(template, locale string, price *float64) string {
	if !strings.Contains(template, pricePlaceholder) {
		return template
	}
	formatted := ""
	if price != nil {
		formatted = FormatPrice(locale, *price)
	}
	return strings.ReplaceAll(template, pricePlaceholder, formatted)
}
