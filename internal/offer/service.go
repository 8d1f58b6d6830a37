package offer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"price-negotiation/backend/internal/ai"
	"price-negotiation/backend/internal/messages"
	"price-negotiation/backend/internal/negotiation"
	"price-negotiation/backend/internal/ratelimit"
	"price-negotiation/backend/internal/util"
)

const (
	maxMessageLength   = 1000
	discountCodePrefix = "NEGO-"
)

// Deps lists the collaborators of a Service. Catalog, Rules, Extractor and Selector
// are required.
type Deps struct {
	Catalog     ProductCatalog
	Settings    SettingsProvider
	Rules       RuleResolver
	Extractor   ai.Extractor
	Issuer      DiscountIssuer
	Attempts    AttemptRecorder
	Gate        Gate
	Selector    *messages.Selector
	Observers   []Observer
	RoundSource RoundSource
}

// Service runs negotiation turns.
type Service struct {
	catalog     ProductCatalog
	settings    SettingsProvider
	rules       RuleResolver
	extractor   ai.Extractor
	issuer      DiscountIssuer
	attempts    AttemptRecorder
	gate        Gate
	selector    *messages.Selector
	observers   []Observer
	roundSource RoundSource
	now         func() time.Time
	newID       func() string
}

// NewService validates the dependencies and builds a Service.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("product catalog required")
	case deps.Rules == nil:
		return nil, errors.New("rule resolver required")
	case deps.Extractor == nil:
		return nil, errors.New("price extractor required")
	case deps.Selector == nil:
		return nil, errors.New("message selector required")
	}
	observers := make([]Observer, 0, len(deps.Observers))
	for _, obs := range deps.Observers {
		if obs != nil {
			observers = append(observers, obs)
		}
	}
	return &Service{
		catalog:     deps.Catalog,
		settings:    deps.Settings,
		rules:       deps.Rules,
		extractor:   deps.Extractor,
		issuer:      deps.Issuer,
		attempts:    deps.Attempts,
		gate:        deps.Gate,
		selector:    deps.Selector,
		observers:   observers,
		roundSource: ParseRoundSource(string(deps.RoundSource)),
		now:         time.Now,
		newID:       func() string { return ulid.Make().String() },
	}, nil
}

// WithClock replaces the time source used for attempt timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RoundSource reports how rounds are counted.
func (s *Service) RoundSource() RoundSource {
	return s.roundSource
}

// Submit runs one negotiation turn. Only invalid requests return a decision-less
// error; every other outcome, including upstream failures, is a Decision. Upstream
// failures additionally return an error wrapping ErrUpstream.
func (s *Service) Submit(ctx context.Context, req Request) (negotiation.Decision, error) {
	timer := util.StartTimer()
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Message = strings.TrimSpace(req.Message)
	if err := validate(req); err != nil {
		return negotiation.Decision{}, err
	}
	if req.Round < 1 {
		req.Round = 1
	}

	log := logrus.WithFields(logrus.Fields{
		"shop":    req.ShopID,
		"product": req.ProductID,
		"session": req.SessionID,
	})
	shop := s.shopConfig(ctx, req.ShopID, log)
	t := turn{req: req, shop: shop, timer: timer}

	if s.gate != nil {
		if err := s.gate.Check(ctx, req.SessionID, req.ShopID); errors.Is(err, ratelimit.ErrRateLimited) {
			t.decision = negotiation.Decision{
				Status:   negotiation.StatusRejected,
				Category: messages.CategoryRateLimited,
				Reason:   negotiation.ReasonRateLimited,
			}
			return s.finish(ctx, &t, false), nil
		}
	}

	product, err := s.catalog.LookupProduct(ctx, req.ShopID, req.ProductID)
	if err == nil && product.Price <= 0 {
		err = fmt.Errorf("product %s has no usable price", req.ProductID)
	}
	if err != nil {
		return s.fail(ctx, &t, log, "product lookup", err)
	}
	t.product = product

	rule, err := s.rules.Resolve(ctx, req.ShopID, req.ProductID, product.CollectionIDs)
	if err != nil {
		return s.fail(ctx, &t, log, "rule resolution", err)
	}
	t.floor = rule.MinAcceptedPrice(product.Price)
	t.req.Round = s.round(ctx, req, log)

	input := negotiation.Input{
		OriginalPrice:    product.Price,
		MinAcceptedPrice: t.floor,
		CompareAtPrice:   product.CompareAtPrice,
		Round:            t.req.Round,
	}
	extraction, err := s.extractor.Extract(ctx, req.Message, ai.ExtractionContext{
		ProductTitle:     product.Title,
		OriginalPrice:    product.Price,
		MinAcceptedPrice: t.floor,
		Locale:           shop.Locale,
	})
	if err != nil && !errors.Is(err, ai.ErrUnparseable) {
		log.WithError(err).Debug("price extraction failed")
	}
	t.source = extraction.Source

	switch {
	case err == nil && extraction.Kind == ai.KindChat && !shop.Settings.SaleRestricted(input):
		t.decision = negotiation.Decision{Status: negotiation.StatusChat, Message: extraction.Message}
		return s.finish(ctx, &t, true), nil
	case err == nil && extraction.Kind == ai.KindOffer:
		price := extraction.Price
		input.Offer = &price
	}

	t.decision = negotiation.Decide(input, shop.Settings)
	if t.decision.Status == negotiation.StatusAccepted {
		code, err := s.issue(ctx, req, t.decision.DiscountAmount)
		if err != nil {
			return s.fail(ctx, &t, log, "discount issuance", err)
		}
		t.decision.DiscountCode = code
	}
	return s.finish(ctx, &t, true), nil
}

type turn struct {
	req      Request
	shop     ShopConfig
	product  Product
	floor    float64
	source   ai.Source
	decision negotiation.Decision
	timer    util.Timer
}

func validate(req Request) error {
	var missing []string
	if req.ShopID == "" {
		missing = append(missing, "shop_id")
	}
	if req.ProductID == "" {
		missing = append(missing, "product_id")
	}
	if req.Message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, maxMessageLength)
	}
	return nil
}

func (s *Service) shopConfig(ctx context.Context, shopID string, log *logrus.Entry) ShopConfig {
	if s.settings == nil {
		return DefaultShopConfig()
	}
	cfg, err := s.settings.ShopConfig(ctx, shopID)
	if err != nil {
		log.WithError(err).Warn("load shop settings, using defaults")
		return DefaultShopConfig()
	}
	if cfg.Locale == "" {
		cfg.Locale = messages.DefaultLocale
	}
	return cfg
}

func (s *Service) round(ctx context.Context, req Request, log *logrus.Entry) int {
	if s.roundSource != RoundFromServer || s.attempts == nil || req.SessionID == "" {
		return req.Round
	}
	count, err := s.attempts.CountSessionAttempts(ctx, req.ShopID, req.SessionID, req.ProductID)
	if err != nil {
		log.WithError(err).Warn("count session attempts, using client round")
		return req.Round
	}
	return int(count) + 1
}

func (s *Service) issue(ctx context.Context, req Request, amount float64) (string, error) {
	if s.issuer == nil {
		return "", errors.New("no discount issuer configured")
	}
	code, err := s.issuer.IssueDiscount(ctx, DiscountRequest{
		Code:      NewDiscountCode(s.newID()),
		ShopID:    req.ShopID,
		ProductID: req.ProductID,
		SessionID: req.SessionID,
		Amount:    amount,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(code) == "" {
		return "", errors.New("issuer returned an empty code")
	}
	return code, nil
}

// NewDiscountCode derives a shopper-facing code from a ULID string. The random tail
// of the ULID keeps codes unguessable.
func NewDiscountCode(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return discountCodePrefix + id
}

func (s *Service) fail(ctx context.Context, t *turn, log *logrus.Entry, stage string, err error) (negotiation.Decision, error) {
	log.WithError(err).WithField("stage", stage).Error("negotiation turn failed")
	t.decision = negotiation.Decision{
		Status:   negotiation.StatusError,
		Category: messages.CategoryError,
		Reason:   negotiation.ReasonUpstreamFailure,
	}
	return s.finish(ctx, t, false), fmt.Errorf("%w: %s: %v", ErrUpstream, stage, err)
}

func (s *Service) finish(ctx context.Context, t *turn, record bool) negotiation.Decision {
	if t.decision.Message == "" {
		t.decision.Message = s.selector.PickLocale(t.shop.Locale, t.decision.Category, t.decision.MessagePrice())
	}
	now := s.now().UTC()
	if record {
		s.record(ctx, t, now)
	}
	event := Event{
		ShopID:    t.req.ShopID,
		SessionID: t.req.SessionID,
		ProductID: t.req.ProductID,
		Round:     t.req.Round,
		Decision:  t.decision,
		Source:    t.source,
		Duration:  t.timer.Elapsed(),
		At:        now,
	}
	for _, obs := range s.observers {
		obs.ObserveDecision(ctx, event)
	}
	return t.decision
}

func (s *Service) record(ctx context.Context, t *turn, now time.Time) {
	if s.attempts == nil {
		return
	}
	status, ok := AttemptStatusFor(t.decision.Status)
	if !ok {
		return
	}
	attempt := Attempt{
		ID:            s.newID(),
		ShopID:        t.req.ShopID,
		SessionID:     t.req.SessionID,
		ProductID:     t.req.ProductID,
		Round:         t.req.Round,
		OriginalPrice: t.product.Price,
		OfferedPrice:  t.decision.OfferValue,
		CounterPrice:  t.decision.CounterPrice,
		Status:        status,
		Category:      t.decision.Category,
		DiscountCode:  t.decision.DiscountCode,
		CreatedAt:     now,
	}
	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"shop":    t.req.ShopID,
			"product": t.req.ProductID,
			"session": t.req.SessionID,
			"status":  status,
		}).Warn("record offer attempt")
	}
}
