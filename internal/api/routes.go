package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"price-negotiation/backend/internal/ai"
	"price-negotiation/backend/internal/messages"
	"price-negotiation/backend/internal/metrics"
	"price-negotiation/backend/internal/negotiation"
	"price-negotiation/backend/internal/offer"
	"price-negotiation/backend/internal/ratelimit"
	"price-negotiation/backend/internal/rules"
	"price-negotiation/backend/internal/store"
)

// Config defines server dependencies.
type Config struct {
	DBDriver       string
	DBPath         string
	SilentDB       bool
	AllowedOrigins []string
	AIConfig       ai.Config
	DisableAI      bool
	RateLimit      ratelimit.Config
	RoundSource    offer.RoundSource
	// MessageSeed fixes the reply randomness; zero seeds from the clock.
	MessageSeed int64
}

// Server wires HTTP handlers with persistence and the negotiation service.
type Server struct {
	db             *store.Database
	service        *offer.Service
	selector       *messages.Selector
	notifier       *DecisionNotifier
	metrics        *metrics.Collector
	allowedOrigins []string
	aiEnabled      bool
	rateLimit      ratelimit.Config
}

const (
	defaultOffersLimit = 50
	maxOffersLimit     = 200
	requestIDHeader    = "X-Request-ID"
)

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBDriver, cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	extractor, aiEnabled, err := buildExtractor(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	seed := cfg.MessageSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	selector := messages.NewSeededSelector(seed)
	notifier := NewDecisionNotifier()
	collector := metrics.New()
	limiter := ratelimit.New(db, cfg.RateLimit)

	service, err := offer.NewService(offer.Deps{
		Catalog:     db,
		Settings:    db,
		Rules:       rules.NewResolver(db),
		Extractor:   extractor,
		Issuer:      db,
		Attempts:    db,
		Gate:        limiter,
		Selector:    selector,
		Observers:   []offer.Observer{notifier, collector},
		RoundSource: cfg.RoundSource,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("offer service: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"ai_enabled":   aiEnabled,
		"round_source": service.RoundSource(),
		"window":       limiter.Window(),
		"max_attempts": limiter.MaxAttempts(),
	}).Info("negotiation service ready")

	return &Server{
		db:             db,
		service:        service,
		selector:       selector,
		notifier:       notifier,
		metrics:        collector,
		allowedOrigins: cfg.AllowedOrigins,
		aiEnabled:      aiEnabled,
		rateLimit:      ratelimit.Config{Window: limiter.Window(), MaxAttempts: limiter.MaxAttempts()},
	}, nil
}

func buildExtractor(cfg Config) (ai.Extractor, bool, error) {
	parser := ai.NewParser()
	if cfg.DisableAI {
		logrus.Info("AI price extraction disabled via configuration")
		return parser, false, nil
	}
	client, err := ai.NewClient(cfg.AIConfig)
	if errors.Is(err, ai.ErrDisabled) {
		logrus.Info("AI price extraction disabled - no API key configured")
		return parser, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ai client: %w", err)
	}
	return ai.WithFallback(client, parser), true, nil
}

// Close releases the database connection.
func (s *Server) Close() error {
	return s.db.Close()
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	corsCfg.ExposeHeaders = []string{requestIDHeader}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))
	r.Use(requestID(), s.observeRequests())

	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/negotiate", s.handleNegotiate)
		api.GET("/negotiations/stream", s.handleDecisionStream)

		shops := api.Group("/shops/:shop")
		shops.GET("/rules", s.handleListRules)
		shops.POST("/rules", s.handleSaveRule)
		shops.DELETE("/rules/:id", s.handleDeleteRule)
		shops.GET("/settings", s.handleGetSettings)
		shops.PUT("/settings", s.handlePutSettings)
		shops.GET("/products/:id", s.handleGetProduct)
		shops.PUT("/products/:id", s.handlePutProduct)
		shops.GET("/offers", s.handleListOffers)
	}

	return r, nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		done := s.metrics.RequestStarted()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		done(path, c.Request.Method, c.Writer.Status())
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ai_enabled":              s.aiEnabled,
		"round_source":            s.service.RoundSource(),
		"rate_limit_window":       s.rateLimit.Window.String(),
		"rate_limit_max_attempts": s.rateLimit.MaxAttempts,
		"locales":                 s.selector.Locales(),
		"strategies": []negotiation.Strategy{
			negotiation.StrategyConciliatory,
			negotiation.StrategyModerate,
			negotiation.StrategyAggressive,
		},
		"defaults": SettingsFromModel(store.DefaultShopSettings("")),
	})
}

func (s *Server) handleNegotiate(c *gin.Context) {
	var req NegotiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	decision, err := s.service.Submit(c.Request.Context(), offer.Request{
		ShopID:    req.ShopID,
		SessionID: req.SessionID,
		ProductID: req.ProductID,
		Message:   req.Message,
		Round:     req.Round,
	})
	if errors.Is(err, offer.ErrInvalidInput) {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("negotiation turn degraded")
	}

	c.JSON(http.StatusOK, NegotiateResponse{Decision: decision, RequestID: c.GetString("request_id")})
}

func (s *Server) handleDecisionStream(c *gin.Context) {
	shopID := strings.TrimSpace(c.Query("shop"))
	if shopID == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("shop query parameter is required"))
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn, shopID)
	logrus.WithFields(logrus.Fields{"remote": conn.RemoteAddr().String(), "shop": shopID}).Info("decision websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("decision websocket closed")
			} else {
				logrus.WithError(err).Warn("decision websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) handleListRules(c *gin.Context) {
	rows, err := s.db.ListRules(c.Request.Context(), c.Param("shop"))
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]RuleDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, RuleFromModel(row))
	}
	c.JSON(http.StatusOK, RulesResponse{Items: dtos})
}

func (s *Server) handleSaveRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	row, err := ruleFromRequest(c.Param("shop"), req)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.db.SaveRule(c.Request.Context(), &row); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("rule %d not found", row.ID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	status := http.StatusCreated
	if req.ID != 0 {
		status = http.StatusOK
	}
	c.JSON(status, RuleFromModel(row))
}

func ruleFromRequest(shopID string, req RuleRequest) (store.NegotiationRule, error) {
	scope := rules.Scope(strings.ToLower(strings.TrimSpace(req.Scope)))
	if !scope.Valid() {
		return store.NegotiationRule{}, fmt.Errorf("scope must be one of global, product, collection")
	}
	target := strings.TrimSpace(req.TargetID)
	if scope != rules.ScopeGlobal && target == "" {
		return store.NegotiationRule{}, fmt.Errorf("target_id is required for %s rules", scope)
	}
	if req.MinPrice != nil {
		if *req.MinPrice < 0 || math.IsNaN(*req.MinPrice) || math.IsInf(*req.MinPrice, 0) {
			return store.NegotiationRule{}, errors.New("min_price must be a non-negative number")
		}
	} else if req.MinDiscountMultiplier <= 0 || req.MinDiscountMultiplier > 1 {
		return store.NegotiationRule{}, errors.New("min_discount_multiplier must be in (0, 1]")
	}
	multiplier := req.MinDiscountMultiplier
	if multiplier <= 0 || multiplier > 1 {
		multiplier = 1
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return store.NegotiationRule{
		ID:                    req.ID,
		ShopID:                shopID,
		Scope:                 string(scope),
		TargetID:              target,
		MinDiscountMultiplier: multiplier,
		MinPrice:              req.MinPrice,
		Enabled:               enabled,
	}, nil
}

func (s *Server) handleDeleteRule(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.db.DeleteRule(c.Request.Context(), c.Param("shop"), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("rule %d not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	shopID := c.Param("shop")
	row, err := s.db.GetShopSettings(c.Request.Context(), shopID)
	if errors.Is(err, store.ErrNotFound) {
		defaults := store.DefaultShopSettings(shopID)
		row, err = &defaults, nil
	}
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, SettingsFromModel(*row))
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var req SettingsDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	strategy := negotiation.Strategy(strings.ToLower(strings.TrimSpace(req.Strategy)))
	switch {
	case !strategy.Valid():
		s.renderError(c, http.StatusBadRequest, errors.New("strategy must be one of conciliatory, moderate, aggressive"))
		return
	case req.PriceRoundingSuffix < 0 || req.PriceRoundingSuffix >= 1:
		s.renderError(c, http.StatusBadRequest, errors.New("price_rounding_suffix must be in [0, 1)"))
		return
	case req.MaxRounds < 1:
		s.renderError(c, http.StatusBadRequest, errors.New("max_rounds must be at least 1"))
		return
	}
	locale := strings.ToLower(strings.TrimSpace(req.Locale))
	if locale == "" {
		locale = messages.DefaultLocale
	}

	row := store.ShopSettings{
		ShopID:              c.Param("shop"),
		Strategy:            string(strategy),
		PriceRoundingSuffix: req.PriceRoundingSuffix,
		MaxRounds:           req.MaxRounds,
		AllowSaleItems:      req.AllowSaleItems,
		Locale:              locale,
	}
	if err := s.db.SaveShopSettings(c.Request.Context(), &row); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, SettingsFromModel(row))
}

func (s *Server) handleGetProduct(c *gin.Context) {
	row, err := s.db.GetProduct(c.Request.Context(), c.Param("shop"), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("product %s not found", c.Param("id")))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, ProductFromModel(*row))
}

func (s *Server) handlePutProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Price <= 0 || math.IsNaN(req.Price) || math.IsInf(req.Price, 0) {
		s.renderError(c, http.StatusBadRequest, errors.New("price must be greater than zero"))
		return
	}
	if req.CompareAtPrice != nil && *req.CompareAtPrice < 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("compare_at_price must not be negative"))
		return
	}

	row := store.Product{
		ShopID:         c.Param("shop"),
		ProductID:      strings.TrimSpace(c.Param("id")),
		Title:          strings.TrimSpace(req.Title),
		Price:          req.Price,
		CompareAtPrice: req.CompareAtPrice,
	}
	row.SetCollections(dedupe(req.CollectionIDs))
	if err := s.db.UpsertProduct(c.Request.Context(), &row); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, ProductFromModel(row))
}

func (s *Server) handleListOffers(c *gin.Context) {
	limit := defaultOffersLimit
	if value := strings.TrimSpace(c.Query("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.renderError(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxOffersLimit {
		limit = maxOffersLimit
	}
	offset := 0
	if value := strings.TrimSpace(c.Query("offset")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			s.renderError(c, http.StatusBadRequest, errors.New("offset must be a non-negative integer"))
			return
		}
		offset = parsed
	}
	var status string
	if value := strings.TrimSpace(c.Query("status")); value != "" {
		parsed, ok := offer.ParseAttemptStatus(value)
		if !ok {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("unknown status %q", value))
			return
		}
		status = string(parsed)
	}

	rows, total, err := s.db.ListAttempts(c.Request.Context(), store.AttemptQuery{
		ShopID:    c.Param("shop"),
		SessionID: strings.TrimSpace(c.Query("session_id")),
		ProductID: strings.TrimSpace(c.Query("product_id")),
		Status:    status,
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]OfferAttemptDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, OfferAttemptFromModel(row))
	}
	c.JSON(http.StatusOK, OffersResponse{Items: dtos, Total: total})
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	if parsed == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return uint(parsed), nil
}
