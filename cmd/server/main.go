package main

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"price-negotiation/backend/internal/ai"
	"price-negotiation/backend/internal/api"
	"price-negotiation/backend/internal/config"
	"price-negotiation/backend/internal/offer"
	"price-negotiation/backend/internal/ratelimit"
	"price-negotiation/backend/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	configureLogging(cfg.LogLevel, cfg.LogFormat)

	if isSQLiteFile(cfg.Database.Driver, cfg.Database.DSN) {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logrus.Fatalf("create data directory: %v", err)
			}
		}
	}

	server, err := api.NewServer(api.Config{
		DBDriver:       cfg.Database.Driver,
		DBPath:         cfg.Database.DSN,
		SilentDB:       cfg.Database.Silent,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AIConfig: ai.Config{
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			BaseURL:     cfg.AI.BaseURL,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
			Timeout:     cfg.AI.Timeout,
		},
		DisableAI: cfg.AI.Disabled,
		RateLimit: ratelimit.Config{
			Window:      cfg.Negotiation.RateLimitWindow,
			MaxAttempts: cfg.Negotiation.RateLimitMaxAttempts,
		},
		RoundSource: offer.ParseRoundSource(cfg.Negotiation.RoundSource),
		MessageSeed: cfg.Negotiation.MessageSeed,
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer server.Close()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := strconv.Itoa(cfg.Server.Port)
	logrus.Infof("starting price-negotiation backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}

func configureLogging(level, format string) {
	if parsed, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		logrus.SetLevel(parsed)
	} else {
		logrus.WithError(err).Warn("unknown log level, keeping info")
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func isSQLiteFile(driver, dsn string) bool {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver != "" && driver != store.DriverSQLite {
		return false
	}
	return dsn != "" && !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, ":memory:")
}
