package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"

	"price-negotiation/backend/internal/catalog"
	"price-negotiation/backend/internal/config"
	"price-negotiation/backend/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional YAML config file")
		shopID     = flag.String("shop", "", "Shop the products belong to")
		dbDriver   = flag.String("db-driver", "", "Database driver (sqlite or postgres); defaults to config")
		dbDSN      = flag.String("db", "", "Database DSN or SQLite path; defaults to config")
		files      multiFlag
	)
	flag.Var(&files, "csv", "Product CSV export (repeatable)")
	flag.Parse()

	if strings.TrimSpace(*shopID) == "" || len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	driver := firstNonEmpty(*dbDriver, cfg.Database.Driver)
	dsn := firstNonEmpty(*dbDSN, cfg.Database.DSN)

	if failed := run(driver, dsn, *shopID, files); failed > 0 {
		logrus.Fatalf("%d of %d imports failed", failed, len(files))
	}
}

func run(driver, dsn, shopID string, files []string) int {
	db, err := store.Open(driver, dsn, true)
	if err != nil {
		logrus.Errorf("open database: %v", err)
		return len(files)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	importer := catalog.NewImporter(db)
	failed := 0
	for _, path := range files {
		result, err := importer.ImportFile(ctx, shopID, path)
		if err != nil {
			logrus.WithError(err).WithField("file", path).Error("import products")
			failed++
			continue
		}
		logrus.WithFields(logrus.Fields{
			"file":     path,
			"shop":     shopID,
			"imported": result.Imported,
			"skipped":  result.Skipped,
		}).Info("imported products")
	}
	return failed
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
