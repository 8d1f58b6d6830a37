package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"price-negotiation/backend/internal/rules"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the database for the given driver and DSN. For SQLite the DSN is a
// file path or a memory URI.
func Open(driver, dsn string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
		driver = DriverSQLite
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&NegotiationRule{}, &ShopSettings{}, &Product{}, &OfferAttempt{}, &DiscountCode{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if driver == DriverSQLite {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			logrus.WithError(err).Warn("enable WAL mode")
		}
		if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
			logrus.WithError(err).Warn("set synchronous pragma")
		}
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// EnabledRules returns enabled rules of one scope, oldest first. Global rules ignore
// targetIDs; other scopes with no targets return nothing.
func (d *Database) EnabledRules(ctx context.Context, shopID string, scope rules.Scope, targetIDs []string) ([]rules.Rule, error) {
	query := d.gorm.WithContext(ctx).Model(&NegotiationRule{}).
		Where("shop_id = ? AND scope = ? AND enabled = ?", shopID, string(scope), true)
	if scope != rules.ScopeGlobal {
		if len(targetIDs) == 0 {
			return nil, nil
		}
		query = query.Where("target_id IN ?", targetIDs)
	}
	var rows []NegotiationRule
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]rules.Rule, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToRule())
	}
	return out, nil
}

// ToRule converts the persisted row to the resolver's rule type.
func (r NegotiationRule) ToRule() rules.Rule {
	return rules.Rule{
		ID:                    r.ID,
		Scope:                 rules.Scope(r.Scope),
		TargetID:              r.TargetID,
		MinDiscountMultiplier: r.MinDiscountMultiplier,
		MinPrice:              r.MinPrice,
		Enabled:               r.Enabled,
	}
}

// ListRules returns every rule of a shop ordered by ID.
func (d *Database) ListRules(ctx context.Context, shopID string) ([]NegotiationRule, error) {
	var rows []NegotiationRule
	if err := d.gorm.WithContext(ctx).Where("shop_id = ?", shopID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SaveRule inserts a rule, or updates it when ID is set. Updates only touch a rule
// owned by rule.ShopID and return ErrNotFound otherwise.
func (d *Database) SaveRule(ctx context.Context, rule *NegotiationRule) error {
	if rule == nil {
		return errors.New("rule is nil")
	}
	if rule.Scope == string(rules.ScopeGlobal) {
		rule.TargetID = ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if rule.ID == 0 {
		return d.gorm.WithContext(ctx).Create(rule).Error
	}
	res := d.gorm.WithContext(ctx).
		Model(&NegotiationRule{}).
		Where("shop_id = ? AND id = ?", rule.ShopID, rule.ID).
		Updates(map[string]any{
			"scope":                   rule.Scope,
			"target_id":               rule.TargetID,
			"min_discount_multiplier": rule.MinDiscountMultiplier,
			"min_price":               rule.MinPrice,
			"enabled":                 rule.Enabled,
			"updated_at":              time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return d.gorm.WithContext(ctx).Where("shop_id = ? AND id = ?", rule.ShopID, rule.ID).First(rule).Error
}

// DeleteRule removes a rule owned by the shop.
func (d *Database) DeleteRule(ctx context.Context, shopID string, id uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := d.gorm.WithContext(ctx).Where("shop_id = ? AND id = ?", shopID, id).Delete(&NegotiationRule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetShopSettings returns the stored settings or ErrNotFound.
func (d *Database) GetShopSettings(ctx context.Context, shopID string) (*ShopSettings, error) {
	var settings ShopSettings
	err := d.gorm.WithContext(ctx).Where("shop_id = ?", shopID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveShopSettings upserts the settings row.
func (d *Database) SaveShopSettings(ctx context.Context, settings *ShopSettings) error {
	if settings == nil {
		return errors.New("settings are nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"strategy", "price_rounding_suffix", "max_rounds", "allow_sale_items", "locale", "updated_at"}),
	}).Create(settings).Error
}

// GetProduct loads the product snapshot or ErrNotFound.
func (d *Database) GetProduct(ctx context.Context, shopID, productID string) (*Product, error) {
	var product Product
	err := d.gorm.WithContext(ctx).Where("shop_id = ? AND product_id = ?", shopID, productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpsertProduct inserts or refreshes a product snapshot.
func (d *Database) UpsertProduct(ctx context.Context, product *Product) error {
	if product == nil {
		return errors.New("product is nil")
	}
	if product.CollectionsJSON == "" {
		product.SetCollections(nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "price", "compare_at_price", "collections_json", "updated_at"}),
	}).Create(product).Error
}

// UpsertProducts writes a batch of products in one transaction.
func (d *Database) UpsertProducts(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		const batchSize = 250
		for start := 0; start < len(products); start += batchSize {
			end := start + batchSize
			if end > len(products) {
				end = len(products)
			}
			batch := products[start:end]
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "shop_id"}, {Name: "product_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"title", "price", "compare_at_price", "collections_json", "updated_at"}),
			}).CreateInBatches(batch, batchSize).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertAttempt appends a turn to the attempt log.
func (d *Database) InsertAttempt(ctx context.Context, attempt *OfferAttempt) error {
	if attempt == nil {
		return errors.New("attempt is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.WithContext(ctx).Create(attempt).Error
}

// CountAttemptsSince counts attempts of a session in a shop created at or after since.
// Timestamps are stored in UTC.
func (d *Database) CountAttemptsSince(ctx context.Context, sessionID, shopID string, since time.Time) (int64, error) {
	var count int64
	err := d.gorm.WithContext(ctx).Model(&OfferAttempt{}).
		Where("session_id = ? AND shop_id = ? AND created_at >= ?", sessionID, shopID, since.UTC()).
		Count(&count).Error
	return count, err
}

// AttemptQuery filters and paginates the attempt listing.
type AttemptQuery struct {
	ShopID    string
	SessionID string
	ProductID string
	Status    string
	Offset    int
	Limit     int
}

// ListAttempts returns matching attempts newest first together with the total count.
func (d *Database) ListAttempts(ctx context.Context, opts AttemptQuery) ([]OfferAttempt, int64, error) {
	base := d.gorm.WithContext(ctx).Model(&OfferAttempt{}).Where("shop_id = ?", opts.ShopID)
	if opts.SessionID != "" {
		base = base.Where("session_id = ?", opts.SessionID)
	}
	if opts.ProductID != "" {
		base = base.Where("product_id = ?", opts.ProductID)
	}
	if opts.Status != "" {
		base = base.Where("status = ?", strings.ToUpper(opts.Status))
	}
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query := base.Session(&gorm.Session{}).Order("created_at DESC")
	if opts.Limit > 0 {
		query = query.Offset(opts.Offset).Limit(opts.Limit)
	}
	var rows []OfferAttempt
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CreateDiscountCode stores a freshly minted code.
func (d *Database) CreateDiscountCode(ctx context.Context, code *DiscountCode) error {
	if code == nil {
		return errors.New("discount code is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.WithContext(ctx).Create(code).Error
}

// GetDiscountCode looks up a code or returns ErrNotFound.
func (d *Database) GetDiscountCode(ctx context.Context, code string) (*DiscountCode, error) {
	var row DiscountCode
	err := d.gorm.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
