package catalog

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"price-negotiation/backend/internal/store"
)

// collectionSeparator splits the collections column.
const collectionSeparator = "|"

// Store persists imported product snapshots.
type Store interface {
	UpsertProducts(ctx context.Context, products []store.Product) error
}

// Importer loads product snapshots from CSV exports of the commerce platform.
type Importer struct {
	store Store
}

// Result summarizes one import run.
type Result struct {
	Imported int
	Skipped  int
}

// NewImporter constructs an importer writing to the given store.
func NewImporter(s Store) *Importer {
	return &Importer{store: s}
}

type columns struct {
	id, title, price, compareAt, collections int
}

// ImportFile reads the CSV at path and upserts its products for the shop.
func (i *Importer) ImportFile(ctx context.Context, shopID, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("product csv path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open product csv: %w", err)
	}
	defer file.Close()
	return i.Import(ctx, shopID, file)
}

// Import reads a CSV with a header row. product_id and price columns are required;
// title, compare_at_price and collections are optional. Rows without a usable id or
// price are skipped.
func (i *Importer) Import(ctx context.Context, shopID string, r io.Reader) (Result, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return Result{}, errors.New("shop id is required")
	}

	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Result{}, errors.New("product csv is empty")
	}
	if err != nil {
		return Result{}, fmt.Errorf("read product csv header: %w", err)
	}
	cols, err := detectColumns(header)
	if err != nil {
		return Result{}, err
	}

	var (
		products []store.Product
		result   Result
		seen     = make(map[string]int)
		line     = 1
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return Result{}, fmt.Errorf("read product csv row %d: %w", line, err)
		}

		product, ok := productFromRow(shopID, row, cols)
		if !ok {
			result.Skipped++
			logrus.WithFields(logrus.Fields{"line": line, "shop": shopID}).Debug("skip product row")
			continue
		}
		if idx, dup := seen[product.ProductID]; dup {
			products[idx] = product
			result.Skipped++
			continue
		}
		seen[product.ProductID] = len(products)
		products = append(products, product)
	}

	if err := i.store.UpsertProducts(ctx, products); err != nil {
		return Result{}, fmt.Errorf("store products: %w", err)
	}
	result.Imported = len(products)
	return result, nil
}

func detectColumns(header []string) (columns, error) {
	cols := columns{id: -1, title: -1, price: -1, compareAt: -1, collections: -1}
	for idx, raw := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))) {
		case "product_id", "id", "handle":
			if cols.id < 0 {
				cols.id = idx
			}
		case "title", "name":
			cols.title = idx
		case "price", "variant price":
			cols.price = idx
		case "compare_at_price", "compare at price", "variant compare at price":
			cols.compareAt = idx
		case "collections", "collection_ids":
			cols.collections = idx
		}
	}
	if cols.id < 0 || cols.price < 0 {
		return cols, errors.New("product csv needs product_id and price columns")
	}
	return cols, nil
}

func productFromRow(shopID string, row []string, cols columns) (store.Product, bool) {
	id := field(row, cols.id)
	if id == "" {
		return store.Product{}, false
	}
	price, ok := parsePrice(field(row, cols.price))
	if !ok || price <= 0 {
		return store.Product{}, false
	}
	product := store.Product{
		ShopID:    shopID,
		ProductID: id,
		Title:     field(row, cols.title),
		Price:     price,
	}
	if compareAt, ok := parsePrice(field(row, cols.compareAt)); ok && compareAt > 0 {
		product.CompareAtPrice = &compareAt
	}
	var collections []string
	for _, part := range strings.Split(field(row, cols.collections), collectionSeparator) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			collections = append(collections, trimmed)
		}
	}
	product.SetCollections(collections)
	return product, true
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parsePrice accepts "1299.5", "1,299.50", "19,99" and leading currency symbols.
func parsePrice(value string) (float64, bool) {
	value = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(value), "$€£"))
	if value == "" {
		return 0, false
	}
	switch {
	case strings.Contains(value, ",") && strings.Contains(value, "."):
		value = strings.ReplaceAll(value, ",", "")
	case strings.Contains(value, ","):
		value = strings.Replace(value, ",", ".", 1)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, false
	}
	return amount.Round(2).InexactFloat64(), true
}
