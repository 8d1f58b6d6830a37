package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"price-negotiation/backend/internal/store"
)

type memoryStore struct {
	products []store.Product
	err      error
}

func (m *memoryStore) UpsertProducts(_ context.Context, products []store.Product) error {
	if m.err != nil {
		return m.err
	}
	m.products = append(m.products, products...)
	return nil
}

func TestImport(t *testing.T) {
	input := "\ufeffProduct_ID,Title,Price,Compare_At_Price,Collections\n" +
		"desk,Walnut desk,\"1,299.50\",,office|furniture\n" +
		"lamp,Lamp,\"19,99\",49.00,lighting\n" +
		"chair,Chair,$89,120,\n" +
		",No id,10,,\n" +
		"rug,Rug,free,,\n" +
		"desk,Walnut desk v2,1199,,office\n"

	s := &memoryStore{}
	result, err := NewImporter(s).Import(context.Background(), "shop-1", strings.NewReader(input))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 3 || result.Skipped != 3 {
		t.Fatalf("expected 3 imported / 3 skipped, got %+v", result)
	}

	byID := make(map[string]store.Product)
	for _, p := range s.products {
		byID[p.ProductID] = p
	}
	desk := byID["desk"]
	if desk.Price != 1199 || desk.Title != "Walnut desk v2" || desk.ShopID != "shop-1" {
		t.Fatalf("expected last desk row to win, got %+v", desk)
	}
	if got := desk.Collections(); len(got) != 1 || got[0] != "office" {
		t.Fatalf("unexpected desk collections %v", got)
	}
	chair := byID["chair"]
	if chair.Price != 89 || chair.CompareAtPrice == nil || *chair.CompareAtPrice != 120 {
		t.Fatalf("unexpected chair %+v", chair)
	}
	if chair.Collections() == nil || len(chair.Collections()) != 0 {
		t.Fatalf("expected empty collection list, got %v", chair.Collections())
	}
}

func TestImportRequiresColumns(t *testing.T) {
	_, err := NewImporter(&memoryStore{}).Import(context.Background(), "shop", strings.NewReader("title,amount\nDesk,10\n"))
	if err == nil {
		t.Fatalf("expected missing column error")
	}
	if _, err := NewImporter(&memoryStore{}).Import(context.Background(), "shop", strings.NewReader("")); err == nil {
		t.Fatalf("expected empty csv error")
	}
	if _, err := NewImporter(&memoryStore{}).Import(context.Background(), " ", strings.NewReader("product_id,price\n")); err == nil {
		t.Fatalf("expected missing shop error")
	}
}

func TestImportStoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	_, err := NewImporter(&memoryStore{err: boom}).Import(context.Background(), "shop", strings.NewReader("product_id,price\na,10\n"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"45", 45, true},
		{"45,00", 45, true},
		{"1,299.50", 1299.5, true},
		{"€19.999", 20, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tc := range tests {
		got, ok := parsePrice(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parsePrice(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
