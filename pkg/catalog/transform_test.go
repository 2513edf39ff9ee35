package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cartsync/pkg/errors"
)

func sampleProduct() ProductNode {
	node := ProductNode{
		ID:          "gid://catalog/Product/1001",
		Title:       "Trail Running Sneaker",
		Handle:      "trail-running-sneaker",
		Vendor:      "Northbound",
		ProductType: "Footwear",
		Status:      "ACTIVE",
		Tags:        []string{"outdoor", "running"},
		CreatedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	node.Variants.Edges = []IDEdge{
		{Node: IDNode{ID: "gid://catalog/Variant/7001"}},
		{Node: IDNode{ID: "gid://catalog/Variant/7002"}},
	}
	return node
}

func TestFlattenProduct(t *testing.T) {
	syncedAt := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)

	t.Run("flattens node fields", func(t *testing.T) {
		row, err := FlattenProduct(sampleProduct(), syncedAt)
		require.NoError(t, err)

		assert.Equal(t, "gid://catalog/Product/1001", row.ID)
		assert.Equal(t, "Trail Running Sneaker", row.Title)
		assert.Equal(t, "outdoor,running", row.Tags)
		assert.Equal(t, "footwear", row.Category)
		assert.Equal(t, 2, row.VariantCount)
		assert.Equal(t, syncedAt, row.SyncedAt)
	})

	t.Run("is a pure mapping", func(t *testing.T) {
		first, err := FlattenProduct(sampleProduct(), syncedAt)
		require.NoError(t, err)
		second, err := FlattenProduct(sampleProduct(), syncedAt)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("rejects a node without an identifier", func(t *testing.T) {
		node := sampleProduct()
		node.ID = ""
		_, err := FlattenProduct(node, syncedAt)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})

	t.Run("lists variant identifiers in edge order", func(t *testing.T) {
		node := sampleProduct()
		assert.Equal(t, []string{
			"gid://catalog/Variant/7001",
			"gid://catalog/Variant/7002",
		}, node.VariantIDs())
	})
}

func sampleVariant() VariantNode {
	compareAt := "89.99"
	node := VariantNode{
		ID:                "gid://catalog/Variant/7001",
		SKU:               "TRS-09-BLK",
		Title:             "Size 9 / Black",
		Price:             "74.95",
		CompareAtPrice:    &compareAt,
		Barcode:           "0123456789012",
		Position:          1,
		InventoryQuantity: 42,
		CreatedAt:         time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:         time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	node.Product.ID = "gid://catalog/Product/1001"
	return node
}

func TestFlattenVariant(t *testing.T) {
	syncedAt := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	cost := decimal.NullDecimal{Decimal: decimal.RequireFromString("31.50"), Valid: true}

	t.Run("coerces price strings to decimals", func(t *testing.T) {
		row, err := FlattenVariant(sampleVariant(), cost, syncedAt)
		require.NoError(t, err)

		assert.True(t, row.Price.Equal(decimal.RequireFromString("74.95")))
		require.True(t, row.CompareAtPrice.Valid)
		assert.True(t, row.CompareAtPrice.Decimal.Equal(decimal.RequireFromString("89.99")))
		require.True(t, row.UnitCost.Valid)
		assert.True(t, row.UnitCost.Decimal.Equal(decimal.RequireFromString("31.50")))
		assert.Equal(t, "gid://catalog/Product/1001", row.ProductID)
		assert.Equal(t, 42, row.InventoryQuantity)
	})

	t.Run("absent compare-at price stays absent, not zero", func(t *testing.T) {
		node := sampleVariant()
		node.CompareAtPrice = nil

		row, err := FlattenVariant(node, decimal.NullDecimal{}, syncedAt)
		require.NoError(t, err)

		assert.False(t, row.CompareAtPrice.Valid)
		assert.False(t, row.UnitCost.Valid)
		assert.Nil(t, row.Map()["compare_at_price"])
		assert.Nil(t, row.Map()["unit_cost"])
	})

	t.Run("malformed price is a data error", func(t *testing.T) {
		node := sampleVariant()
		node.Price = "not-a-number"

		_, err := FlattenVariant(node, decimal.NullDecimal{}, syncedAt)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})

	t.Run("renders decimals as numeric strings for the sink", func(t *testing.T) {
		row, err := FlattenVariant(sampleVariant(), cost, syncedAt)
		require.NoError(t, err)

		m := row.Map()
		assert.Equal(t, "74.95", m["price"])
		assert.Equal(t, "89.99", m["compare_at_price"])
		assert.Equal(t, "31.5", m["unit_cost"])
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		productType string
		tags        []string
		want        string
	}{
		{"matches product type", "Summit Pro", "Running Shoes", nil, "footwear"},
		{"matches title", "Organic Cotton Tee", "", nil, "apparel"},
		{"matches tags", "Evening Gift Set", "", []string{"candle", "gift"}, "home"},
		{"first table entry wins", "Jacket and Boot Bundle", "", nil, "apparel"},
		{"no match falls back to general", "Gift Card", "", nil, "general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.title, tt.productType, tt.tags))
		})
	}
}
