package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cartsync/pkg/errors"
	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// FlattenProduct maps one product node to its row. Pure: the output is
// a function of the node and the sync timestamp only.
func FlattenProduct(node ProductNode, syncedAt time.Time) (ProductRow, error) {
	if node.ID == "" {
		return ProductRow{}, errors.New(errors.ErrorTypeData, "product node missing identifier")
	}
	return ProductRow{
		ID:           node.ID,
		Title:        node.Title,
		Handle:       node.Handle,
		Vendor:       node.Vendor,
		ProductType:  node.ProductType,
		Status:       node.Status,
		Tags:         stringpool.JoinPooled(node.Tags, ","),
		Category:     Classify(node.Title, node.ProductType, node.Tags),
		VariantCount: len(node.Variants.Edges),
		CreatedAt:    node.CreatedAt,
		UpdatedAt:    node.UpdatedAt,
		SyncedAt:     syncedAt,
	}, nil
}

// FlattenVariant maps one variant node and its looked-up unit cost to a
// row. The price string must parse as a decimal; a malformed price is a
// data error. Absent compare-at prices and unknown costs stay absent,
// never zero.
func FlattenVariant(node VariantNode, unitCost decimal.NullDecimal, syncedAt time.Time) (VariantRow, error) {
	if node.ID == "" {
		return VariantRow{}, errors.New(errors.ErrorTypeData, "variant node missing identifier")
	}

	price, err := decimal.NewFromString(node.Price)
	if err != nil {
		return VariantRow{}, errors.Wrap(err, errors.ErrorTypeData, "unparseable price").
			WithDetail("variant_id", node.ID)
	}
	compareAt, err := parseOptionalDecimal(node.CompareAtPrice)
	if err != nil {
		return VariantRow{}, errors.Wrap(err, errors.ErrorTypeData, "unparseable compare-at price").
			WithDetail("variant_id", node.ID)
	}

	return VariantRow{
		ID:                node.ID,
		ProductID:         node.Product.ID,
		SKU:               node.SKU,
		Title:             node.Title,
		Price:             price,
		CompareAtPrice:    compareAt,
		UnitCost:          unitCost,
		Barcode:           node.Barcode,
		Position:          node.Position,
		InventoryQuantity: node.InventoryQuantity,
		CreatedAt:         node.CreatedAt,
		UpdatedAt:         node.UpdatedAt,
		SyncedAt:          syncedAt,
	}, nil
}

// parseOptionalDecimal maps a missing or empty value to the absent
// marker.
func parseOptionalDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// categoryKeywords is checked in order; the first matching entry wins.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"apparel", []string{"shirt", "tee", "hoodie", "jacket", "dress", "jeans", "pants"}},
	{"footwear", []string{"shoe", "sneaker", "boot", "sandal", "loafer", "footwear"}},
	{"accessories", []string{"hat", "cap", "belt", "scarf", "sock", "wallet", "bag"}},
	{"home", []string{"mug", "candle", "pillow", "blanket", "poster"}},
}

// Classify buckets a product into a coarse category from its type,
// title, and tags. Products that match nothing are "general".
func Classify(title, productType string, tags []string) string {
	size := stringpool.SizeFor(len(title) + len(productType) + len(tags)*12)
	b := stringpool.GetBuilder(size)
	defer stringpool.PutBuilder(b, size)

	b.WriteString(productType)
	b.WriteByte(' ')
	b.WriteString(title)
	for _, tag := range tags {
		b.WriteByte(' ')
		b.WriteString(tag)
	}
	haystack := strings.ToLower(b.String())

	for _, entry := range categoryKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(haystack, keyword) {
				return entry.category
			}
		}
	}
	return "general"
}
