// Package catalog defines the remote catalog node shapes, the query
// builders that fetch them, and the pure transforms that flatten nodes
// into persistable rows.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cartsync/pkg/clients"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/cartsync/pkg/json"
)

// IDNode is a connection node carrying only an identifier.
type IDNode struct {
	ID string `json:"id"`
}

// IDEdge wraps an IDNode in the connection edge shape.
type IDEdge struct {
	Node IDNode `json:"node"`
}

// IDConnection is a connection whose nodes carry only identifiers.
type IDConnection struct {
	Edges []IDEdge `json:"edges"`
}

// ProductNode is a product as returned by the catalog listing query.
// The variants connection carries identifiers only; full variant nodes
// come from the batched lookup.
type ProductNode struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Handle      string       `json:"handle"`
	Vendor      string       `json:"vendor"`
	ProductType string       `json:"productType"`
	Status      string       `json:"status"`
	Tags        []string     `json:"tags"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Variants    IDConnection `json:"variants"`
}

// VariantIDs lists the identifiers of the product's variants in edge
// order.
func (p *ProductNode) VariantIDs() []string {
	if len(p.Variants.Edges) == 0 {
		return nil
	}
	ids := make([]string, 0, len(p.Variants.Edges))
	for _, edge := range p.Variants.Edges {
		ids = append(ids, edge.Node.ID)
	}
	return ids
}

// VariantNode is a variant as returned by the batched lookup. Prices
// arrive as numeric strings; unit costs come from the separate cost
// lookup, not from this shape.
type VariantNode struct {
	ID                string    `json:"id"`
	Product           IDNode    `json:"product"`
	SKU               string    `json:"sku"`
	Title             string    `json:"title"`
	Price             string    `json:"price"`
	CompareAtPrice    *string   `json:"compareAtPrice"`
	Barcode           string    `json:"barcode"`
	Position          int       `json:"position"`
	InventoryQuantity int       `json:"inventoryQuantity"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// MoneyNode is a money scalar with its currency.
type MoneyNode struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// UnitCostNode is the shape returned by the batched cost lookup.
type UnitCostNode struct {
	ID            string `json:"id"`
	InventoryItem struct {
		UnitCost *MoneyNode `json:"unitCost"`
	} `json:"inventoryItem"`
}

// ProductRow is a flattened product ready for upsert. Tags are joined
// into one column; Category is derived by Classify.
type ProductRow struct {
	ID           string
	Title        string
	Handle       string
	Vendor       string
	ProductType  string
	Status       string
	Tags         string
	Category     string
	VariantCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SyncedAt     time.Time
}

// Map renders the row as sink columns. Timestamps stay time.Time; the
// drivers bind those directly.
func (r *ProductRow) Map() map[string]interface{} {
	return map[string]interface{}{
		"id":            r.ID,
		"title":         r.Title,
		"handle":        r.Handle,
		"vendor":        r.Vendor,
		"product_type":  r.ProductType,
		"status":        r.Status,
		"tags":          r.Tags,
		"category":      r.Category,
		"variant_count": r.VariantCount,
		"created_at":    r.CreatedAt,
		"updated_at":    r.UpdatedAt,
		"synced_at":     r.SyncedAt,
	}
}

// VariantRow is a flattened variant ready for upsert. Absent optional
// prices stay absent (NullDecimal), never zero.
type VariantRow struct {
	ID                string
	ProductID         string
	SKU               string
	Title             string
	Price             decimal.Decimal
	CompareAtPrice    decimal.NullDecimal
	UnitCost          decimal.NullDecimal
	Barcode           string
	Position          int
	InventoryQuantity int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SyncedAt          time.Time
}

// Map renders the row as sink columns. Decimals are rendered as numeric
// strings so both SQL drivers bind them without a codec; absent
// decimals become NULL.
func (r *VariantRow) Map() map[string]interface{} {
	return map[string]interface{}{
		"id":                 r.ID,
		"product_id":         r.ProductID,
		"sku":                r.SKU,
		"title":              r.Title,
		"price":              r.Price.String(),
		"compare_at_price":   nullDecimalValue(r.CompareAtPrice),
		"unit_cost":          nullDecimalValue(r.UnitCost),
		"barcode":            r.Barcode,
		"position":           r.Position,
		"inventory_quantity": r.InventoryQuantity,
		"created_at":         r.CreatedAt,
		"updated_at":         r.UpdatedAt,
		"synced_at":          r.SyncedAt,
	}
}

func nullDecimalValue(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// Conflict column sets for the bulk upserts: every column except the
// primary key refreshes when a row with the same id already exists.
var (
	ProductConflictColumns = []string{
		"title", "handle", "vendor", "product_type", "status", "tags",
		"category", "variant_count", "created_at", "updated_at", "synced_at",
	}
	VariantConflictColumns = []string{
		"product_id", "sku", "title", "price", "compare_at_price",
		"unit_cost", "barcode", "position", "inventory_quantity",
		"created_at", "updated_at", "synced_at",
	}
)

// Response envelopes for the three query shapes.

type productsEnvelope struct {
	Products struct {
		Edges []struct {
			Cursor string      `json:"cursor"`
			Node   ProductNode `json:"node"`
		} `json:"edges"`
		PageInfo clients.PageInfo `json:"pageInfo"`
	} `json:"products"`
}

type productEnvelope struct {
	Product *ProductNode `json:"product"`
}

type variantsEnvelope struct {
	ProductVariants struct {
		Edges []struct {
			Node VariantNode `json:"node"`
		} `json:"edges"`
	} `json:"productVariants"`
}

type unitCostsEnvelope struct {
	ProductVariants struct {
		Edges []struct {
			Node UnitCostNode `json:"node"`
		} `json:"edges"`
	} `json:"productVariants"`
}

// DecodeProductsPage unpacks one page of the product listing.
func DecodeProductsPage(data jsonpool.RawMessage) ([]ProductNode, clients.PageInfo, error) {
	var env productsEnvelope
	if err := jsonpool.Unmarshal(data, &env); err != nil {
		return nil, clients.PageInfo{}, errors.Wrap(err, errors.ErrorTypeData, "failed to decode products page")
	}
	nodes := make([]ProductNode, 0, len(env.Products.Edges))
	for _, edge := range env.Products.Edges {
		nodes = append(nodes, edge.Node)
	}
	return nodes, env.Products.PageInfo, nil
}

// DecodeProduct unpacks a single-product response. A null product maps
// to a data error so single-mode syncs fail loudly on unknown ids.
func DecodeProduct(data jsonpool.RawMessage) (*ProductNode, error) {
	var env productEnvelope
	if err := jsonpool.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode product")
	}
	if env.Product == nil {
		return nil, errors.New(errors.ErrorTypeData, "product not found")
	}
	return env.Product, nil
}

// DecodeVariants unpacks a batched variant lookup.
func DecodeVariants(data jsonpool.RawMessage) ([]VariantNode, error) {
	var env variantsEnvelope
	if err := jsonpool.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode variants")
	}
	nodes := make([]VariantNode, 0, len(env.ProductVariants.Edges))
	for _, edge := range env.ProductVariants.Edges {
		nodes = append(nodes, edge.Node)
	}
	return nodes, nil
}

// DecodeUnitCosts unpacks a batched cost lookup into a map keyed by
// variant identifier. Variants without a recorded cost map to the
// absent marker.
func DecodeUnitCosts(data jsonpool.RawMessage) (map[string]decimal.NullDecimal, error) {
	var env unitCostsEnvelope
	if err := jsonpool.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode unit costs")
	}
	costs := make(map[string]decimal.NullDecimal, len(env.ProductVariants.Edges))
	for _, edge := range env.ProductVariants.Edges {
		node := edge.Node
		if node.InventoryItem.UnitCost == nil {
			costs[node.ID] = decimal.NullDecimal{}
			continue
		}
		amount, err := decimal.NewFromString(node.InventoryItem.UnitCost.Amount)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "unparseable unit cost amount").
				WithDetail("variant_id", node.ID)
		}
		costs[node.ID] = decimal.NullDecimal{Decimal: amount, Valid: true}
	}
	return costs, nil
}
