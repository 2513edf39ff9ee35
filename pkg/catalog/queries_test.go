package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cartsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/cartsync/pkg/json"
)

func TestProductsPage(t *testing.T) {
	t.Run("first page has no cursor", func(t *testing.T) {
		query, vars := ProductsPage(50, "", time.Time{})
		assert.Contains(t, query, "products(first: $first")
		assert.Equal(t, 50, vars["first"])
		assert.NotContains(t, vars, "after")
		assert.NotContains(t, vars, "query")
	})

	t.Run("subsequent pages carry the cursor", func(t *testing.T) {
		_, vars := ProductsPage(50, "cursor-p50", time.Time{})
		assert.Equal(t, "cursor-p50", vars["after"])
	})

	t.Run("watermark becomes an updated-at filter", func(t *testing.T) {
		since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		_, vars := ProductsPage(50, "", since)
		assert.Equal(t, "updated_at:>='2026-08-01T00:00:00Z'", vars["query"])
	})
}

func TestProductByID(t *testing.T) {
	query, vars := ProductByID("gid://catalog/Product/1001")
	assert.Contains(t, query, "product(id: $id)")
	assert.Equal(t, "gid://catalog/Product/1001", vars["id"])
}

func TestIdentifierBatchQueries(t *testing.T) {
	ids := []string{"7001", "7002", "7003"}

	t.Run("variant lookup builds an OR-list filter", func(t *testing.T) {
		query, vars := VariantsByID(ids)
		assert.Contains(t, query, "productVariants(first: $first")
		assert.Equal(t, 3, vars["first"])
		assert.Equal(t, "id:7001 OR id:7002 OR id:7003", vars["query"])
	})

	t.Run("cost lookup uses the same identifier pattern", func(t *testing.T) {
		query, vars := UnitCosts(ids)
		assert.Contains(t, query, "unitCost")
		assert.Equal(t, "id:7001 OR id:7002 OR id:7003", vars["query"])
	})

	t.Run("single identifier has no OR", func(t *testing.T) {
		_, vars := VariantsByID([]string{"7001"})
		assert.Equal(t, "id:7001", vars["query"])
	})
}

func TestDecodeProductsPage(t *testing.T) {
	data := jsonpool.RawMessage(`{
		"products": {
			"edges": [
				{"cursor": "c1", "node": {"id": "p1", "title": "First"}},
				{"cursor": "c2", "node": {"id": "p2", "title": "Second"}}
			],
			"pageInfo": {"hasNextPage": true, "endCursor": "c2"}
		}
	}`)

	nodes, page, err := DecodeProductsPage(data)
	require.NoError(t, err)

	require.Len(t, nodes, 2)
	assert.Equal(t, "p1", nodes[0].ID)
	assert.Equal(t, "Second", nodes[1].Title)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "c2", page.EndCursor)
}

func TestDecodeProduct(t *testing.T) {
	t.Run("decodes the node", func(t *testing.T) {
		node, err := DecodeProduct(jsonpool.RawMessage(`{"product": {"id": "p1", "title": "First"}}`))
		require.NoError(t, err)
		assert.Equal(t, "p1", node.ID)
	})

	t.Run("null product is a data error", func(t *testing.T) {
		_, err := DecodeProduct(jsonpool.RawMessage(`{"product": null}`))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})
}

func TestDecodeVariants(t *testing.T) {
	data := jsonpool.RawMessage(`{
		"productVariants": {
			"edges": [
				{"node": {"id": "v1", "sku": "SKU-1", "price": "10.00", "product": {"id": "p1"}}},
				{"node": {"id": "v2", "sku": "SKU-2", "price": "12.50", "product": {"id": "p1"}}}
			]
		}
	}`)

	nodes, err := DecodeVariants(data)
	require.NoError(t, err)

	require.Len(t, nodes, 2)
	assert.Equal(t, "v1", nodes[0].ID)
	assert.Equal(t, "p1", nodes[0].Product.ID)
	assert.Equal(t, "12.50", nodes[1].Price)
}

func TestDecodeUnitCosts(t *testing.T) {
	t.Run("maps costs by variant identifier", func(t *testing.T) {
		data := jsonpool.RawMessage(`{
			"productVariants": {
				"edges": [
					{"node": {"id": "v1", "inventoryItem": {"unitCost": {"amount": "4.20", "currencyCode": "USD"}}}},
					{"node": {"id": "v2", "inventoryItem": {"unitCost": null}}}
				]
			}
		}`)

		costs, err := DecodeUnitCosts(data)
		require.NoError(t, err)
		require.Len(t, costs, 2)

		require.True(t, costs["v1"].Valid)
		assert.Equal(t, "4.2", costs["v1"].Decimal.String())
		assert.False(t, costs["v2"].Valid)
	})

	t.Run("malformed amount is a data error", func(t *testing.T) {
		data := jsonpool.RawMessage(`{
			"productVariants": {
				"edges": [
					{"node": {"id": "v1", "inventoryItem": {"unitCost": {"amount": "four dollars"}}}}
				]
			}
		}`)

		_, err := DecodeUnitCosts(data)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})
}
