package catalog

import (
	"time"

	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// The three query shapes the engine issues: a paged product listing, a
// batched variant lookup, and a batched cost lookup, plus the single
// product fetch. Selections match the envelope types in this package.

const productsPageQuery = `query ProductsPage($first: Int!, $after: String, $query: String) {
  products(first: $first, after: $after, query: $query) {
    edges {
      cursor
      node {
        id
        title
        handle
        vendor
        productType
        status
        tags
        createdAt
        updatedAt
        variants(first: 100) {
          edges {
            node {
              id
            }
          }
        }
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

const productByIDQuery = `query ProductByID($id: ID!) {
  product(id: $id) {
    id
    title
    handle
    vendor
    productType
    status
    tags
    createdAt
    updatedAt
    variants(first: 100) {
      edges {
        node {
          id
        }
      }
    }
  }
}`

const variantsByIDQuery = `query VariantsByID($first: Int!, $query: String!) {
  productVariants(first: $first, query: $query) {
    edges {
      node {
        id
        product {
          id
        }
        sku
        title
        price
        compareAtPrice
        barcode
        position
        inventoryQuantity
        createdAt
        updatedAt
      }
    }
  }
}`

const unitCostsQuery = `query UnitCosts($first: Int!, $query: String!) {
  productVariants(first: $first, query: $query) {
    edges {
      node {
        id
        inventoryItem {
          unitCost {
            amount
            currencyCode
          }
        }
      }
    }
  }
}`

// ProductsPage builds one page of the product listing. A non-zero since
// bounds the listing to products updated at or after the watermark.
func ProductsPage(pageSize int, cursor string, since time.Time) (string, map[string]interface{}) {
	vars := map[string]interface{}{
		"first": pageSize,
	}
	if cursor != "" {
		vars["after"] = cursor
	}
	if !since.IsZero() {
		vars["query"] = watermarkFilter(since)
	}
	return productsPageQuery, vars
}

// ProductByID builds the single-product fetch.
func ProductByID(id string) (string, map[string]interface{}) {
	return productByIDQuery, map[string]interface{}{"id": id}
}

// VariantsByID builds one batched variant lookup for an identifier
// group.
func VariantsByID(ids []string) (string, map[string]interface{}) {
	return variantsByIDQuery, map[string]interface{}{
		"first": len(ids),
		"query": idFilter(ids),
	}
}

// UnitCosts builds one batched cost lookup for an identifier group.
func UnitCosts(ids []string) (string, map[string]interface{}) {
	return unitCostsQuery, map[string]interface{}{
		"first": len(ids),
		"query": idFilter(ids),
	}
}

// idFilter renders an identifier group as the API's OR-list filter
// syntax, e.g. "id:7001 OR id:7002".
func idFilter(ids []string) string {
	size := stringpool.SizeFor(len(ids) * 24)
	b := stringpool.GetBuilder(size)
	defer stringpool.PutBuilder(b, size)

	for i, id := range ids {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString("id:")
		b.WriteString(id)
	}
	return stringpool.Clone(b.String())
}

func watermarkFilter(since time.Time) string {
	return stringpool.Sprintf("updated_at:>='%s'", since.UTC().Format(time.RFC3339))
}
