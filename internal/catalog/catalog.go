// Package catalog is a thin client over the commerce catalog's GraphQL
// endpoint, used by the render pipeline to fetch product data by SKU or
// URL key.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/httpclient"
)

// Product is the subset of catalog fields the renderer needs.
type Product struct {
	SKU         string   `json:"sku"`
	URLKey      string   `json:"url_key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Images      []string `json:"images"`
}

// Headers are derived from the merged remote configuration and attached to
// every catalog request.
type Headers struct {
	CustomerGroup  string
	EnvironmentID  string
	StoreCode      string
	StoreViewCode  string
	WebsiteCode    string
	APIKey         string
}

func (h Headers) asMap() map[string]string {
	return map[string]string{
		"Magento-Customer-Group": h.CustomerGroup,
		"Magento-Environment-Id": h.EnvironmentID,
		"Magento-Store-Code":     h.StoreCode,
		"Magento-Store-View-Code": h.StoreViewCode,
		"Magento-Website-Code":   h.WebsiteCode,
		"x-api-key":              h.APIKey,
		"Content-Type":           "application/json",
	}
}

// Client queries the catalog service.
type Client struct {
	endpoint string
	http     *httpclient.Client
}

// New creates a catalog Client for the given GraphQL endpoint.
func New(endpoint string, http *httpclient.Client) *Client {
	return &Client{endpoint: endpoint, http: http}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlEnvelope struct {
	Data struct {
		Products struct {
			Items []Product `json:"items"`
		} `json:"products"`
	} `json:"data"`
}

// ProductBySKU fetches a product by SKU. Returns a NotFoundError if the
// catalog has no matching product.
func (c *Client) ProductBySKU(ctx context.Context, sku string, headers Headers) (Product, error) {
	return c.query(ctx, productQuery, map[string]any{"sku": sku}, headers, sku)
}

// ProductByURLKey fetches a product by URL key.
func (c *Client) ProductByURLKey(ctx context.Context, urlKey string, headers Headers) (Product, error) {
	return c.query(ctx, productByURLKeyQuery, map[string]any{"urlKey": urlKey}, headers, urlKey)
}

const productQuery = `query ProductQuery($sku: String!) { products(filter: {sku: {eq: $sku}}) { items { sku url_key name description price images } } }`
const productByURLKeyQuery = `query ProductByUrlKey($urlKey: String!) { products(filter: {url_key: {eq: $urlKey}}) { items { sku url_key name description price images } } }`

func (c *Client) query(ctx context.Context, query string, vars map[string]any, headers Headers, lookupKey string) (Product, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return Product{}, fmt.Errorf("encoding graphql request: %w", err)
	}

	raw, err := c.http.Do(ctx, "catalog.query", httpclient.Request{
		Method:  "POST",
		URL:     c.endpoint,
		Headers: headers.asMap(),
		Body:    body,
	})
	if err != nil {
		return Product{}, fmt.Errorf("querying catalog: %w", err)
	}
	if raw == nil {
		return Product{}, &apperr.NotFoundError{SKU: lookupKey}
	}

	var env graphqlEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Product{}, fmt.Errorf("decoding catalog response: %w", err)
	}
	if len(env.Data.Products.Items) == 0 {
		return Product{}, &apperr.NotFoundError{SKU: lookupKey}
	}
	return env.Data.Products.Items[0], nil
}
