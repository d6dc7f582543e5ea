// Package shopify is a minimal Storefront GraphQL client backing the commerce
// agent tools.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const searchProductsQuery = `
query SearchProducts($first: Int!, $query: String!) {
  products(first: $first, query: $query) {
    edges {
      node {
        id
        title
        description
        handle
        priceRange { minVariantPrice { amount currencyCode } }
        images(first: 1) { edges { node { url } } }
        variants(first: 1) { edges { node { id availableForSale } } }
      }
    }
  }
}`

const featuredProductsQuery = `
query GetProducts($first: Int!) {
  products(first: $first) {
    edges {
      node {
        id
        title
        description
        handle
        priceRange { minVariantPrice { amount currencyCode } }
        images(first: 1) { edges { node { url } } }
        variants(first: 1) { edges { node { id availableForSale } } }
      }
    }
  }
}`

const cartCreateMutation = `
mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart { id checkoutUrl }
    userErrors { field message }
  }
}`

type Client struct {
	StoreDomain string
	Token       string
	APIVersion  string
	HTTP        *http.Client

	// BaseURL overrides the store endpoint scheme+host, for tests.
	BaseURL string
}

// Product is the flattened shape handed to the model as a tool result.
// Description is truncated so product catalogs do not blow up the context.
type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Handle      string `json:"handle"`
	VariantID   string `json:"variantId,omitempty"`
	Available   bool   `json:"available"`
	Image       string `json:"image,omitempty"`
}

type productNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Handle      string `json:"handle"`
	PriceRange  struct {
		MinVariantPrice struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"minVariantPrice"`
	} `json:"priceRange"`
	Images struct {
		Edges []struct {
			Node struct {
				URL string `json:"url"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	Variants struct {
		Edges []struct {
			Node struct {
				ID               string `json:"id"`
				AvailableForSale bool   `json:"availableForSale"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type productsData struct {
	Products struct {
		Edges []struct {
			Node productNode `json:"node"`
		} `json:"edges"`
	} `json:"products"`
}

type cartCreateData struct {
	CartCreate struct {
		Cart struct {
			ID          string `json:"id"`
			CheckoutURL string `json:"checkoutUrl"`
		} `json:"cart"`
		UserErrors []struct {
			Field   []string `json:"field"`
			Message string   `json:"message"`
		} `json:"userErrors"`
	} `json:"cartCreate"`
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	apiVersion := c.APIVersion
	if apiVersion == "" {
		apiVersion = "2025-07"
	}
	base := c.BaseURL
	if base == "" {
		base = "https://" + c.StoreDomain
	}
	endpoint := fmt.Sprintf("%s/api/%s/graphql.json", base, apiVersion)

	b, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shopify api status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode shopify response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("shopify graphql: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(envelope.Data, out)
}

func flatten(n productNode) Product {
	desc := n.Description
	if len(desc) > 150 {
		desc = desc[:150]
	}
	p := Product{
		ID:          n.ID,
		Title:       n.Title,
		Description: desc,
		Price:       n.PriceRange.MinVariantPrice.CurrencyCode + " " + n.PriceRange.MinVariantPrice.Amount,
		Handle:      n.Handle,
	}
	if len(n.Images.Edges) > 0 {
		p.Image = n.Images.Edges[0].Node.URL
	}
	if len(n.Variants.Edges) > 0 {
		p.VariantID = n.Variants.Edges[0].Node.ID
		p.Available = n.Variants.Edges[0].Node.AvailableForSale
	}
	return p
}

func (c *Client) SearchProducts(ctx context.Context, query string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 5
	}
	var data productsData
	if err := c.do(ctx, searchProductsQuery, map[string]any{"first": limit, "query": query}, &data); err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(data.Products.Edges))
	for _, e := range data.Products.Edges {
		out = append(out, flatten(e.Node))
	}
	return out, nil
}

func (c *Client) FeaturedProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 6
	}
	var data productsData
	if err := c.do(ctx, featuredProductsQuery, map[string]any{"first": limit}, &data); err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(data.Products.Edges))
	for _, e := range data.Products.Edges {
		out = append(out, flatten(e.Node))
	}
	return out, nil
}

// CreateCheckout creates a single-line cart and returns its checkout URL with
// the online_store channel pinned, so the hosted checkout renders instead of
// the headless one.
func (c *Client) CreateCheckout(ctx context.Context, variantID string, quantity int) (string, error) {
	if quantity <= 0 {
		quantity = 1
	}
	var data cartCreateData
	vars := map[string]any{
		"input": map[string]any{
			"lines": []map[string]any{{"quantity": quantity, "merchandiseId": variantID}},
		},
	}
	if err := c.do(ctx, cartCreateMutation, vars, &data); err != nil {
		return "", err
	}
	if len(data.CartCreate.UserErrors) > 0 {
		return "", fmt.Errorf("cart create: %s", data.CartCreate.UserErrors[0].Message)
	}
	raw := data.CartCreate.Cart.CheckoutURL
	if raw == "" {
		return "", fmt.Errorf("cart create returned no checkout url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("channel", "online_store")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
