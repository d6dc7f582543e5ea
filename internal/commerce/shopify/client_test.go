package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func storefrontStub(t *testing.T, handle func(query string, vars map[string]any) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Shopify-Storefront-Access-Token"); got != "tok" {
			t.Errorf("token header = %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/api/2025-07/graphql.json") {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(handle(req.Query, req.Variables)))
	}))
}

const productJSON = `{"data":{"products":{"edges":[{"node":{
	"id":"gid://shopify/Product/1","title":"Blue Mug",
	"description":"A very long description that goes on and on about the mug, its glaze, its provenance, the kiln it was fired in and the artisan who made it, well past the cap",
	"handle":"blue-mug",
	"priceRange":{"minVariantPrice":{"amount":"12.50","currencyCode":"USD"}},
	"images":{"edges":[{"node":{"url":"https://cdn/img.png"}}]},
	"variants":{"edges":[{"node":{"id":"gid://shopify/ProductVariant/9","availableForSale":true}}]}
}}]}}}`

func TestSearchProducts(t *testing.T) {
	var gotVars map[string]any
	srv := storefrontStub(t, func(query string, vars map[string]any) string {
		if !strings.Contains(query, "SearchProducts") {
			t.Errorf("wrong query: %s", query)
		}
		gotVars = vars
		return productJSON
	})
	defer srv.Close()

	c := &Client{Token: "tok", APIVersion: "2025-07", HTTP: srv.Client(), BaseURL: srv.URL}
	out, err := c.SearchProducts(context.Background(), "mug", 0)
	if err != nil {
		t.Fatal(err)
	}
	if gotVars["query"] != "mug" || gotVars["first"] != float64(5) {
		t.Fatalf("vars %v", gotVars)
	}
	if len(out) != 1 {
		t.Fatalf("got %d products", len(out))
	}
	p := out[0]
	if p.Title != "Blue Mug" || p.Price != "USD 12.50" || p.VariantID != "gid://shopify/ProductVariant/9" || !p.Available {
		t.Fatalf("product %+v", p)
	}
	if len(p.Description) != 150 {
		t.Fatalf("description not truncated: %d", len(p.Description))
	}
}

func TestFeaturedProductsDefaultLimit(t *testing.T) {
	srv := storefrontStub(t, func(query string, vars map[string]any) string {
		if vars["first"] != float64(6) {
			t.Errorf("first = %v", vars["first"])
		}
		return `{"data":{"products":{"edges":[]}}}`
	})
	defer srv.Close()

	c := &Client{Token: "tok", HTTP: srv.Client(), BaseURL: srv.URL}
	out, err := c.FeaturedProducts(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("got %v", out)
	}
}

func TestCreateCheckoutPinsChannel(t *testing.T) {
	srv := storefrontStub(t, func(query string, vars map[string]any) string {
		if !strings.Contains(query, "cartCreate") {
			t.Errorf("wrong query: %s", query)
		}
		return `{"data":{"cartCreate":{"cart":{"id":"c1","checkoutUrl":"https://shop.example/cart/c/abc?key=xyz"},"userErrors":[]}}}`
	})
	defer srv.Close()

	c := &Client{Token: "tok", HTTP: srv.Client(), BaseURL: srv.URL}
	got, err := c.CreateCheckout(context.Background(), "gid://shopify/ProductVariant/9", 0)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("channel") != "online_store" || u.Query().Get("key") != "xyz" {
		t.Fatalf("checkout url %q", got)
	}
}

func TestCreateCheckoutUserError(t *testing.T) {
	srv := storefrontStub(t, func(string, map[string]any) string {
		return `{"data":{"cartCreate":{"cart":null,"userErrors":[{"field":["lines"],"message":"variant not found"}]}}}`
	})
	defer srv.Close()

	c := &Client{Token: "tok", HTTP: srv.Client(), BaseURL: srv.URL}
	if _, err := c.CreateCheckout(context.Background(), "bad", 1); err == nil || !strings.Contains(err.Error(), "variant not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestGraphQLErrorSurface(t *testing.T) {
	srv := storefrontStub(t, func(string, map[string]any) string {
		return `{"errors":[{"message":"throttled"}]}`
	})
	defer srv.Close()

	c := &Client{Token: "tok", HTTP: srv.Client(), BaseURL: srv.URL}
	if _, err := c.SearchProducts(context.Background(), "x", 1); err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("err = %v", err)
	}
}
