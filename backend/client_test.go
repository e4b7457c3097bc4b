package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/api/v1/")
}

func TestIssueEphemeralCredential(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/openai/ephemeral-key", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "old", req["session_id"])

		_, _ = w.Write([]byte(`{"session_id":"new","ephemeral_key":"ek_1"}`))
	})

	cred, err := c.IssueEphemeralCredential(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, Credential{SessionID: "new", Key: "ek_1"}, cred)
}

func TestIssueEphemeralCredentialOmitsEmptySession(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotContains(t, req, "session_id")
		_, _ = w.Write([]byte(`{"session_id":"s1","ephemeral_key":""}`))
	})

	_, err := c.IssueEphemeralCredential(context.Background(), "")
	require.ErrorContains(t, err, "empty ephemeral key")
}

func TestInvokeFunction(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/openai/function-call", r.URL.Path)

		var req struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "add_to_cart", req.Name)
		require.Equal(t, "s1", req.Arguments["session_id"])

		_, _ = w.Write([]byte(`{"success":true,"items":[]}`))
	})

	res, err := c.InvokeFunction(context.Background(), "add_to_cart", map[string]any{"session_id": "s1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"items":[]}`, string(res))
}

func TestInvokeFunctionStatusError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.InvokeFunction(context.Background(), "get_cart", nil)
	var be *Error
	require.True(t, errors.As(err, &be))
	require.Equal(t, http.StatusBadGateway, be.StatusCode)
	require.Contains(t, be.Error(), "boom")
}

func TestProductsAndCart(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/products":
			_, _ = w.Write([]byte(`{"products":[{"id":"1","name":"Classic","price":14.89,"category":"burger"}]}`))
		case "/api/v1/cart/s 1":
			_, _ = w.Write([]byte(`{"items":[{"product":{"id":"1","name":"Classic","price":14.89},"quantity":2}],"total":29.78,"customer":{"name":"Ana"}}`))
		default:
			http.NotFound(w, r)
		}
	})

	products, err := c.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "burger", products[0].Category)

	cart, err := c.Cart(context.Background(), "s 1")
	require.NoError(t, err)
	require.Equal(t, 2, cart.Items[0].Quantity)
	require.Equal(t, "Ana", cart.Customer.Name)
}
