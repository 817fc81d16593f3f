package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduyvuong/ban-hang/internal/checkout"
	"github.com/leduyvuong/ban-hang/internal/currency"
	"github.com/leduyvuong/ban-hang/internal/domain"
	"github.com/leduyvuong/ban-hang/internal/storage/memory"
)

type testEnv struct {
	server   *httptest.Server
	products *memory.ProductRepository
	orders   *memory.OrderRepository
	outbox   *memory.OutboxRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	products := memory.NewProductRepository(
		domain.Product{ID: 1, ShopID: 1, Name: "Desk Lamp", Slug: "desk-lamp", Price: decimal.RequireFromString("49.99"), Stock: 3},
		domain.Product{ID: 2, ShopID: 1, Name: "Coffee Mug", Slug: "coffee-mug", Price: decimal.RequireFromString("9.50"), Stock: 10},
		domain.Product{ID: 3, ShopID: 2, Name: "Other Shop Poster", Slug: "poster", Price: decimal.RequireFromString("15.00"), Stock: 5},
	)
	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	rates := memory.NewRateProvider("USD", map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("1.10"),
	})

	converter := currency.NewConverter(rates)
	store := memory.NewCheckoutStore(products, orders, outbox)
	processor := checkout.NewProcessor(store, converter)

	handler := NewHandler(products, memory.NewCartStore(), orders, processor, nil)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)

	return &testEnv{server: server, products: products, orders: orders, outbox: outbox}
}

func (e *testEnv) do(t *testing.T, method, path, session string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if session != "" {
		req.Header.Set(HeaderSessionID, session)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func validCheckoutBody(currencyCode string) map[string]any {
	return map[string]any{
		"currency": currencyCode,
		"shipping": map[string]string{
			"name":        "Anna Smith",
			"address":     "12 Main St",
			"city":        "Hanoi",
			"postal_code": "100000",
			"phone":       "+84-000-111",
		},
	}
}

func TestSessionHeaderIsRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddItemAndGetCart(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{
		"product_id": 1,
		"quantity":   2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/cart", "s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[cartResponse](t, resp)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, "Desk Lamp", body.Lines[0].Name)
	assert.Equal(t, 2, body.Lines[0].Quantity)
	assert.Equal(t, "99.98", body.Subtotal)
}

func TestAddItemUnknownProductReturns404(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{
		"product_id": 404,
		"quantity":   1,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddItemBeyondStockReturns422WithMessage(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{
		"product_id": 1,
		"quantity":   5,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "Only 3 units of Desk Lamp available.", body["error"])

	// Корзина осталась неизменной.
	resp = env.do(t, http.MethodGet, "/cart", "s1", nil)
	cartBody := decodeJSON[cartResponse](t, resp)
	assert.Empty(t, cartBody.Lines)
}

func TestAddItemRejectsMalformedQuantity(t *testing.T) {
	env := newTestEnv(t)

	for _, quantity := range []any{"two", -1, 1.5} {
		resp := env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{
			"product_id": 1,
			"quantity":   quantity,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "quantity %v", quantity)
	}
}

func TestUpdateItemZeroRemovesLine(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 1, "quantity": 2})

	resp := env.do(t, http.MethodPatch, "/cart/items/1", "s1", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[cartResponse](t, resp)
	assert.Empty(t, body.Lines)
}

func TestRemoveItemAndClearCart(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 1, "quantity": 1})
	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 2, "quantity": 1})

	resp := env.do(t, http.MethodDelete, "/cart/items/1", "s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[cartResponse](t, resp)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, int64(2), body.Lines[0].ProductID)

	resp = env.do(t, http.MethodDelete, "/cart", "s1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/cart", "s1", nil)
	body = decodeJSON[cartResponse](t, resp)
	assert.Empty(t, body.Lines)
}

func TestMergeCartIsAdditive(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 2, "quantity": 2})

	resp := env.do(t, http.MethodPost, "/cart/merge", "s1", map[string]any{
		"entries": []map[string]any{{"product_id": 2, "quantity": 3}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[cartResponse](t, resp)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, 5, body.Lines[0].Quantity)
}

func TestCheckoutHappyPathCreatesOrderAndClearsCart(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 1, "quantity": 2})

	resp := env.do(t, http.MethodPost, "/checkout", "s1", validCheckoutBody("USD"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeJSON[orderResponse](t, resp)
	assert.NotEmpty(t, order.OrderNumber)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, "99.98", order.Total)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "49.99", order.Lines[0].UnitPrice)

	// Сток списан, корзина очищена.
	product, err := env.products.Find(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, product.Stock)

	resp = env.do(t, http.MethodGet, "/cart", "s1", nil)
	cartBody := decodeJSON[cartResponse](t, resp)
	assert.Empty(t, cartBody.Lines)
}

func TestCheckoutEmptyCartReturns422(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/checkout", "s1", validCheckoutBody("USD"))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "your cart is empty", body["error"])
}

func TestCheckoutMixedShopCartReturns422(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 1, "quantity": 1})
	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 3, "quantity": 1})

	resp := env.do(t, http.MethodPost, "/checkout", "s1", validCheckoutBody("USD"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCheckoutUnknownCurrencyReturns422(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 1, "quantity": 1})

	resp := env.do(t, http.MethodPost, "/checkout", "s1", validCheckoutBody("XYZ"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCheckoutRequiresShippingFields(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 1, "quantity": 1})

	resp := env.do(t, http.MethodPost, "/checkout", "s1", map[string]any{
		"currency": "USD",
		"shipping": map[string]string{"name": "Anna Smith"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrdersReadSide(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 2, "quantity": 1})
	resp := env.do(t, http.MethodPost, "/checkout", "s1", validCheckoutBody("USD"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON[orderResponse](t, resp)

	resp = env.do(t, http.MethodGet, "/orders/"+created.ID, "s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byID := decodeJSON[orderResponse](t, resp)
	assert.Equal(t, created.OrderNumber, byID.OrderNumber)

	resp = env.do(t, http.MethodGet, "/orders/"+created.OrderNumber, "s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/orders/", "s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decodeJSON[map[string][]orderResponse](t, resp)
	require.Len(t, listed["orders"], 1)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/orders/%s", "missing-id"), "s1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOrderScopedToSession(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 2, "quantity": 1})
	resp := env.do(t, http.MethodPost, "/checkout", "s1", validCheckoutBody("USD"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON[orderResponse](t, resp)

	// Чужая сессия не видит заказ ни по id, ни по номеру.
	resp = env.do(t, http.MethodGet, "/orders/"+created.ID, "s2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/orders/"+created.OrderNumber, "s2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Владелец — видит.
	resp = env.do(t, http.MethodGet, "/orders/"+created.ID, "s1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Без сессии заказ не отдаётся вовсе.
	resp = env.do(t, http.MethodGet, "/orders/"+created.ID, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListOrdersLimitIsClamped(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, maxOrdersLimit, clampOrdersLimit(10_000_000))
	assert.Equal(t, 5, clampOrdersLimit(5))

	resp := env.do(t, http.MethodGet, "/orders/?limit=10000000", "s1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/orders/?limit=0", "s1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/orders/?limit=abc", "s1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
