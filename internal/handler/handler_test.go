package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/inventory"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
	"github.com/xenking/kart-fulfillment/internal/domain/user"
	"github.com/xenking/kart-fulfillment/internal/storage/memory"
	"github.com/xenking/kart-fulfillment/pkg/keylock"
)

// --- Helpers ---

type testAPI struct {
	t      *testing.T
	srv    *httptest.Server
	store  *memory.Store
	userID string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	ledger := inventory.NewLedger(store.Items())
	locks := keylock.New()
	lifecycle := order.NewLifecycle(store.Orders(), ledger)
	builder := order.NewBuilder(store.Carts(), store.Items(), ledger, store.Orders(), locks)
	tracker := payment.NewTracker(store.Intents(), lifecycle, nil)
	users := user.NewService(store.Users())

	h := NewHandler(Services{
		Catalog:  catalog.NewService(store.Items(), ledger),
		Users:    users,
		Carts:    cart.NewAccumulator(store.Carts(), ledger, store.Items(), locks),
		Orders:   order.NewService(builder, lifecycle, store.Orders(), tracker, nil),
		Payments: tracker,
		Receiver: payment.NewReceiver(tracker, nil),
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	for _, it := range []catalog.Item{
		{ID: "laptop", Name: "Gaming Laptop", Price: decimal.NewFromInt(50000), Stock: 10},
		{ID: "mouse", Name: "Wireless Mouse", Price: decimal.NewFromInt(1000), Stock: 50},
	} {
		require.NoError(t, store.Items().Create(ctx, &it))
	}
	u, err := users.Create(ctx, user.User{Username: "john_doe", Email: "john@example.com"})
	require.NoError(t, err)

	return &testAPI{t: t, srv: srv, store: store, userID: u.ID}
}

func (a *testAPI) do(method, path, body string) (int, map[string]any) {
	a.t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	require.NoError(a.t, err)
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (a *testAPI) doList(path string) (int, []any) {
	a.t.Helper()
	resp, err := a.srv.Client().Get(a.srv.URL + path)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	var out []any
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (a *testAPI) stock(id string) int {
	a.t.Helper()
	it, err := a.store.Items().Get(context.Background(), id)
	require.NoError(a.t, err)
	return it.Stock
}

// --- Tests ---

func TestCheckoutFlow(t *testing.T) {
	a := newTestAPI(t)

	status, line := a.do(http.MethodPost, "/api/cart/add", `{"userId":"`+a.userID+`","itemId":"laptop","quantity":2}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(2), line["quantity"])

	status, _ = a.do(http.MethodPost, "/api/cart/add", `{"userId":"`+a.userID+`","itemId":"mouse","quantity":5}`)
	require.Equal(t, http.StatusCreated, status)

	status, c := a.do(http.MethodGet, "/api/cart/"+a.userID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(105000), c["total"])
	assert.Len(t, c["lines"], 2)

	status, o := a.do(http.MethodPost, "/api/orders", `{"userId":"`+a.userID+`"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "CREATED", o["status"])
	assert.Equal(t, float64(105000), o["total"])
	orderID := o["id"].(string)
	assert.Equal(t, 8, a.stock("laptop"))

	status, c = a.do(http.MethodGet, "/api/cart/"+a.userID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, c["lines"])

	status, in := a.do(http.MethodPost, "/api/payments/create", `{"orderId":"`+orderID+`"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "PENDING", in["status"])
	assert.Equal(t, float64(105000), in["amount"])
	externalID := in["externalId"].(string)

	status, _ = a.do(http.MethodPost, "/api/webhooks/payment",
		`{"event":"payment.captured","orderId":"`+externalID+`","paymentId":"pay_ext_1"}`)
	require.Equal(t, http.StatusOK, status)

	status, o = a.do(http.MethodGet, "/api/orders/"+orderID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PAID", o["status"])
	pay := o["payment"].(map[string]any)
	assert.Equal(t, "SUCCESS", pay["status"])
	assert.Equal(t, "pay_ext_1", pay["settlementLabel"])

	status, _ = a.do(http.MethodPost, "/api/orders/"+orderID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, status)

	status, orders := a.doList("/api/orders/user/" + a.userID)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, orders, 1)
}

func TestCancelRestoresStock(t *testing.T) {
	a := newTestAPI(t)

	a.do(http.MethodPost, "/api/cart/add", `{"userId":"`+a.userID+`","itemId":"laptop","quantity":3}`)
	_, o := a.do(http.MethodPost, "/api/orders", `{"userId":"`+a.userID+`"}`)
	orderID := o["id"].(string)
	require.Equal(t, 7, a.stock("laptop"))

	status, o := a.do(http.MethodPost, "/api/orders/"+orderID+"/cancel", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "CANCELLED", o["status"])
	assert.Equal(t, 10, a.stock("laptop"))

	status, body := a.do(http.MethodPost, "/api/orders/"+orderID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_ORDER_STATE", body["code"])
	assert.Equal(t, 10, a.stock("laptop"))
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown item", http.MethodPost, "/api/cart/add", `{"userId":"u","itemId":"nope","quantity":1}`, http.StatusNotFound, "ITEM_NOT_FOUND"},
		{"zero quantity", http.MethodPost, "/api/cart/add", `{"userId":"u","itemId":"laptop","quantity":0}`, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"over stock", http.MethodPost, "/api/cart/add", `{"userId":"u","itemId":"laptop","quantity":11}`, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"malformed body", http.MethodPost, "/api/cart/add", `{"userId":`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing fields", http.MethodPost, "/api/cart/add", `{}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"empty cart", http.MethodPost, "/api/orders", `{"userId":"nobody"}`, http.StatusBadRequest, "EMPTY_CART"},
		{"unknown order", http.MethodGet, "/api/orders/missing", "", http.StatusNotFound, "ORDER_NOT_FOUND"},
		{"unknown intent", http.MethodGet, "/api/payments/missing", "", http.StatusNotFound, "INTENT_NOT_FOUND"},
		{"no intent for order", http.MethodGet, "/api/payments/order/missing", "", http.StatusNotFound, "INTENT_NOT_FOUND"},
		{"webhook without event", http.MethodPost, "/api/webhooks/payment", `{"orderId":"intent_x"}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"webhook unknown intent", http.MethodPost, "/api/webhooks/payment", `{"event":"payment.failed","orderId":"intent_x"}`, http.StatusNotFound, "INTENT_NOT_FOUND"},
		{"duplicate user", http.MethodPost, "/api/users", `{"username":"JOHN_DOE","email":"x@example.com"}`, http.StatusConflict, "DUPLICATE_USER"},
		{"sub-cent item price", http.MethodPost, "/api/items", `{"name":"Sticker","price":0.005,"stock":3}`, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"sub-cent payment amount", http.MethodPost, "/api/payments/create", `{"orderId":"missing","amount":0.015}`, http.StatusBadRequest, "INVALID_AMOUNT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := a.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestWebhook_UnknownEventAcknowledged(t *testing.T) {
	a := newTestAPI(t)
	status, body := a.do(http.MethodPost, "/api/webhooks/payment", `{"event":"charge.refunded","orderId":"intent_x"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Webhook processed successfully", body["message"])
}

func TestPayment_AmountMismatch(t *testing.T) {
	a := newTestAPI(t)
	a.do(http.MethodPost, "/api/cart/add", `{"userId":"`+a.userID+`","itemId":"mouse","quantity":1}`)
	_, o := a.do(http.MethodPost, "/api/orders", `{"userId":"`+a.userID+`"}`)
	orderID := o["id"].(string)

	status, body := a.do(http.MethodPost, "/api/payments/create", `{"orderId":"`+orderID+`","amount":999.99}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_AMOUNT", body["code"])

	status, _ = a.do(http.MethodPost, "/api/payments/create", `{"orderId":"`+orderID+`","amount":1000}`)
	require.Equal(t, http.StatusCreated, status)

	status, body = a.do(http.MethodPost, "/api/payments/create", `{"orderId":"`+orderID+`"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INTENT_ALREADY_EXISTS", body["code"])

	status, in := a.do(http.MethodGet, "/api/payments/order/"+orderID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PENDING", in["status"])
}

func TestItemsCRUD(t *testing.T) {
	a := newTestAPI(t)

	status, it := a.do(http.MethodPost, "/api/items", `{"name":"Mechanical Keyboard","description":"RGB","price":3000,"stock":30}`)
	require.Equal(t, http.StatusCreated, status)
	id := it["id"].(string)
	assert.NotEmpty(t, id)

	status, it = a.do(http.MethodPut, "/api/items/"+id, `{"price":2750.5}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2750.5, it["price"])
	assert.Equal(t, "Mechanical Keyboard", it["name"])
	assert.Equal(t, float64(30), it["stock"])

	status, it = a.do(http.MethodPost, "/api/items/"+id+"/restock", `{"quantity":5}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(35), it["stock"])

	status, found := a.doList("/api/items/search?q=KEYBOARD")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, found, 1)

	status, all := a.doList("/api/items")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, all, 3)

	status, _ = a.do(http.MethodDelete, "/api/items/"+id, "")
	require.Equal(t, http.StatusOK, status)
	status, _ = a.do(http.MethodGet, "/api/items/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body := a.do(http.MethodPost, "/api/items", `{"name":"","price":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])
}

func TestUsersCRUD(t *testing.T) {
	a := newTestAPI(t)

	status, u := a.do(http.MethodPost, "/api/users", `{"username":"jane_smith","email":"jane@example.com"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "customer", u["role"])
	id := u["id"].(string)

	status, list := a.doList("/api/users")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 2)

	status, _ = a.do(http.MethodDelete, "/api/users/"+id, "")
	require.Equal(t, http.StatusOK, status)
	status, body := a.do(http.MethodGet, "/api/users/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "USER_NOT_FOUND", body["code"])

	status, body = a.do(http.MethodPost, "/api/users", `{"username":"bob","email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])
}

func TestCartLineRemoval(t *testing.T) {
	a := newTestAPI(t)
	_, line := a.do(http.MethodPost, "/api/cart/add", `{"userId":"`+a.userID+`","itemId":"mouse","quantity":1}`)

	status, body := a.do(http.MethodDelete, "/api/cart/item/"+line["id"].(string), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Item removed from cart", body["message"])

	_, c := a.do(http.MethodGet, "/api/cart/"+a.userID, "")
	assert.Empty(t, c["lines"])

	status, _ = a.do(http.MethodDelete, "/api/cart/"+a.userID+"/clear", "")
	assert.Equal(t, http.StatusOK, status)
}
