package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/app"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Port: "0", Env: config.EnvDevelopment, LogLevel: "debug"},
		Payment: config.PaymentConfig{
			TestMode:        true,
			DefaultCurrency: "usd",
			ShippingCost:    decimal.NewFromInt(10),
		},
		Email:   config.EmailConfig{From: "Shop <shop@example.com>", AdminEmail: "owner@example.com"},
		Storage: config.StorageConfig{Type: config.StorageInternal},
		Auth: config.AuthConfig{
			JWTSecret:      "test-secret",
			TokenTTL:       time.Hour,
			InternalAPIKey: "internal-secret",
			Bootstrap:      config.BootstrapAdmin{Email: "owner@example.com", Password: "correct-horse", Name: "Owner"},
		},
		Timeouts: config.TimeoutConfig{Effect: 2 * time.Second, Provider: 2 * time.Second, HTTPClient: 2 * time.Second},
	}
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]any
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestApp_CheckoutToAdminPanel(t *testing.T) {
	a, err := app.New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	// 1. витрина создает платеж
	createReq := httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", bytes.NewBufferString(
		`{"amount":11000,"shipping":{"firstName":"Jane","lastName":"Doe","email":"jane@example.com","address":"1 Main St","city":"Springfield","state":"IL","zipCode":"62701","country":"US"},"items":[{"name":"Widget","price":"$50.00","quantity":2}]}`,
	))
	rr, created := do(t, a.Router, createReq)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, created["testMode"])
	intentID, _ := created["paymentIntentId"].(string)
	require.NotEmpty(t, intentID)

	// 2. симулированный вебхук об успешной оплате
	intent := map[string]any{
		"id":            intentID,
		"amount":        11000,
		"currency":      "usd",
		"created":       time.Now().Unix(),
		"receipt_email": "jane@example.com",
		"metadata": map[string]string{
			"shipping":  `{"firstName":"Jane","lastName":"Doe","email":"jane@example.com","address":"1 Main St","city":"Springfield","state":"IL","zipCode":"62701","country":"US"}`,
			"items":     `[{"name":"Widget","price":"$50.00","quantity":2}]`,
			"test_mode": "true",
		},
	}
	event, err := json.Marshal(map[string]any{
		"id":   "evt_test_1",
		"type": "payment_intent.succeeded",
		"data": map[string]any{"object": intent},
	})
	require.NoError(t, err)

	webhookReq := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(event))
	webhookReq.Header.Set("X-Test-Mode", "true")
	rr, ack := do(t, a.Router, webhookReq)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, ack["received"])

	// 3. админ входит и видит заказ
	loginReq := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"email":"owner@example.com","password":"correct-horse"}`))
	rr, _ = do(t, a.Router, loginReq)
	require.Equal(t, http.StatusOK, rr.Code)

	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == admin.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)

	listReq := httptest.NewRequest(http.MethodGet, "/api/admin/orders?testMode=true&includeMetrics=true", nil)
	listReq.AddCookie(session)
	rr, page := do(t, a.Router, listReq)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, page["total"])

	orders, ok := page["orders"].([]any)
	require.True(t, ok)
	require.Len(t, orders, 1)
	first := orders[0].(map[string]any)
	assert.Equal(t, intentID, first["orderId"])
	assert.Equal(t, "jane@example.com", first["customerEmail"])
	assert.Equal(t, "ordered", first["orderStatus"])

	// 4. повторная доставка того же события не плодит заказы
	replay := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(event))
	replay.Header.Set("X-Test-Mode", "true")
	rr, _ = do(t, a.Router, replay)
	require.Equal(t, http.StatusOK, rr.Code)

	statusReq := httptest.NewRequest(http.MethodPatch, "/api/admin/orders/"+intentID+"/status",
		bytes.NewBufferString(`{"status":"couriered"}`))
	statusReq.AddCookie(session)
	rr, updated := do(t, a.Router, statusReq)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "couriered", updated["orderStatus"])

	listReq = httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	listReq.AddCookie(session)
	_, page = do(t, a.Router, listReq)
	assert.EqualValues(t, 1, page["total"])
}

func TestApp_HealthAndUnauthenticatedAdmin(t *testing.T) {
	a, err := app.New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	rr, _ := do(t, a.Router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = do(t, a.Router, httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
