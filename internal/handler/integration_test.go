//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/mesaflow/api/internal/config"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/notify"
	"github.com/mesaflow/api/internal/router"
	"github.com/mesaflow/api/internal/ws"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestIntegrationFlow exercises the full API lifecycle against a real
// PostgreSQL database: registration, catalog and combo setup, checkout with
// combo expansion and stock reservation, order and item lifecycle, dine-in
// tabs with place confirmation, and payment with place auto-release.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runTestMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit; Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	r := router.New(cfg, queries, pool, notify.LogSink{}, hub)
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Register owner and customer through the API ---
	ownerToken := register(t, server, "owner@test.com", "Test Owner")
	custToken := register(t, server, "diner@test.com", "Test Diner")

	// --- 2. Owner creates a business ---
	businessResp := httpPostJSON(t, server, "/businesses", map[string]interface{}{
		"name":    "Mesa Cafe",
		"address": "1 Main St",
		"city":    "Springfield",
	}, ownerToken)
	businessID := uuid.MustParse(businessResp["id"].(string))

	// --- 3. Open around the clock so checkout's availability gate passes ---
	for day := 0; day < 7; day++ {
		httpPostJSON(t, server, fmt.Sprintf("/businesses/%s/hours", businessID), map[string]interface{}{
			"day":        day,
			"start_time": "00:00",
			"end_time":   "23:59",
		}, ownerToken)
	}

	// --- 4. Catalog: two simple products and a combo built from them ---
	burgerID := createTestProduct(t, server, businessID, ownerToken, "Burger", "8.50", 100, false)
	friesID := createTestProduct(t, server, businessID, ownerToken, "Fries", "3.00", 200, false)
	comboID := createTestProduct(t, server, businessID, ownerToken, "Burger Meal", "12.00", 0, true)

	addComboComponent(t, server, businessID, comboID, burgerID, 1, ownerToken)
	addComboComponent(t, server, businessID, comboID, friesID, 2, ownerToken)

	// --- 5. Customer checkout: one combo plus two standalone burgers ---
	orderResp := checkoutCart(t, server, custToken, []map[string]interface{}{
		{"product_id": comboID.String(), "quantity": 1},
		{"product_id": burgerID.String(), "quantity": 2},
	})
	orderID := uuid.MustParse(orderResp["id"].(string))

	// Combo header 12.00 + 2x burger 8.50 = 29.00; 16% tax = 4.64; pickup
	// ships free.
	if got := orderResp["items_price"].(string); got != "29.00" {
		t.Fatalf("items_price: got %s, want 29.00", got)
	}
	if got := orderResp["tax_price"].(string); got != "4.64" {
		t.Fatalf("tax_price: got %s, want 4.64", got)
	}
	if got := orderResp["total_price"].(string); got != "33.64" {
		t.Fatalf("total_price: got %s, want 33.64", got)
	}

	// Combo header + its two component lines + the standalone burger line.
	items := orderResp["items"].([]interface{})
	if len(items) != 4 {
		t.Fatalf("order items: got %d, want 4", len(items))
	}

	// --- 6. Stock was reserved per component, headers hold none ---
	if got := getTestProduct(t, server, businessID, burgerID)["stock"].(float64); got != 97 {
		t.Fatalf("burger stock after checkout: got %v, want 97", got)
	}
	if got := getTestProduct(t, server, businessID, friesID)["stock"].(float64); got != 198 {
		t.Fatalf("fries stock after checkout: got %v, want 198", got)
	}

	// --- 7. Kitchen queue shows the pending items ---
	queue := httpGetJSONList(t, server, fmt.Sprintf("/businesses/%s/kitchen/queue", businessID), ownerToken)
	if len(queue) == 0 {
		t.Fatal("kitchen queue is empty after checkout")
	}

	// --- 8. Order lifecycle: pending → processing → ready ---
	transitionOrder(t, server, orderID, "processing", ownerToken)
	transitionOrder(t, server, orderID, "ready", ownerToken)

	// --- 9. Purchaser settles by card ---
	payResp := httpPostJSON(t, server, fmt.Sprintf("/orders/%s/pay", orderID), map[string]interface{}{
		"method":   "card",
		"ref":      "ch_integration_1",
		"provider": "stripe",
	}, custToken)
	paidOrder := payResp["order"].(map[string]interface{})
	if paidOrder["payment_status"].(string) != "paid" {
		t.Fatalf("payment_status: got %s, want paid", paidOrder["payment_status"])
	}
	if payResp["place_released"].(bool) {
		t.Fatal("pickup order should not release a place")
	}

	// --- 10. Dine-in: create a place, open a tab, confirm the cascade ---
	placeResp := httpPostJSON(t, server, fmt.Sprintf("/businesses/%s/places", businessID), map[string]interface{}{
		"name": "Table 1",
	}, ownerToken)
	placeID := uuid.MustParse(placeResp["id"].(string))

	tabResp := httpPostJSON(t, server, "/tabs", map[string]interface{}{
		"place_id": placeID.String(),
	}, custToken)
	tabID := uuid.MustParse(tabResp["id"].(string))
	if tabResp["status"].(string) != "pending" {
		t.Fatalf("tab status on unconfirmed place: got %s, want pending", tabResp["status"])
	}

	confirmResp := httpPostJSON(t, server, fmt.Sprintf("/places/%s/confirm", placeID), nil, ownerToken)
	if got := confirmResp["moved_orders"].(float64); got != 1 {
		t.Fatalf("moved_orders: got %v, want 1 (tab should start processing)", got)
	}

	// --- 11. Add a burger to the tab; totals recompute ---
	tabAfterAdd := httpPostJSON(t, server, fmt.Sprintf("/orders/%s/items", tabID), map[string]interface{}{
		"product_id": burgerID.String(),
		"quantity":   1,
	}, custToken)
	if got := tabAfterAdd["total_price"].(string); got != "9.86" {
		t.Fatalf("tab total after add: got %s, want 9.86", got)
	}

	// --- 12. Cash settlement at the counter auto-releases the place ---
	tabPayResp := httpPostJSON(t, server, fmt.Sprintf("/orders/%s/pay", tabID), map[string]interface{}{
		"method":       "cash",
		"amount_given": "10.00",
	}, ownerToken)
	if !tabPayResp["place_released"].(bool) {
		t.Fatal("paying the only tab should release the place")
	}
	tabPaid := tabPayResp["order"].(map[string]interface{})
	if got := tabPaid["change_due"].(string); got != "0.14" {
		t.Fatalf("change_due: got %s, want 0.14", got)
	}

	places := httpGetJSONList(t, server, fmt.Sprintf("/businesses/%s/places", businessID), ownerToken)
	if len(places) != 1 || places[0]["status"].(string) != "available" {
		t.Fatalf("place after settlement: got %+v, want available", places)
	}

	t.Logf("Integration test passed: container=%s, business=%s, order=%s, tab=%s",
		pgContainer.GetContainerID(), businessID, orderID, tabID)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("mesaflow_test"),
		tcpostgres.WithUsername("mesaflow"),
		tcpostgres.WithPassword("mesaflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runTestMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Go test sets cwd to the package directory (internal/handler/).
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

// --- API call helpers ---

func register(t *testing.T, server *httptest.Server, email, name string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/register", map[string]interface{}{
		"user_name": name,
		"email":     email,
		"password":  "password123",
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("register failed: no access_token in response: %+v", resp)
	}
	return token
}

func createTestProduct(t *testing.T, server *httptest.Server, businessID uuid.UUID, token, title, price string, stock int, isCombo bool) uuid.UUID {
	t.Helper()
	resp := httpPostJSON(t, server, fmt.Sprintf("/businesses/%s/products", businessID), map[string]interface{}{
		"title":    title,
		"price":    price,
		"stock":    stock,
		"is_combo": isCombo,
	}, token)
	return uuid.MustParse(resp["id"].(string))
}

func addComboComponent(t *testing.T, server *httptest.Server, businessID, comboID, productID uuid.UUID, quantity int, token string) {
	t.Helper()
	httpPostJSON(t, server, fmt.Sprintf("/businesses/%s/products/%s/combo-items", businessID, comboID), map[string]interface{}{
		"product_id": productID.String(),
		"quantity":   quantity,
	}, token)
}

func getTestProduct(t *testing.T, server *httptest.Server, businessID, productID uuid.UUID) map[string]interface{} {
	t.Helper()
	return httpGetJSON(t, server, fmt.Sprintf("/businesses/%s/products/%s", businessID, productID), "")
}

// checkoutCart places a pickup/card cart and returns the single created
// order.
func checkoutCart(t *testing.T, server *httptest.Server, token string, items []map[string]interface{}) map[string]interface{} {
	t.Helper()
	orders := httpPostJSONList(t, server, "/orders", map[string]interface{}{
		"delivery_method": "pickup",
		"payment_method":  "card",
		"items":           items,
	}, token)
	if len(orders) != 1 {
		t.Fatalf("checkout: got %d orders, want 1", len(orders))
	}
	return orders[0]
}

func transitionOrder(t *testing.T, server *httptest.Server, orderID uuid.UUID, status, token string) {
	t.Helper()
	resp := httpPatchJSON(t, server, fmt.Sprintf("/orders/%s/status", orderID), map[string]interface{}{
		"status": status,
	}, token)
	if got := resp["status"].(string); got != status {
		t.Fatalf("order status after transition: got %s, want %s", got, status)
	}
}

// --- HTTP helpers ---

func doJSONRequest(t *testing.T, server *httptest.Server, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		resp.Body.Close()
		t.Fatalf("%s %s: status %d, body: %v", method, path, resp.StatusCode, errResp)
	}
	return resp
}

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body interface{}, token string) map[string]interface{} {
	t.Helper()
	resp := doJSONRequest(t, server, "POST", path, body, token)
	defer resp.Body.Close()
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpPostJSONList(t *testing.T, server *httptest.Server, path string, body interface{}, token string) []map[string]interface{} {
	t.Helper()
	resp := doJSONRequest(t, server, "POST", path, body, token)
	defer resp.Body.Close()
	var result []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpPatchJSON(t *testing.T, server *httptest.Server, path string, body interface{}, token string) map[string]interface{} {
	t.Helper()
	resp := doJSONRequest(t, server, "PATCH", path, body, token)
	defer resp.Body.Close()
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path, token string) map[string]interface{} {
	t.Helper()
	resp := doJSONRequest(t, server, "GET", path, nil, token)
	defer resp.Body.Close()
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetJSONList(t *testing.T, server *httptest.Server, path, token string) []map[string]interface{} {
	t.Helper()
	resp := doJSONRequest(t, server, "GET", path, nil, token)
	defer resp.Body.Close()
	var result []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
