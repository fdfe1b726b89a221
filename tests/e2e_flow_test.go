package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/groeimetai/billing/internal/config"
	"github.com/groeimetai/billing/internal/server"
	"github.com/groeimetai/billing/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

func TestInvoicePaymentReconciliationFlow(t *testing.T) {
	// 1. Setup Infrastructure
	db, cleanupDB := SetupTestDB(t)
	defer cleanupDB()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	mockAuth := NewMockAuthClient()
	mockMollie := service.NewMockMollieClient()

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret-key-123"
	cfg.JWT.AccessTokenExpiry = time.Hour

	// 2. Initialize App
	app := server.NewApp(server.AppDependencies{
		Config:          cfg,
		MongoDB:         db,
		RedisClient:     redisClient,
		AuthClient:      mockAuth,
		PaymentProvider: mockMollie,
	})

	request := func(method, path, token string, body interface{}) *http.Response {
		var bodyReader io.Reader
		if body != nil {
			jsonBytes, _ := json.Marshal(body)
			bodyReader = bytes.NewReader(jsonBytes)
		}
		req, _ := http.NewRequest(method, path, bodyReader)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	decode := func(resp *http.Response) map[string]interface{} {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	// ==========================================
	// STEP 1: Seed operators & log in
	// ==========================================
	// First login registers a client account, so operator roles are seeded
	// directly, the way provisioning would.
	_, err = db.Collection("users").InsertOne(context.Background(), map[string]interface{}{
		"_id":          primitive.NewObjectID(),
		"email":        "admin@groeimetai.io",
		"firebase_uid": "uid_admin",
		"role":         "admin",
		"name":         "Admin",
		"created_at":   time.Now().UTC(),
		"updated_at":   time.Now().UTC(),
	})
	require.NoError(t, err)
	mockAuth.AddMockUser("token_admin", "uid_admin", "admin@groeimetai.io")

	resp := request("POST", "/api/auth/login", "", map[string]string{"firebase_token": "token_admin"})
	require.Equal(t, 200, resp.StatusCode)
	adminToken := decode(resp)["data"].(map[string]interface{})["token"].(string)
	require.NotEmpty(t, adminToken)

	fmt.Println("✓ Admin Logged In")

	// ==========================================
	// STEP 2: Create an invoice
	// ==========================================
	resp = request("POST", "/api/invoices", adminToken, map[string]interface{}{
		"client_id": "client_acme",
		"status":    "sent",
		"items": []map[string]interface{}{
			{"description": "AI strategy consult", "quantity": 10, "unit_price": 10000, "tax": 21000},
		},
	})
	require.Equal(t, 201, resp.StatusCode)

	invoiceData := decode(resp)["data"].(map[string]interface{})
	invoiceID := invoiceData["id"].(string)
	require.NotEmpty(t, invoiceID)
	assert.True(t, strings.HasPrefix(invoiceData["invoice_number"].(string), "INV-"))
	financial := invoiceData["financial"].(map[string]interface{})
	assert.EqualValues(t, 121000, financial["total"])
	assert.EqualValues(t, 121000, financial["balance"])

	fmt.Println("✓ Invoice Created:", invoiceData["invoice_number"])

	// ==========================================
	// STEP 3: Customer opens the public pay page
	// ==========================================
	resp = request("GET", "/api/invoices/"+invoiceID+"/pay", "", nil)
	require.Equal(t, 200, resp.StatusCode)
	payPage := decode(resp)["data"].(map[string]interface{})
	assert.Equal(t, true, payPage["payable"])
	assert.NotContains(t, payPage, "client_id")

	// ==========================================
	// STEP 4: Customer starts a checkout
	// ==========================================
	resp = request("POST", "/api/invoices/"+invoiceID+"/pay", "", nil)
	require.Equal(t, 201, resp.StatusCode)
	checkoutData := decode(resp)["data"].(map[string]interface{})
	checkoutURL := checkoutData["checkout_url"].(string)
	require.NotEmpty(t, checkoutURL)
	molliePaymentID := checkoutURL[strings.LastIndex(checkoutURL, "/")+1:]

	// Double-submitting does not create a second remote payment.
	resp = request("POST", "/api/invoices/"+invoiceID+"/pay", "", nil)
	require.Equal(t, 200, resp.StatusCode)
	reused := decode(resp)["data"].(map[string]interface{})
	assert.Equal(t, checkoutURL, reused["checkout_url"])

	fmt.Println("✓ Checkout Created:", molliePaymentID)

	// ==========================================
	// STEP 5: Payment settles, Mollie notifies us (twice, concurrently)
	// ==========================================
	mockMollie.SetStatus(molliePaymentID, "paid", "ideal")

	g := new(errgroup.Group)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			resp := request("POST", "/api/webhooks/mollie", "", map[string]string{"id": molliePaymentID})
			if resp.StatusCode != 200 {
				return fmt.Errorf("webhook returned %d", resp.StatusCode)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	resp = request("GET", "/api/invoices/"+invoiceID, adminToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	invoiceData = decode(resp)["data"].(map[string]interface{})
	assert.Equal(t, "paid", invoiceData["status"])
	financial = invoiceData["financial"].(map[string]interface{})
	assert.EqualValues(t, 121000, financial["paid"])
	assert.EqualValues(t, 0, financial["balance"])
	assert.EqualValues(t, 2, invoiceData["revision"], "duplicate delivery must not apply the payment twice")
	paymentDetails := invoiceData["payment_details"].(map[string]interface{})
	assert.Equal(t, "ideal", paymentDetails["method"])
	assert.Equal(t, molliePaymentID, paymentDetails["transaction_id"])

	fmt.Println("✓ Invoice Paid via Webhook (idempotent)")

	// Paying again is refused in Dutch.
	resp = request("POST", "/api/invoices/"+invoiceID+"/pay", "", nil)
	require.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "Deze factuur is al betaald", decode(resp)["error"])

	// ==========================================
	// STEP 6: Batch sync over the remaining open invoices
	// ==========================================
	// One open invoice with a checkout that settled while webhooks were
	// down, and one that was never paid.
	resp = request("POST", "/api/invoices", adminToken, map[string]interface{}{
		"client_id": "client_beta",
		"status":    "sent",
		"items":     []map[string]interface{}{{"description": "Workshop", "quantity": 1, "unit_price": 50000}},
	})
	require.Equal(t, 201, resp.StatusCode)
	missedID := decode(resp)["data"].(map[string]interface{})["id"].(string)

	resp = request("POST", "/api/invoices/"+missedID+"/pay", "", nil)
	require.Equal(t, 201, resp.StatusCode)
	missedURL := decode(resp)["data"].(map[string]interface{})["checkout_url"].(string)
	mockMollie.SetStatus(missedURL[strings.LastIndex(missedURL, "/")+1:], "paid", "bancontact")

	resp = request("POST", "/api/invoices", adminToken, map[string]interface{}{
		"client_id": "client_gamma",
		"status":    "sent",
		"items":     []map[string]interface{}{{"description": "Retainer", "quantity": 1, "unit_price": 200000}},
	})
	require.Equal(t, 201, resp.StatusCode)

	resp = request("POST", "/api/invoices/sync-all-payments", adminToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	summary := decode(resp)["data"].(map[string]interface{})
	assert.EqualValues(t, 2, summary["total"])
	assert.EqualValues(t, 1, summary["synced"])
	assert.EqualValues(t, 1, summary["updated"])
	assert.EqualValues(t, 1, summary["no_payment"])
	assert.EqualValues(t, 0, summary["errors"])

	resp = request("GET", "/api/invoices/"+missedID, adminToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "paid", decode(resp)["data"].(map[string]interface{})["status"])

	fmt.Println("✓ Batch Sync Corrected Missed Webhook")

	// ==========================================
	// STEP 7: Last run is persisted and queryable
	// ==========================================
	resp = request("GET", "/api/invoices/sync-all-payments", adminToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	lastRun := decode(resp)["data"].(map[string]interface{})
	assert.Equal(t, "admin@groeimetai.io", lastRun["synced_by"])
	runSummary := lastRun["summary"].(map[string]interface{})
	assert.EqualValues(t, 2, runSummary["total"])

	fmt.Println("✓ Sync Run Recorded")

	// ==========================================
	// STEP 8: Role enforcement
	// ==========================================
	mockAuth.AddMockUser("token_client", "uid_client", "klant@example.com")
	resp = request("POST", "/api/auth/login", "", map[string]string{"firebase_token": "token_client"})
	require.Equal(t, 200, resp.StatusCode)
	clientLogin := decode(resp)["data"].(map[string]interface{})
	assert.Equal(t, true, clientLogin["is_new_user"])
	clientToken := clientLogin["token"].(string)

	resp = request("POST", "/api/invoices/sync-all-payments", clientToken, nil)
	assert.Equal(t, 403, resp.StatusCode)

	resp = request("GET", "/api/invoices/"+invoiceID, "", nil)
	assert.Equal(t, 401, resp.StatusCode)

	fmt.Println("✓ Role Enforcement Verified")
}
