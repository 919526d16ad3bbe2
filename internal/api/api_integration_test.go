// internal/api/api_integration_test.go
package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "chatpay-wallet/internal"
)

// testApp is the global application instance for testing.
var testApp *app.Application

// testServer is the httptest server.
var testServer *httptest.Server

// TestMain is the special entry point for Go tests, executed once before all tests.
func TestMain(m *testing.M) {
	// 1. Run against an in-memory SQLite database and local collaborators.
	setupEnvVars()

	// 2. Initialize the application.
	testApp = app.NewApplication()
	if err := testApp.Initialize(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize test application: %v\n", err)
		os.Exit(1)
	}

	// 3. Start an httptest server to test the HTTP handling layer.
	testServer = httptest.NewServer(testApp.HTTPHandler)

	// 4. Run all tests.
	code := m.Run()

	// 5. Shut down application resources after tests.
	testServer.Close()
	if err := testApp.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shutdown test application: %v\n", err)
		os.Exit(1)
	}

	os.Exit(code)
}

func setupEnvVars() {
	env := map[string]string{
		"LOG_LEVEL":       "error",
		"DB_DRIVER":       "sqlite3",
		"DB_SQLITE_PATH":  ":memory:",
		"DB_AUTO_MIGRATE": "true",
		"LOCK_BACKEND":    "memory",
		"GATEWAY_MODE":    "simulated",
		"ASSISTANT_MODE":  "static",
		"POLICY_FILE":     "",
	}
	for k, v := range env {
		os.Setenv(k, v)
	}
}

// clearDatabase empties every table so that each test starts clean.
func clearDatabase(t *testing.T) {
	// Children first.
	tables := []string{"messages", "conversation_states", "beneficiaries", "transactions", "accounts"}
	for _, table := range tables {
		_, err := testApp.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
		require.NoError(t, err, "Failed to clear table %s", table)
	}
}

// makeRequest helper function: sends an HTTP request to the test server.
func makeRequest(t *testing.T, method, path string, body io.Reader, headers ...string) (*http.Response, string) {
	req, err := http.NewRequest(method, testServer.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(respBody)
}

func decodeMap(t *testing.T, body string) map[string]interface{} {
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &m), body)
	return m
}

func decimalField(t *testing.T, m map[string]interface{}, key string) decimal.Decimal {
	raw, ok := m[key].(string)
	require.True(t, ok, "field %s is not a decimal string: %v", key, m[key])
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return d
}

// chat sends a message through the webhook and returns the reply text.
func chat(t *testing.T, from, text string) string {
	payload, err := json.Marshal(map[string]string{"from": from, "name": "Lindiwe", "text": text})
	require.NoError(t, err)
	resp, body := makeRequest(t, "POST", "/webhook", strings.NewReader(string(payload)))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return decodeMap(t, body)["text"].(string)
}

// fundedAccount creates, activates and funds an account through the API.
func fundedAccount(t *testing.T, handle string, amount string) {
	chat(t, handle, "hi")

	resp, body := makeRequest(t, "POST", "/accounts/"+handle+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = makeRequest(t, "POST", "/accounts/"+handle+"/deposits", strings.NewReader(fmt.Sprintf(`{"amount": "%s"}`, amount)))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
}

func balanceOf(t *testing.T, handle string) decimal.Decimal {
	resp, body := makeRequest(t, "GET", "/accounts/"+handle+"/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return decimalField(t, decodeMap(t, body), "balance")
}

func TestHealth(t *testing.T) {
	resp, body := makeRequest(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestWebhookVerify(t *testing.T) {
	resp, body := makeRequest(t, "GET", "/webhook?challenge=abc123", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc123", body)

	resp, _ = makeRequest(t, "GET", "/webhook", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookConversationIntegration(t *testing.T) {
	clearDatabase(t)
	const handle = "0821110000"

	t.Run("FirstContact", func(t *testing.T) {
		text := chat(t, handle, "hi")
		assert.True(t, strings.HasPrefix(text, "Hey Lindiwe!"), text)

		resp, body := makeRequest(t, "GET", "/accounts/"+handle+"/balance", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "pending_verification", decodeMap(t, body)["status"])
	})

	t.Run("PurchaseAfterActivation", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/accounts/"+handle+"/activate", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, "active", decodeMap(t, body)["status"])

		resp, body = makeRequest(t, "POST", "/accounts/"+handle+"/deposits", strings.NewReader(`{"amount": "500"}`))
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		chat(t, handle, "set pin")
		assert.Contains(t, chat(t, handle, "2580"), "PIN set successfully")

		quote := chat(t, handle, "buy R100 airtime for 0821234567")
		assert.Contains(t, quote, "• Total: R101.00")

		done := chat(t, handle, "2580")
		assert.Contains(t, done, "New balance: R399.00")
		assert.True(t, decimal.NewFromInt(399).Equal(balanceOf(t, handle)))
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		resp, _ := makeRequest(t, "POST", "/webhook", strings.NewReader(`{"from": "0821110000"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = makeRequest(t, "POST", "/webhook", strings.NewReader(`{"from": "12", "text": "hi"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDepositIntegration(t *testing.T) {
	clearDatabase(t)
	const handle = "0822220000"
	chat(t, handle, "hi")

	t.Run("IdempotentDeposit", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp, body := makeRequest(t, "POST", "/accounts/"+handle+"/deposits",
				strings.NewReader(`{"amount": "250.00", "note": "cash in"}`), "Idempotency-Key", "dep-1")
			require.Equal(t, http.StatusOK, resp.StatusCode, body)
			if i == 1 {
				assert.Equal(t, "duplicate_request", decodeMap(t, body)["reason"])
			}
		}
		assert.True(t, decimal.NewFromInt(250).Equal(balanceOf(t, handle)))
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/accounts/"+handle+"/deposits", strings.NewReader(`{"amount": "-10.00"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_amount", decodeMap(t, body)["reason"])
	})

	t.Run("MalformedBody", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/accounts/"+handle+"/deposits", strings.NewReader(`{"amount": `))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "invalid input provided")
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/accounts/0829999999/deposits", strings.NewReader(`{"amount": "50.00"}`))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body, "Resource not found")
	})
}

func TestTransferIntegration(t *testing.T) {
	clearDatabase(t)
	const sender, recipient = "0823330000", "0823339999"
	fundedAccount(t, sender, "500")

	t.Run("SuccessfulTransfer", func(t *testing.T) {
		body := fmt.Sprintf(`{"from": "%s", "to": "%s", "amount": "150", "note": "lunch"}`, sender, recipient)
		resp, respBody := makeRequest(t, "POST", "/transfers", strings.NewReader(body))
		require.Equal(t, http.StatusOK, resp.StatusCode, respBody)

		// 1% fee on R150.
		assert.True(t, decimal.RequireFromString("348.50").Equal(balanceOf(t, sender)))
		assert.True(t, decimal.NewFromInt(150).Equal(balanceOf(t, recipient)), "recipient is created on first transfer")
	})

	t.Run("SelfTransfer", func(t *testing.T) {
		body := fmt.Sprintf(`{"from": "%s", "to": "%s", "amount": "10"}`, sender, sender)
		resp, respBody := makeRequest(t, "POST", "/transfers", strings.NewReader(body))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_target", decodeMap(t, respBody)["reason"])
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		body := fmt.Sprintf(`{"from": "%s", "to": "%s", "amount": "4000"}`, sender, recipient)
		resp, respBody := makeRequest(t, "POST", "/transfers", strings.NewReader(body))
		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
		assert.Equal(t, "insufficient_balance", decodeMap(t, respBody)["reason"])
	})

	t.Run("UnverifiedSender", func(t *testing.T) {
		body := fmt.Sprintf(`{"from": "%s", "to": "%s", "amount": "10"}`, recipient, sender)
		resp, respBody := makeRequest(t, "POST", "/transfers", strings.NewReader(body))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "account_inactive", decodeMap(t, respBody)["reason"])
	})
}

func TestHistoryAndRefundIntegration(t *testing.T) {
	clearDatabase(t)
	const handle = "0824440000"
	fundedAccount(t, handle, "500")
	chat(t, handle, "set pin")
	chat(t, handle, "2580")
	chat(t, handle, "buy R50 airtime for 0821234567")
	require.Contains(t, chat(t, handle, "2580"), "New balance: R449.00")

	var airtimeRef string
	t.Run("History", func(t *testing.T) {
		resp, body := makeRequest(t, "GET", "/accounts/"+handle+"/transactions?limit=10&offset=0", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		page := decodeMap(t, body)
		assert.Equal(t, float64(2), page["total_count"])
		data := page["data"].([]interface{})
		require.Len(t, data, 2)
		for _, item := range data {
			tx := item.(map[string]interface{})
			if tx["type"] == "airtime" {
				airtimeRef = tx["reference"].(string)
				assert.Equal(t, "completed", tx["status"])
			}
		}
		require.NotEmpty(t, airtimeRef)

		resp, body = makeRequest(t, "GET", "/accounts/"+handle+"/transactions?limit=1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decodeMap(t, body)["data"].([]interface{}), 1)
	})

	t.Run("RefundOnce", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/transactions/"+airtimeRef+"/refund", strings.NewReader(`{"note": "not delivered"}`))
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.True(t, decimal.NewFromInt(500).Equal(balanceOf(t, handle)))

		resp, _ = makeRequest(t, "POST", "/transactions/"+airtimeRef+"/refund", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		resp, _ = makeRequest(t, "POST", "/transactions/CYR-UNKNOWN/refund", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestBeneficiariesIntegration(t *testing.T) {
	clearDatabase(t)
	const handle = "0825550000"
	chat(t, handle, "hi")
	assert.Contains(t, chat(t, handle, "save gogo 0827654321"), "Saved *gogo*")

	resp, body := makeRequest(t, "GET", "/accounts/"+handle+"/beneficiaries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeMap(t, body)["data"].([]interface{})
	require.Len(t, data, 1)
	b := data[0].(map[string]interface{})
	assert.Equal(t, "gogo", b["nickname"])
	assert.Equal(t, "phone", b["kind"])

	resp, _ = makeRequest(t, "GET", "/accounts/12/beneficiaries", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
