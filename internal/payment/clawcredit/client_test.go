package clawcredit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clawcredit-gateway/internal/models"
	"clawcredit-gateway/internal/payment"
)

func testIntent() models.PaymentIntent {
	return models.PaymentIntent{
		Transaction: models.Transaction{
			Recipient: "https://blockrun.ai/api/v1/chat/completions",
			Amount:    0.100256,
			Chain:     "BASE",
			Asset:     "USDC",
		},
		RequestBody: models.RequestEnvelope{
			HTTP: models.HTTPDescriptor{
				URL:     "https://blockrun.ai/api/v1/chat/completions",
				Method:  http.MethodPost,
				Headers: map[string]string{"content-type": "application/json"},
			},
			Body: json.RawMessage(`{"model":"gpt-4o","stream":false}`),
		},
		Context: models.PaymentContext{
			CurrentTask:      "task",
			ReasoningProcess: "reason",
		},
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:  baseURL + "/",
		APIToken: " claw_test_token ",
		Agent:    "agent-a",
		AgentID:  "agent-1",
	}, http.DefaultClient, zap.NewNop().Sugar())
	require.NoError(t, err)
	return c
}

func TestClient_Pay(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transaction/pay", r.URL.Path)

		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"success","tx_hash":"mock-tx-hash","amount_charged":0.01,"merchant_response":{"id":"chatcmpl-mock","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}}`)
	}))
	defer server.Close()

	intent := testIntent()
	intent.IdempotencyKey = "idem-1"

	result, err := newTestClient(t, server.URL).Pay(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, "Bearer claw_test_token", gotHeaders.Get("Authorization"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "idem-1", gotHeaders.Get("Idempotency-Key"))
	assert.True(t, strings.HasPrefix(gotHeaders.Get("User-Agent"), "clawcredit-blockrun-gateway/"))

	tx := gotBody["transaction"].(map[string]any)
	assert.Equal(t, "BASE", tx["chain"])
	assert.Equal(t, "USDC", tx["asset"])
	assert.InDelta(t, 0.100256, tx["amount"], 1e-9)
	reqBody := gotBody["request_body"].(map[string]any)
	httpDesc := reqBody["http"].(map[string]any)
	assert.Equal(t, tx["recipient"], httpDesc["url"])
	assert.Equal(t, false, reqBody["body"].(map[string]any)["stream"])
	assert.Equal(t, "idem-1", gotBody["idempotencyKey"])
	assert.Equal(t, "agent-a", gotBody["agent"])
	assert.Equal(t, "agent-1", gotBody["agent_id"])
	assert.Equal(t, "task", gotBody["context"].(map[string]any)["current_task"])

	assert.Equal(t, "success", result["status"])
	assert.Equal(t, json.Number("0.01"), result["amount_charged"])
	merchant, ok := result["merchant_response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "chatcmpl-mock", merchant["id"])
}

func TestClient_PayWithoutIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Idempotency-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, has := body["idempotencyKey"]
		assert.False(t, has)
		_, _ = io.WriteString(w, `{"merchant_response":null}`)
	}))
	defer server.Close()

	result, err := newTestClient(t, server.URL).Pay(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Contains(t, result, "merchant_response")
}

func TestClient_PayAPIError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantStatus int
	}{
		{
			name:       "json error field",
			status:     http.StatusPaymentRequired,
			body:       `{"error":"insufficient balance"}`,
			wantMsg:    "ClawCredit API Error: 402 - insufficient balance",
			wantStatus: 402,
		},
		{
			name:       "nested error message",
			status:     http.StatusForbidden,
			body:       `{"error":{"message":"prequalification_pending","code":"pq"}}`,
			wantMsg:    "ClawCredit API Error: 403 - prequalification_pending",
			wantStatus: 403,
		},
		{
			name:       "detail field",
			status:     http.StatusUnauthorized,
			body:       `{"detail":"invalid token"}`,
			wantMsg:    "ClawCredit API Error: 401 - invalid token",
			wantStatus: 401,
		},
		{
			name:       "plain text",
			status:     http.StatusServiceUnavailable,
			body:       "  maintenance  ",
			wantMsg:    "ClawCredit API Error: 503 - maintenance",
			wantStatus: 503,
		},
		{
			name:       "empty body",
			status:     http.StatusTooManyRequests,
			body:       "",
			wantMsg:    "ClawCredit API Error: 429 - Too Many Requests",
			wantStatus: 429,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Pay(context.Background(), testIntent())
			require.Error(t, err)

			var perr *payment.Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.wantStatus, payment.InferStatus(err))
		})
	}
}

func TestClient_PayNonObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `["not","an","object"]`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Pay(context.Background(), testIntent())
	require.Error(t, err)
	assert.ErrorIs(t, err, payment.ErrUnexpectedResponse)
}

func TestClient_PayTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).Pay(context.Background(), testIntent())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, payment.InferStatus(err))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{BaseURL: "https://api.claw.credit", APIToken: "tok"}, nil, nil)
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "", APIToken: "tok"}, http.DefaultClient, nil)
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "https://api.claw.credit", APIToken: "   "}, http.DefaultClient, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLAWCREDIT_API_TOKEN")

	c, err := New(Options{BaseURL: "https://api.claw.credit///", APIToken: "tok"}, http.DefaultClient, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.claw.credit/v1/transaction/pay", c.payURL)
}
