// Package clawcredit implements payment.Authority against the claw.credit API.
package clawcredit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"clawcredit-gateway/internal/models"
	"clawcredit-gateway/internal/payment"
	"clawcredit-gateway/internal/version"
)

const (
	contentTypeJSON = "application/json"
	payPath         = "/v1/transaction/pay"
	maxErrorBody    = 64 * 1024
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIToken string
	Agent    string
	AgentID  string
}

// Client pays merchants through claw.credit. It never retries.
type Client struct {
	payURL   string
	apiToken string
	agent    string
	agentID  string
	client   *http.Client
	log      *zap.SugaredLogger
}

// New creates a claw.credit client.
func New(opts Options, client *http.Client, log *zap.SugaredLogger) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	token := strings.TrimSpace(opts.APIToken)
	if token == "" {
		return nil, errors.New("CLAWCREDIT_API_TOKEN is required for claw.credit payment mode")
	}

	return &Client{
		payURL:   baseURL + payPath,
		apiToken: token,
		agent:    strings.TrimSpace(opts.Agent),
		agentID:  strings.TrimSpace(opts.AgentID),
		client:   client,
		log:      log,
	}, nil
}

type payRequest struct {
	models.PaymentIntent
	Agent   string `json:"agent,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

// Pay submits the intent and returns the decoded result object.
func (c *Client) Pay(ctx context.Context, intent models.PaymentIntent) (map[string]any, error) {
	req, err := c.newRequest(ctx, payRequest{
		PaymentIntent: intent,
		Agent:         c.agent,
		AgentID:       c.agentID,
	})
	if err != nil {
		return nil, err
	}
	if intent.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", intent.IdempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claw.credit pay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp)
	}

	result, err := decodeResult(resp.Body)
	if err != nil {
		return nil, err
	}

	c.log.Debugw("payment settled",
		"recipient", intent.Transaction.Recipient,
		"amount", intent.Transaction.Amount,
		"chain", intent.Transaction.Chain,
		"status", result["status"],
		"tx_hash", result["tx_hash"],
	)
	return result, nil
}

func (c *Client) newRequest(ctx context.Context, payload any) (*http.Request, error) {
	var body bytes.Buffer
	encoder := json.NewEncoder(&body)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		return nil, fmt.Errorf("marshal payment intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.payURL, &body)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	return req, nil
}

func decodeResult(reader io.Reader) (map[string]any, error) {
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()

	var result any
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	obj, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %T", payment.ErrUnexpectedResponse, result)
	}
	return obj, nil
}

// parseAPIError renders a non-2xx answer as "ClawCredit API Error: <status> - <detail>".
func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &payment.Error{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("ClawCredit API Error: %d - failed to read body: %v", resp.StatusCode, err),
		}
	}

	detail := errorDetail(body)
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return &payment.Error{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("ClawCredit API Error: %d - %s", resp.StatusCode, detail),
	}
}

func errorDetail(body []byte) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"error", "message", "detail"} {
			switch v := parsed[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case map[string]any:
				if msg, ok := v["message"].(string); ok && msg != "" {
					return msg
				}
			}
		}
	}
	return strings.TrimSpace(string(body))
}
