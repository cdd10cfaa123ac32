// Package forwarder turns a normalized chat request into a payment intent and
// relays the merchant response.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"clawcredit-gateway/internal/config"
	"clawcredit-gateway/internal/metrics"
	"clawcredit-gateway/internal/models"
	"clawcredit-gateway/internal/payment"
	"clawcredit-gateway/internal/pricing"
	"clawcredit-gateway/internal/version"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	contentTypeJSON     = "application/json"

	currentTask      = "blockrun_inference_via_clawcredit_blockrun_gateway"
	reasoningProcess = "Pay BlockRun inference through claw.credit SDK"
)

var hopHeaders = map[string]struct{}{
	"host":           {},
	"content-length": {},
	"connection":     {},
}

// Request is one chat completion ready to be paid for.
type Request struct {
	Body            []byte
	Header          http.Header
	EstimatedMicros int64
}

// Forwarder pays the upstream through the payment authority.
type Forwarder struct {
	authority payment.Authority
	target    string
	chain     string
	asset     string
	log       *zap.SugaredLogger
}

// New constructs a forwarder for the configured upstream.
func New(authority payment.Authority, cfg config.Config, log *zap.SugaredLogger) (*Forwarder, error) {
	if authority == nil {
		return nil, errors.New("payment authority must not be nil")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Upstream.BaseURL), "/")
	if base == "" {
		return nil, errors.New("upstream base url must not be empty")
	}

	return &Forwarder{
		authority: authority,
		target:    base + chatCompletionsPath,
		chain:     cfg.Payment.Chain,
		asset:     cfg.Payment.Asset,
		log:       log,
	}, nil
}

// Target is the upstream URL paid for on every request.
func (f *Forwarder) Target() string {
	return f.target
}

// OutboundHeaders builds the header set described in the payment envelope.
func OutboundHeaders(inbound http.Header) map[string]string {
	out := make(map[string]string, len(inbound)+2)
	for key, values := range inbound {
		lower := strings.ToLower(key)
		if _, skip := hopHeaders[lower]; skip {
			continue
		}
		if existing, ok := out[lower]; ok {
			out[lower] = existing + ", " + strings.Join(values, ", ")
			continue
		}
		out[lower] = strings.Join(values, ", ")
	}
	if _, ok := out["content-type"]; !ok {
		out["content-type"] = contentTypeJSON
	}
	out["user-agent"] = version.UserAgent()
	return out
}

// Intent assembles the payment intent for req.
func (f *Forwarder) Intent(req Request) (models.PaymentIntent, error) {
	body, err := envelopeBody(req.Body)
	if err != nil {
		return models.PaymentIntent{}, err
	}

	return models.PaymentIntent{
		Transaction: models.Transaction{
			Recipient: f.target,
			Amount:    pricing.MicrosToUSD(req.EstimatedMicros),
			Chain:     f.chain,
			Asset:     f.asset,
		},
		RequestBody: models.RequestEnvelope{
			HTTP: models.HTTPDescriptor{
				URL:     f.target,
				Method:  http.MethodPost,
				Headers: OutboundHeaders(req.Header),
			},
			Body: body,
		},
		Context: models.PaymentContext{
			CurrentTask:      currentTask,
			ReasoningProcess: reasoningProcess,
		},
		IdempotencyKey: strings.TrimSpace(req.Header.Get("Idempotency-Key")),
	}, nil
}

// Forward pays for req and returns the merchant response. Payment failures
// become a mapped status with an {"error": message} body; the returned error
// is reserved for requests that could not be built at all.
func (f *Forwarder) Forward(ctx context.Context, req Request) (*models.UpstreamResponse, error) {
	intent, err := f.Intent(req)
	if err != nil {
		return nil, err
	}
	metrics.EstimatedMicros.Add(float64(req.EstimatedMicros))

	// A client disconnect must not abandon a payment that may already be settling.
	start := time.Now()
	result, payErr := f.authority.Pay(context.WithoutCancel(ctx), intent)
	metrics.PaymentDuration.Observe(time.Since(start).Seconds())

	if payErr != nil {
		status := payment.InferStatus(payErr)
		metrics.PaymentFailures.WithLabelValues(strconv.Itoa(status)).Inc()
		f.log.Warnw("payment failed",
			"status", status,
			"error", payErr.Error(),
			"recipient", intent.Transaction.Recipient,
			"amount", intent.Transaction.Amount,
		)
		return errorResponse(status, payErr.Error())
	}

	body, err := encodeJSON(merchantResponse(result))
	if err != nil {
		return nil, fmt.Errorf("encode merchant response: %w", err)
	}
	return jsonResponse(http.StatusOK, body), nil
}

// envelopeBody carries the request as JSON when it is valid and as a JSON
// string otherwise, so malformed input still reaches the authority.
func envelopeBody(body []byte) (json.RawMessage, error) {
	if json.Valid(body) {
		return json.RawMessage(body), nil
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil, fmt.Errorf("encode raw request body: %w", err)
	}
	return quoted, nil
}

func merchantResponse(result map[string]any) any {
	if result == nil {
		return map[string]any{}
	}
	merchant, ok := result["merchant_response"]
	if !ok {
		merchant = result
	}
	if merchant == nil {
		return map[string]any{}
	}
	return merchant
}

func errorResponse(status int, message string) (*models.UpstreamResponse, error) {
	body, err := encodeJSON(map[string]string{"error": message})
	if err != nil {
		return nil, fmt.Errorf("encode error response: %w", err)
	}
	return jsonResponse(status, body), nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func jsonResponse(status int, body []byte) *models.UpstreamResponse {
	header := make(http.Header)
	header.Set("Content-Type", contentTypeJSON)
	return &models.UpstreamResponse{
		StatusCode: status,
		Header:     header,
		Body:       body,
	}
}
