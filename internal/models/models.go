package models

import (
	"encoding/json"
	"net/http"
)

// Transaction describes the payment the authority is asked to execute.
type Transaction struct {
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Chain     string  `json:"chain"`
	Asset     string  `json:"asset"`
}

// HTTPDescriptor tells the payment authority how to call the merchant.
type HTTPDescriptor struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

// RequestEnvelope is the merchant request relayed by the payment authority.
type RequestEnvelope struct {
	HTTP HTTPDescriptor  `json:"http"`
	Body json.RawMessage `json:"body,omitempty"`
}

// PaymentContext is free-form audit context attached to a payment.
type PaymentContext struct {
	CurrentTask      string `json:"current_task,omitempty"`
	ReasoningProcess string `json:"reasoning_process,omitempty"`
}

// PaymentIntent is built fresh for every forwarded request.
type PaymentIntent struct {
	Transaction    Transaction     `json:"transaction"`
	RequestBody    RequestEnvelope `json:"request_body"`
	Context        PaymentContext  `json:"context"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// UpstreamResponse is the merchant answer as relayed back to the client.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the paid call succeeded.
func (r *UpstreamResponse) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// StreamChunk is one emulated chat.completion.chunk event.
type StreamChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices"`
}

// ChunkChoice carries a partial message fragment for one choice.
type ChunkChoice struct {
	Index        int            `json:"index"`
	Delta        map[string]any `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}
