package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// DefaultMaxTokens is the completion budget assumed when the client sends none.
const DefaultMaxTokens = 512

var errNotObject = errors.New("request body is not a JSON object")

var canonicalRoles = map[string]struct{}{
	"system":    {},
	"user":      {},
	"assistant": {},
	"tool":      {},
	"function":  {},
}

var roleAliases = map[string]string{
	"developer": "system",
	"model":     "assistant",
}

// Normalized is a chat request prepared for the payment envelope.
type Normalized struct {
	// Body is the outbound payload. It equals the inbound bytes when Parsed is false.
	Body []byte
	// Stream records whether the client asked for a streamed answer.
	Stream    bool
	MaxTokens int
	Parsed    bool
}

// Normalize rewrites message roles into the canonical set, forces stream to
// false and extracts the completion budget. Bodies that are not a JSON object
// are passed through unchanged with default values.
func Normalize(body []byte) Normalized {
	fallback := Normalized{Body: body, MaxTokens: DefaultMaxTokens}

	payload, err := decodeObject(body)
	if err != nil {
		return fallback
	}

	stream, _ := payload["stream"].(bool)
	payload["stream"] = false

	if messages, ok := payload["messages"].([]any); ok {
		payload["messages"] = NormalizeRoles(messages)
	}

	out, err := encodeJSON(payload)
	if err != nil {
		return fallback
	}

	return Normalized{
		Body:      out,
		Stream:    stream,
		MaxTokens: maxTokens(payload["max_tokens"]),
		Parsed:    true,
	}
}

// NormalizeRoles maps every message role into the canonical set. The input
// slice is returned as is when no message needs remapping; otherwise changed
// messages are shallow copies and the inputs are left untouched.
func NormalizeRoles(messages []any) []any {
	var out []any
	for i, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		current, isString := msg["role"].(string)
		role := CanonicalRole(msg["role"])
		if isString && role == current {
			continue
		}

		if out == nil {
			out = make([]any, len(messages))
			copy(out, messages)
		}
		clone := make(map[string]any, len(msg))
		for k, v := range msg {
			clone[k] = v
		}
		clone["role"] = role
		out[i] = clone
	}

	if out == nil {
		return messages
	}
	return out
}

// CanonicalRole maps any role value to one of system, user, assistant, tool
// or function.
func CanonicalRole(role any) string {
	name, ok := role.(string)
	if !ok {
		return "user"
	}
	if _, ok := canonicalRoles[name]; ok {
		return name
	}
	if mapped, ok := roleAliases[name]; ok {
		return mapped
	}
	return "user"
}

func maxTokens(value any) int {
	var f float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return DefaultMaxTokens
		}
		f = parsed
	case float64:
		f = v
	default:
		return DefaultMaxTokens
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return DefaultMaxTokens
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

func decodeObject(body []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}
	if payload == nil {
		return nil, errNotObject
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("request body must contain a single JSON object")
	}
	return payload, nil
}

// encodeJSON marshals without HTML escaping so prompts travel byte for byte.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
