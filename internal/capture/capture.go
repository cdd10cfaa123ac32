// Package capture records request and response exchanges for debugging.
// Sinks are best effort: a failed write never affects the request.
package capture

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"clawcredit-gateway/internal/config"
)

// Kind labels a captured record.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"
)

// Source identifies the calling client.
type Source struct {
	UserAgent        *string `json:"userAgent"`
	XOpenClawSession *string `json:"xOpenClawSession"`
}

// Record is one line of capture output. Fields not relevant to a kind are omitted.
type Record struct {
	Kind            Kind              `json:"kind"`
	RequestID       string            `json:"requestId,omitempty"`
	At              time.Time         `json:"at"`
	Source          *Source           `json:"source,omitempty"`
	Method          string            `json:"method,omitempty"`
	Target          string            `json:"target,omitempty"`
	EstimatedMicros string            `json:"estimatedMicros,omitempty"`
	DurationMs      *int64            `json:"durationMs,omitempty"`
	Status          int               `json:"status,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            json.RawMessage   `json:"body,omitempty"`
	Message         string            `json:"message,omitempty"`
}

// Sink accepts capture records. Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, record Record)
	Close() error
}

// New selects the sink for cfg once at startup.
func New(cfg config.CaptureConfig, log *zap.SugaredLogger) (Sink, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	switch cfg.Mode {
	case config.CaptureModeFile:
		return NewFileSink(cfg.File, log)
	case config.CaptureModeRedis:
		return NewRedisSink(cfg.RedisAddr, cfg.RedisKey, log)
	default:
		return Nop{}, nil
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) Write(context.Context, Record) {}

func (Nop) Close() error { return nil }

// Body renders a payload for a record: JSON stays structured, anything else
// becomes a JSON string.
func Body(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	quoted, err := json.Marshal(string(payload))
	if err != nil {
		return nil
	}
	return quoted
}

// Headers flattens h into lower-cased keys.
func Headers(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return out
}

func marshalRecord(record Record) ([]byte, error) {
	if record.At.IsZero() {
		record.At = time.Now()
	}
	record.At = record.At.UTC()
	return json.Marshal(record)
}
