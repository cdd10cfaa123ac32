package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aidarkhanov/nanoid"

	"clawcredit-gateway/internal/models"
)

const (
	chunkObject  = "chat.completion.chunk"
	defaultRole  = "assistant"
	unknownModel = "unknown"

	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idLength   = 24
)

// DoneFrame terminates every emulated stream.
var DoneFrame = []byte("data: [DONE]\n\n")

// StreamEmulator turns one complete chat completion into the chunk sequence a
// streaming client expects. Each choice is sent as whole-message chunks; the
// upstream never yields token-level data so none is invented here.
type StreamEmulator struct {
	now   func() time.Time
	newID func() string
}

// NewStreamEmulator returns an emulator using the wall clock and nanoid ids.
func NewStreamEmulator() *StreamEmulator {
	return &StreamEmulator{
		now:   time.Now,
		newID: newCompletionID,
	}
}

func newCompletionID() string {
	id, err := nanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	}
	return "chatcmpl-" + id
}

// Write emits the frames for body to w, calling flush after each frame. It
// reports whether the degraded raw passthrough was used.
func (e *StreamEmulator) Write(w io.Writer, flush func(), body []byte) (bool, error) {
	frames, degraded := e.Frames(body)
	for _, frame := range frames {
		if _, err := w.Write(frame); err != nil {
			return degraded, fmt.Errorf("write stream frame: %w", err)
		}
		if flush != nil {
			flush()
		}
	}
	return degraded, nil
}

// Frames returns the server-sent event frames for a completion body, always
// ending with DoneFrame. The boolean is true when the body could not be
// parsed as a completion with choices and was relayed raw instead.
func (e *StreamEmulator) Frames(body []byte) ([][]byte, bool) {
	payload, err := decodeObject(body)
	if err != nil {
		return rawFrames(body), true
	}
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return rawFrames(body), true
	}

	envelope := e.envelope(payload)

	frames := make([][]byte, 0, len(choices)*4+1)
	for position, raw := range choices {
		choice, _ := raw.(map[string]any)
		for _, chunk := range choiceChunks(envelope, position, choice) {
			frame, err := dataFrame(chunk)
			if err != nil {
				return rawFrames(body), true
			}
			frames = append(frames, frame)
		}
	}
	return append(frames, DoneFrame), false
}

func (e *StreamEmulator) envelope(payload map[string]any) models.StreamChunk {
	chunk := models.StreamChunk{
		Object: chunkObject,
		Model:  unknownModel,
	}

	if id, ok := payload["id"].(string); ok && id != "" {
		chunk.ID = id
	} else {
		chunk.ID = e.newID()
	}

	chunk.Created = e.now().Unix()
	if n, ok := payload["created"].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			chunk.Created = v
		} else if f, err := n.Float64(); err == nil {
			chunk.Created = int64(f)
		}
	}

	if model, ok := payload["model"].(string); ok && model != "" {
		chunk.Model = model
	}
	if fp, ok := payload["system_fingerprint"].(string); ok {
		chunk.SystemFingerprint = fp
	}
	return chunk
}

func choiceChunks(envelope models.StreamChunk, position int, choice map[string]any) []models.StreamChunk {
	index := position
	if n, ok := choice["index"].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			index = int(v)
		}
	}

	with := func(delta map[string]any, finish *string) models.StreamChunk {
		chunk := envelope
		chunk.Choices = []models.ChunkChoice{{Index: index, Delta: delta, FinishReason: finish}}
		return chunk
	}

	role := defaultRole
	if r, ok := messageField(choice, "role").(string); ok && r != "" {
		role = r
	}
	chunks := []models.StreamChunk{with(map[string]any{"role": role}, nil)}

	if content, ok := messageField(choice, "content").(string); ok && content != "" {
		chunks = append(chunks, with(map[string]any{"content": content}, nil))
	}

	toolCalls, _ := messageField(choice, "tool_calls").([]any)
	if len(toolCalls) > 0 {
		chunks = append(chunks, with(map[string]any{"tool_calls": indexToolCalls(toolCalls)}, nil))
	}

	finish := "stop"
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	} else if reason, ok := choice["finish_reason"].(string); ok && reason != "" {
		finish = reason
	}
	return append(chunks, with(map[string]any{}, &finish))
}

// messageField reads key from the choice's message, falling back to its delta.
func messageField(choice map[string]any, key string) any {
	for _, source := range []string{"message", "delta"} {
		m, ok := choice[source].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// indexToolCalls adds the positional index streaming clients use to
// assemble tool-call deltas when the upstream left it out.
func indexToolCalls(calls []any) []any {
	out := make([]any, len(calls))
	for i, raw := range calls {
		call, ok := raw.(map[string]any)
		if !ok {
			out[i] = raw
			continue
		}
		if _, has := call["index"]; has {
			out[i] = call
			continue
		}
		clone := make(map[string]any, len(call)+1)
		for k, v := range call {
			clone[k] = v
		}
		clone["index"] = i
		out[i] = clone
	}
	return out
}

func dataFrame(chunk models.StreamChunk) ([]byte, error) {
	data, err := encodeJSON(chunk)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	return append(frame, '\n', '\n'), nil
}

// rawFrames relays an unparseable body as one event, one data line per line.
func rawFrames(body []byte) [][]byte {
	var buf bytes.Buffer
	for _, line := range strings.Split(string(body), "\n") {
		buf.WriteString("data: ")
		buf.WriteString(strings.TrimSuffix(line, "\r"))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return [][]byte{buf.Bytes(), DoneFrame}
}
