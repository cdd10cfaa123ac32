package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawcredit-gateway/internal/config"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestNew_SelectsSink(t *testing.T) {
	sink, err := New(config.CaptureConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, sink)

	path := filepath.Join(t.TempDir(), "nested", "capture.jsonl")
	sink, err = New(config.CaptureConfig{Mode: config.CaptureModeFile, File: path}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, sink)
	assert.DirExists(t, filepath.Dir(path))
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	sink, err := NewFileSink(path, nil)
	require.NoError(t, err)

	ua := "openclaw/2.0"
	sink.Write(context.Background(), Record{
		Kind:            KindRequest,
		RequestID:       "req-1",
		At:              time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:          &Source{UserAgent: &ua},
		Method:          "POST",
		Target:          "https://blockrun.ai/api/v1/chat/completions",
		EstimatedMicros: "104096",
		Headers:         map[string]string{"content-type": "application/json"},
		Body:            Body([]byte(`{"model":"gpt-4o"}`)),
	})
	duration := int64(12)
	sink.Write(context.Background(), Record{
		Kind:       KindResponse,
		RequestID:  "req-1",
		DurationMs: &duration,
		Status:     200,
		Body:       Body([]byte("not json")),
	})
	sink.Write(context.Background(), Record{Kind: KindError, Message: "boom"})

	lines := readLines(t, path)
	require.Len(t, lines, 3)

	req := lines[0]
	assert.Equal(t, "request", req["kind"])
	assert.Equal(t, "req-1", req["requestId"])
	assert.Equal(t, "2026-01-02T03:04:05Z", req["at"])
	assert.Equal(t, "104096", req["estimatedMicros"])
	source := req["source"].(map[string]any)
	assert.Equal(t, "openclaw/2.0", source["userAgent"])
	assert.Contains(t, source, "xOpenClawSession")
	assert.Nil(t, source["xOpenClawSession"])
	assert.Equal(t, "gpt-4o", req["body"].(map[string]any)["model"])

	resp := lines[1]
	assert.Equal(t, float64(12), resp["durationMs"])
	assert.Equal(t, float64(200), resp["status"])
	assert.Equal(t, "not json", resp["body"])

	assert.Equal(t, "boom", lines[2]["message"])
	assert.NotEmpty(t, lines[2]["at"])
}

func TestFileSink_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	sink, err := NewFileSink(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Write(context.Background(), Record{Kind: KindError, Message: "concurrent"})
		}()
	}
	wg.Wait()

	assert.Len(t, readLines(t, path), 20)
}

func TestFileSink_SwallowsWriteFailures(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "capture.jsonl"), nil)
	require.NoError(t, err)

	// A directory in place of the file makes every open fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "capture.jsonl"), 0o755))
	assert.NotPanics(t, func() {
		sink.Write(context.Background(), Record{Kind: KindError, Message: "lost"})
	})
}

func TestNewFileSink_EmptyPath(t *testing.T) {
	_, err := NewFileSink("", nil)
	assert.Error(t, err)
}

type fakeLister struct {
	mu     sync.Mutex
	key    string
	values [][]byte
	err    error
	closed bool
}

func (f *fakeLister) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
	for _, v := range values {
		f.values = append(f.values, v.([]byte))
	}
	return redis.NewIntResult(int64(len(f.values)), f.err)
}

func (f *fakeLister) Close() error {
	f.closed = true
	return nil
}

func TestRedisSink_PushesRecords(t *testing.T) {
	client := &fakeLister{}
	sink := newRedisSink(client, "gateway:capture", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Write(ctx, Record{Kind: KindError, Message: "pushed after cancel"})

	require.Len(t, client.values, 1)
	assert.Equal(t, "gateway:capture", client.key)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(client.values[0], &rec))
	assert.Equal(t, "error", rec["kind"])
	assert.Equal(t, "pushed after cancel", rec["message"])

	require.NoError(t, sink.Close())
	assert.True(t, client.closed)
}

func TestRedisSink_SwallowsPushFailures(t *testing.T) {
	client := &fakeLister{err: errors.New("READONLY")}
	sink := newRedisSink(client, "k", nil)

	assert.NotPanics(t, func() {
		sink.Write(context.Background(), Record{Kind: KindError, Message: "x"})
	})
}

func TestNewRedisSink_Validation(t *testing.T) {
	_, err := NewRedisSink("", "k", nil)
	assert.Error(t, err)
	_, err = NewRedisSink("localhost:6379", "", nil)
	assert.Error(t, err)
}

func TestBody(t *testing.T) {
	assert.JSONEq(t, `{"a":1}`, string(Body([]byte(`{"a":1}`))))
	assert.Equal(t, `"{broken"`, string(Body([]byte(`{broken`))))
	assert.Equal(t, `""`, string(Body(nil)))
}

func TestHeaders(t *testing.T) {
	got := Headers(map[string][]string{
		"Content-Type": {"application/json"},
		"Accept":       {"a", "b"},
		"Empty":        {},
	})
	assert.Equal(t, map[string]string{"content-type": "application/json", "accept": "a, b"}, got)
}
