package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileSink appends records as JSON lines to a local file.
type FileSink struct {
	mu   sync.Mutex
	path string
	log  *zap.SugaredLogger
}

// NewFileSink creates the parent directory of path and returns a sink that
// appends to it. The file is opened per write so external rotation is safe.
func NewFileSink(path string, log *zap.SugaredLogger) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("capture file path must not be empty")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}
	return &FileSink{path: path, log: log}, nil
}

func (s *FileSink) Write(_ context.Context, record Record) {
	line, err := marshalRecord(record)
	if err != nil {
		s.log.Debugw("capture record dropped", "error", err)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.log.Debugw("capture file unavailable", "path", s.path, "error", err)
		return
	}
	if _, err := f.Write(line); err != nil {
		s.log.Debugw("capture write failed", "path", s.path, "error", err)
	}
	_ = f.Close()
}

func (s *FileSink) Close() error { return nil }
