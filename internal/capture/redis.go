package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisWriteTimeout = 2 * time.Second

// lister is the subset of the redis client the sink needs.
type lister interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisSink pushes records onto a redis list.
type RedisSink struct {
	client lister
	key    string
	log    *zap.SugaredLogger
}

// NewRedisSink connects to addr and pushes onto key. An unreachable server
// is logged but not fatal.
func NewRedisSink(addr, key string, log *zap.SugaredLogger) (*RedisSink, error) {
	if addr == "" {
		return nil, errors.New("capture redis address must not be empty")
	}
	if key == "" {
		return nil, errors.New("capture redis key must not be empty")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnw("capture redis unreachable", "addr", addr, "error", err)
	}

	return newRedisSink(client, key, log), nil
}

func newRedisSink(client lister, key string, log *zap.SugaredLogger) *RedisSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RedisSink{client: client, key: key, log: log}
}

// Write detaches from the request context so a finished request still gets its record.
func (s *RedisSink) Write(ctx context.Context, record Record) {
	line, err := marshalRecord(record)
	if err != nil {
		s.log.Debugw("capture record dropped", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisWriteTimeout)
	defer cancel()
	if err := s.client.RPush(ctx, s.key, line).Err(); err != nil {
		s.log.Debugw("capture push failed", "key", s.key, "error", err)
	}
}

func (s *RedisSink) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close capture redis: %w", err)
	}
	return nil
}
