// Package clipboard keeps each session's pending copy or cut selection and
// applies it when the user pastes.
package clipboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shubham6444/host/internal/vfs"
)

// Operation is what a paste does with the recorded items.
type Operation string

const (
	OpCopy Operation = "copy"
	OpCut  Operation = "cut"
)

// Clipboard is the selection recorded for one session.
type Clipboard struct {
	Items     []string      `json:"items"`
	Operation Operation     `json:"operation"`
	Namespace vfs.Namespace `json:"rootPath"`
	Created   time.Time     `json:"created"`
}

// Store persists clipboards by session ID. Get returns nil, nil when the
// session has no clipboard.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Clipboard, error)
	Put(ctx context.Context, sessionID string, cb *Clipboard) error
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*Clipboard
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Clipboard)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Clipboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.items[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *cb
	cp.Items = append([]string(nil), cb.Items...)
	return &cp, nil
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, cb *Clipboard) error {
	cp := *cb
	cp.Items = append([]string(nil), cb.Items...)
	s.mu.Lock()
	s.items[sessionID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.items, sessionID)
	s.mu.Unlock()
	return nil
}

// RedisStore keeps clipboards in Redis so they survive restarts and are
// shared between panel instances. Entries expire with the session.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects using a redis:// URL.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: "panel:clipboard:", ttl: ttl}, nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Clipboard, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clipboard: %w", err)
	}
	var cb Clipboard
	if err := json.Unmarshal(data, &cb); err != nil {
		return nil, fmt.Errorf("decode clipboard: %w", err)
	}
	return &cb, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, cb *Clipboard) error {
	data, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("encode clipboard: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear clipboard: %w", err)
	}
	return nil
}
