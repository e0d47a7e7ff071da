// Package activity records what users did in the panel.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Shubham6444/host/internal/logging"
)

// Entry types.
const (
	TypeFile     = "file"
	TypeUpload   = "upload"
	TypeTerminal = "terminal"
	TypeAuth     = "auth"
	TypeSystem   = "system"
)

// Entry is one activity log row.
type Entry struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"-"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"userAgent"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists activity entries.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]Entry, error)
}

// Log wraps a Store. Recording never fails the operation being recorded.
type Log struct {
	store Store
}

// NewLog creates an activity log.
func NewLog(store Store) *Log {
	return &Log{store: store}
}

// Record stores an entry. Failures are logged and dropped.
func (l *Log) Record(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := l.store.Insert(ctx, &e); err != nil {
		logging.WithContext(ctx).Warn("failed to record activity",
			zap.Int64("user_id", e.UserID), zap.String("type", e.Type), zap.Error(err))
	}
}

// Recent returns the user's newest entries first. limit is clamped to
// 1..200, default 50.
func (l *Log) Recent(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	entries, err := l.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return entries, nil
}

// PostgresStore keeps entries in the activity_log table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO activity_log (user_id, type, title, description, ip, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.UserID, e.Type, e.Title, e.Description, e.IP, e.UserAgent, e.CreatedAt).Scan(&e.ID)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, description, ip, user_agent, created_at
		 FROM activity_log WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Title, &e.Description, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.entries = append(s.entries, *e)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID int64, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}
