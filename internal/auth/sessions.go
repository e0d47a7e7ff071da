package auth

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Session is one issued login.
type Session struct {
	ID        string
	UserID    int64
	UserAgent string
	IP        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// SessionStore tracks issued sessions so they can be revoked before their
// token expires. Sessions it does not know about are treated as live.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	IsRevoked(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// PostgresSessionStore keeps sessions in the sessions table.
type PostgresSessionStore struct {
	db *sql.DB
}

// NewPostgresSessionStore wraps an open database.
func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

func (s *PostgresSessionStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, user_agent, ip, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.UserID, sess.UserAgent, sess.IP, sess.CreatedAt, sess.ExpiresAt)
	return err
}

func (s *PostgresSessionStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT revoked FROM sessions WHERE id = $1`, id).Scan(&revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *PostgresSessionStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked = true WHERE id = $1`, id)
	return err
}

func (s *PostgresSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (s *MemorySessionStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	s.sessions[sess.ID] = *sess
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) IsRevoked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].Revoked, nil
}

func (s *MemorySessionStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = Session{ID: id}
	}
	sess.Revoked = true
	s.sessions[id] = sess
	return nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
