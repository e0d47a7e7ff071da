package accounts

import (
	"context"
	"sync"
)

// MemoryRepository keeps users in process memory. It backs tests and
// single-node setups without a database.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, users: make(map[int64]User)}
}

func (r *MemoryRepository) Insert(_ context.Context, u *User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return 0, ErrDuplicate
		}
	}
	id := r.nextID
	r.nextID++
	cp := *u
	cp.ID = id
	r.users[id] = cp
	return id, nil
}

func (r *MemoryRepository) ByID(_ context.Context, id int64) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) ByUsername(_ context.Context, username string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) UpdateFileLimit(_ context.Context, id, limitMB int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FileLimitMB = limitMB
	r.users[id] = u
	return nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}
