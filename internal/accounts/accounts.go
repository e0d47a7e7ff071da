// Package accounts manages panel user records: registration, password
// checks and the per-user upload limit.
package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/vfs"
)

// ErrNotFound is returned by a Repository when no user matches.
var ErrNotFound = errors.New("user not found")

// ErrDuplicate is returned by a Repository when a username or email is taken.
var ErrDuplicate = errors.New("user already exists")

// User is a panel account. FileLimitMB of 0 means the server default.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         vfs.Role  `json:"role"`
	FileLimitMB  int64     `json:"fileLimit"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Repository persists users.
type Repository interface {
	Insert(ctx context.Context, u *User) (int64, error)
	ByID(ctx context.Context, id int64) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	UpdateFileLimit(ctx context.Context, id int64, limitMB int64) error
	Count(ctx context.Context) (int, error)
}

// Service implements account operations on top of a Repository.
type Service struct {
	repo           Repository
	defaultLimitMB int64
	cost           int
}

// NewService creates a service. defaultLimitMB is applied to users that
// have no explicit limit.
func NewService(repo Repository, defaultLimitMB int64) *Service {
	return &Service{repo: repo, defaultLimitMB: defaultLimitMB, cost: bcrypt.DefaultCost}
}

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Register creates a regular user.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if !usernamePattern.MatchString(username) {
		return nil, apperrors.New(apperrors.KindInvalidArgument,
			"username must be 3-32 letters, digits, dots, dashes or underscores")
	}
	if !emailPattern.MatchString(email) {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "invalid email address")
	}
	if len(password) < 6 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "password must be at least 6 characters")
	}
	return s.create(ctx, username, email, password, vfs.RoleUser)
}

func (s *Service) create(ctx context.Context, username, email, password string, role vfs.Role) (*User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	id, err := s.repo.Insert(ctx, u)
	if errors.Is(err, ErrDuplicate) {
		return nil, apperrors.New(apperrors.KindAlreadyExists, "username or email already taken")
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	logging.Info("user created", logging.String("username", username), logging.String("role", string(role)))
	return u, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords produce the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.repo.ByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.New(apperrors.KindForbidden, "invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.New(apperrors.KindForbidden, "invalid credentials")
	}
	return u, nil
}

// Get returns the current record for a user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.ByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// FileLimitBytes reads the user's per-file upload limit. It is read on
// every call so admin changes apply to the next upload.
func (s *Service) FileLimitBytes(ctx context.Context, id int64) (int64, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.EffectiveLimitMB(u) * 1024 * 1024, nil
}

// EffectiveLimitMB is the user's limit or the server default.
func (s *Service) EffectiveLimitMB(u *User) int64 {
	if u.FileLimitMB > 0 {
		return u.FileLimitMB
	}
	return s.defaultLimitMB
}

// SetFileLimit changes a user's per-file upload limit.
func (s *Service) SetFileLimit(ctx context.Context, id, limitMB int64) error {
	if limitMB <= 0 {
		return apperrors.New(apperrors.KindInvalidArgument, "file limit must be positive")
	}
	err := s.repo.UpdateFileLimit(ctx, id, limitMB)
	if errors.Is(err, ErrNotFound) {
		return apperrors.New(apperrors.KindNotFound, "user not found")
	}
	if err != nil {
		return fmt.Errorf("update file limit: %w", err)
	}
	logging.Info("file limit changed", logging.Int64("user_id", id), logging.Int64("limit_mb", limitMB))
	return nil
}

// EnsureDefaultAdmin creates an admin account when no users exist. An
// empty password generates a random one, which is logged once.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}
	if password == "" {
		password = randomSecret()
		logging.Warn("no users found, created default admin with a generated password",
			logging.String("username", username), logging.String("password", password))
	} else {
		logging.Warn("no users found, creating default admin", logging.String("username", username))
	}
	_, err = s.create(ctx, username, username+"@localhost", password, vfs.RoleAdmin)
	return err
}

// EnsureExternal returns the local account for an externally authenticated
// identity, creating it on first sight. The returned role is the one the
// identity provider asserts.
func (s *Service) EnsureExternal(ctx context.Context, username, email string, admin bool) (*User, error) {
	role := vfs.RoleUser
	if admin {
		role = vfs.RoleAdmin
	}
	u, err := s.repo.ByUsername(ctx, username)
	if err == nil {
		u.Role = role
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if email == "" {
		email = username + "@external"
	}
	// External users never log in with a password.
	return s.create(ctx, username, email, randomSecret(), role)
}

func randomSecret() string {
	b := make([]byte, 12)
	rand.Read(b)
	return hex.EncodeToString(b)
}
