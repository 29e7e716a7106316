package domain

import (
	"context"
	"errors"
	"time"

	"github.com/getkayan/accounts/internal/identity"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("storage: record not found")
	ErrEmailTaken    = errors.New("storage: email already in use")
	ErrUsernameTaken = errors.New("storage: username already in use")
)

// Storage defines the interface for all persistence operations.
type Storage interface {
	UserStorage
	DeletionStorage
	Ping(ctx context.Context) error
	Close() error
}

type UserStorage interface {
	// CreateUser returns ErrEmailTaken or ErrUsernameTaken on a uniqueness
	// violation.
	CreateUser(ctx context.Context, u *identity.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
	GetUserByEmail(ctx context.Context, email string) (*identity.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// UsernameExists compares case-insensitively.
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdatePasswordByEmail(ctx context.Context, email, hash string) error
	// UpdateUser applies all changes in one transaction.
	UpdateUser(ctx context.Context, id uuid.UUID, c identity.Changes) error
}

type DeletionStorage interface {
	// RequestDeletion records a deletion request keyed by token and flags
	// the user, in one transaction.
	RequestDeletion(ctx context.Context, userID uuid.UUID, token string) error
	// CancelDeletion removes the request keyed by token. It returns
	// ErrNotFound for an unknown token.
	CancelDeletion(ctx context.Context, token string) error
	CancelDeletionForUser(ctx context.Context, userID uuid.UUID) error
	// PurgeDeletions permanently removes the users whose deletion request
	// was created before cutoff and returns how many were removed.
	PurgeDeletions(ctx context.Context, cutoff time.Time) (int, error)
}

// Hasher defines the interface for password hashing and verification.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) bool
}
