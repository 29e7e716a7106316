// Package ephemeral provides the short-lived, token keyed datasets of the
// accounts service.
//
// A dataset is a named hash in a remote key/value store mapping an opaque
// token to a timestamped record. Records are issued by request handlers,
// redeemed at most once, and removed by the expiry reaper in internal/tasks
// when they outlive the dataset TTL.
//
// # Store
//
// HashStore is the narrow contract the rest of the service needs from the
// store. RedisStore implements it on top of go-redis:
//
//	store := ephemeral.NewRedisStore(redisClient)
//	emails := ephemeral.NewDataset[token.URLToken](store, ephemeral.DatasetEmail, record.DecodeConfirmEmail)
//
// # Single use
//
// Dataset.Redeem reads a record and deletes it right away, so a token can be
// redeemed once even when the client submits twice.
package ephemeral

import (
	"context"
	"errors"
)

// Dataset names.
const (
	DatasetEmail   = "email"
	DatasetCaptcha = "captcha"
)

var (
	// ErrNotFound is returned by HashStore.Get for a missing field.
	ErrNotFound = errors.New("ephemeral: field not found")

	// ErrInvalidToken is returned by Dataset.Redeem when the token is unknown
	// or its stored value is not a valid record.
	ErrInvalidToken = errors.New("ephemeral: invalid or unknown token")
)

// HashStore is a remote hash structure addressed by name.
type HashStore interface {
	// Scan iterates over all (field, value) pairs of the hash. Entries added
	// or removed while scanning may or may not be returned.
	Scan(ctx context.Context, hash string) Cursor
	// BulkDelete removes the given fields and returns how many existed.
	BulkDelete(ctx context.Context, hash string, fields []string) (int, error)
	// InsertIfAbsent sets field only if it does not exist yet.
	InsertIfAbsent(ctx context.Context, hash, field, value string) (bool, error)
	// Get returns ErrNotFound when the field does not exist.
	Get(ctx context.Context, hash, field string) (string, error)
	// Delete removes one field and reports whether it existed.
	Delete(ctx context.Context, hash, field string) (bool, error)
}

// Cursor is a lazy scan over a hash.
//
//	cur := store.Scan(ctx, "email")
//	for cur.Next(ctx) {
//	    use(cur.Field(), cur.Value())
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor interface {
	Next(ctx context.Context) bool
	Field() string
	Value() string
	Err() error
}
