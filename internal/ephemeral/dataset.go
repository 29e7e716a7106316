package ephemeral

import (
	"context"
	"errors"
	"fmt"

	"github.com/getkayan/accounts/internal/record"
)

// Dataset is a typed view over one named hash: keys of type K, values of
// record type R.
type Dataset[K ~string, R record.Record] struct {
	store  HashStore
	name   string
	decode record.Decoder[R]
}

func NewDataset[K ~string, R record.Record](store HashStore, name string, decode record.Decoder[R]) *Dataset[K, R] {
	return &Dataset[K, R]{store: store, name: name, decode: decode}
}

func (d *Dataset[K, R]) Name() string { return d.name }

// Issue stores value under a freshly generated key. On collision a new key is
// generated until an insert succeeds.
func (d *Dataset[K, R]) Issue(ctx context.Context, generate func() K, value string) (K, error) {
	for {
		key := generate()
		ok, err := d.store.InsertIfAbsent(ctx, d.name, string(key), value)
		if err != nil {
			return "", err
		}
		if ok {
			return key, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

// Redeem returns the record stored under key and deletes it. Unknown keys,
// undecodable values and keys redeemed concurrently by another caller all
// yield ErrInvalidToken.
func (d *Dataset[K, R]) Redeem(ctx context.Context, key K) (R, error) {
	var zero R

	raw, err := d.store.Get(ctx, d.name, string(key))
	if errors.Is(err, ErrNotFound) {
		return zero, ErrInvalidToken
	}
	if err != nil {
		return zero, fmt.Errorf("ephemeral: reading %s entry failed: %w", d.name, err)
	}

	rec, err := d.decode(raw)
	if err != nil {
		// A corrupt value has no timestamp, so the reaper would never expire it.
		_, _ = d.store.Delete(ctx, d.name, string(key))
		return zero, ErrInvalidToken
	}

	// Concurrent redemptions can all read the value; only the one whose
	// delete removes it wins.
	existed, err := d.store.Delete(ctx, d.name, string(key))
	if err != nil {
		return zero, fmt.Errorf("ephemeral: removing %s entry failed: %w", d.name, err)
	}
	if !existed {
		return zero, ErrInvalidToken
	}

	return rec, nil
}

// Discard deletes key without reading it and reports whether it existed.
func (d *Dataset[K, R]) Discard(ctx context.Context, key K) (bool, error) {
	return d.store.Delete(ctx, d.name, string(key))
}
