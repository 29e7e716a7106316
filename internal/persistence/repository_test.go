package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/getkayan/accounts/internal/domain"
	"github.com/getkayan/accounts/internal/identity"
	"github.com/google/uuid"
)

func newTestStorage(t *testing.T) domain.Storage {
	t.Helper()
	store, err := NewStorage("sqlite", filepath.Join(t.TempDir(), "accounts.db"), Options{})
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createUser(t *testing.T, store domain.Storage, email, username string) *identity.User {
	t.Helper()
	u := &identity.User{ID: uuid.New(), Email: email, Username: username, PasswordHash: "hash"}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
	return u
}

func TestUnknownProvider(t *testing.T) {
	if _, err := NewStorage("cassandra", "", Options{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCreateAndGetUser(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	u := createUser(t, store, "jane@example.com", "Jane_Doe")

	got, err := store.GetUserByEmail(ctx, "jane@example.com")
	if err != nil {
		t.Fatalf("get by email failed: %v", err)
	}
	if got.ID != u.ID || got.Username != "Jane_Doe" {
		t.Errorf("unexpected user %+v", got)
	}

	if _, err := store.GetUser(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUniqueness(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createUser(t, store, "jane@example.com", "Jane")

	err := store.CreateUser(ctx, &identity.User{ID: uuid.New(), Email: "jane@example.com", Username: "other"})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	err = store.CreateUser(ctx, &identity.User{ID: uuid.New(), Email: "john@example.com", Username: "jANE"})
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}

	taken, err := store.UsernameExists(ctx, "JANE")
	if err != nil || !taken {
		t.Errorf("expected username to exist case-insensitively, got %v, %v", taken, err)
	}
	taken, err = store.EmailExists(ctx, "nobody@example.com")
	if err != nil || taken {
		t.Errorf("expected email to be free, got %v, %v", taken, err)
	}
}

func TestUpdateUser(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	jane := createUser(t, store, "jane@example.com", "jane")
	createUser(t, store, "john@example.com", "john")

	newName := "Janet"
	newHash := "new-hash"
	if err := store.UpdateUser(ctx, jane.ID, identity.Changes{Username: &newName, PasswordHash: &newHash}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ := store.GetUser(ctx, jane.ID)
	if got.Username != "Janet" || got.PasswordHash != "new-hash" {
		t.Errorf("update not applied: %+v", got)
	}

	// Keeping one's own email is not a conflict.
	own := "jane@example.com"
	if err := store.UpdateUser(ctx, jane.ID, identity.Changes{Email: &own}); err != nil {
		t.Errorf("expected no error updating to own email, got %v", err)
	}

	taken := "john@example.com"
	otherName := "renamed"
	err := store.UpdateUser(ctx, jane.ID, identity.Changes{Username: &otherName, Email: &taken})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	got, _ = store.GetUser(ctx, jane.ID)
	if got.Username != "Janet" {
		t.Errorf("failed update must not be partially applied, username is %q", got.Username)
	}
}

func TestUpdatePasswordByEmail(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createUser(t, store, "jane@example.com", "jane")

	if err := store.UpdatePasswordByEmail(ctx, "jane@example.com", "h2"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := store.UpdatePasswordByEmail(ctx, "ghost@example.com", "h2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletionLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	jane := createUser(t, store, "jane@example.com", "jane")
	john := createUser(t, store, "john@example.com", "john")

	if err := store.RequestDeletion(ctx, jane.ID, "token-jane"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	got, _ := store.GetUser(ctx, jane.ID)
	if !got.RequestedDeletion {
		t.Fatal("expected user to be flagged")
	}

	if err := store.CancelDeletion(ctx, "token-jane"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	got, _ = store.GetUser(ctx, jane.ID)
	if got.RequestedDeletion {
		t.Error("expected flag to be cleared")
	}
	if err := store.CancelDeletion(ctx, "token-jane"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second cancel, got %v", err)
	}

	if err := store.RequestDeletion(ctx, john.ID, "token-john"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if err := store.CancelDeletionForUser(ctx, john.ID); err != nil {
		t.Fatalf("cancel by user failed: %v", err)
	}
	got, _ = store.GetUser(ctx, john.ID)
	if got.RequestedDeletion {
		t.Error("expected flag to be cleared")
	}
}

func TestPurgeDeletions(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	jane := createUser(t, store, "jane@example.com", "jane")
	john := createUser(t, store, "john@example.com", "john")

	if err := store.RequestDeletion(ctx, jane.ID, "token-jane"); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	n, err := store.PurgeDeletions(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected nothing purged before grace period, got %d, %v", n, err)
	}

	n, err = store.PurgeDeletions(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one purged user, got %d, %v", n, err)
	}
	if _, err := store.GetUser(ctx, jane.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected purged user to be gone, got %v", err)
	}
	if _, err := store.GetUser(ctx, john.ID); err != nil {
		t.Errorf("unrelated user must survive, got %v", err)
	}
	if err := store.CancelDeletion(ctx, "token-jane"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected deletion row to be gone, got %v", err)
	}
}
