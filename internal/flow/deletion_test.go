package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDeletionRequestAndCancel(t *testing.T) {
	f := newFixture(t)
	mgr := NewDeletionManager(f.repo, f.repo, f.hasher, f.revoker, f.mailer, "https://accounts.test", 15*24*time.Hour)
	ctx := context.Background()
	jane := f.addUser(t, "jane@example.com", "jane")

	err := mgr.Request(ctx, jane.ID, DeleteRequest{Password: testPassword, ConfirmationSentence: DeleteConfirmationSentence})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	u, _ := f.repo.GetUser(ctx, jane.ID)
	if !u.RequestedDeletion {
		t.Error("expected user to be flagged for deletion")
	}
	if len(f.revoker.revoked) != 1 {
		t.Error("expected sessions to be revoked")
	}

	msg := f.mailer.last(t)
	if !strings.Contains(msg.Body, "15 days") || !strings.Contains(msg.Body, "https://accounts.test/delete-account/cancel?token=") {
		t.Fatalf("unexpected mail %+v", msg)
	}
	tok := linkToken(t, msg.Body)
	if len(tok) != 150 {
		t.Fatalf("expected a 150 character token, got %d", len(tok))
	}

	if err := mgr.Cancel(ctx, tok); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	u, _ = f.repo.GetUser(ctx, jane.ID)
	if u.RequestedDeletion {
		t.Error("expected flag to be cleared")
	}
	if err := mgr.Cancel(ctx, tok); err != ErrInvalidURLToken {
		t.Errorf("expected ErrInvalidURLToken on second cancel, got %v", err)
	}
}

func TestDeletionRequestRejections(t *testing.T) {
	f := newFixture(t)
	mgr := NewDeletionManager(f.repo, f.repo, f.hasher, f.revoker, f.mailer, "https://accounts.test", time.Hour)
	ctx := context.Background()
	jane := f.addUser(t, "jane@example.com", "jane")

	err := mgr.Request(ctx, jane.ID, DeleteRequest{Password: testPassword, ConfirmationSentence: "delete"})
	if err != ErrInvalidConfirmationSentence {
		t.Errorf("expected ErrInvalidConfirmationSentence, got %v", err)
	}
	err = mgr.Request(ctx, jane.ID, DeleteRequest{Password: testNewPassword, ConfirmationSentence: DeleteConfirmationSentence})
	if err != ErrInvalidPassword {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
	err = mgr.Request(ctx, uuid.New(), DeleteRequest{Password: testPassword, ConfirmationSentence: DeleteConfirmationSentence})
	if err != ErrInvalidSessionCookie {
		t.Errorf("expected ErrInvalidSessionCookie, got %v", err)
	}
	if err := mgr.Cancel(ctx, "short"); err != ErrInvalidURLToken {
		t.Errorf("expected ErrInvalidURLToken, got %v", err)
	}
}
