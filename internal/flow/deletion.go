package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getkayan/accounts/internal/domain"
	"github.com/getkayan/accounts/internal/mail"
	"github.com/getkayan/accounts/internal/token"
	"github.com/google/uuid"
)

const DeleteConfirmationSentence = "Delete my account."

type DeleteRequest struct {
	Password             string `form:"password"`
	ConfirmationSentence string `form:"confirmation_sentence"`
}

// DeletionManager schedules account deletions. The account is removed for
// good by the purge task once the grace period has elapsed.
type DeletionManager struct {
	users       domain.UserStorage
	deletions   domain.DeletionStorage
	hasher      domain.Hasher
	sessions    SessionRevoker
	mailer      mail.Mailer
	baseURL     string
	gracePeriod time.Duration
}

func NewDeletionManager(users domain.UserStorage, deletions domain.DeletionStorage, hasher domain.Hasher, sessions SessionRevoker, mailer mail.Mailer, baseURL string, gracePeriod time.Duration) *DeletionManager {
	return &DeletionManager{
		users:       users,
		deletions:   deletions,
		hasher:      hasher,
		sessions:    sessions,
		mailer:      mailer,
		baseURL:     baseURL,
		gracePeriod: gracePeriod,
	}
}

// Request schedules the deletion of the user's account, logs them out
// everywhere and mails a cancellation link.
func (m *DeletionManager) Request(ctx context.Context, userID uuid.UUID, form DeleteRequest) error {
	if form.ConfirmationSentence != DeleteConfirmationSentence {
		return ErrInvalidConfirmationSentence
	}
	password, err := ParsePassword(form.Password)
	if err != nil {
		return err
	}

	u, err := m.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrInvalidSessionCookie
	}
	if err != nil {
		return err
	}
	if !m.hasher.Compare(password, u.PasswordHash) {
		return ErrInvalidPassword
	}

	tok := token.GenerateURLToken()
	if err := m.deletions.RequestDeletion(ctx, u.ID, tok.String()); err != nil {
		return err
	}
	if err := m.sessions.DeleteAll(ctx, u.ID); err != nil {
		return err
	}

	return m.mailer.Send(ctx, mail.Message{
		To:      u.Email,
		Subject: "Your account will be deleted",
		Body: fmt.Sprintf("Hi %s, we received a request to delete your account. "+
			"All data associated with it will be removed in %d days. "+
			"If you did not ask for this, log in or cancel the deletion here and change your password: "+
			"%s/delete-account/cancel?token=%s",
			u.Username, int(m.gracePeriod.Hours()/24), m.baseURL, tok),
	})
}

// Cancel drops the deletion request identified by the mailed token.
func (m *DeletionManager) Cancel(ctx context.Context, rawToken string) error {
	tok, err := token.ParseURLToken(rawToken)
	if err != nil {
		return ErrInvalidURLToken
	}
	err = m.deletions.CancelDeletion(ctx, tok.String())
	if errors.Is(err, domain.ErrNotFound) {
		return ErrInvalidURLToken
	}
	return err
}
