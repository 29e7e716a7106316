package flow

import (
	"context"
	"errors"

	"github.com/getkayan/accounts/internal/domain"
	"github.com/getkayan/accounts/internal/identity"
	"github.com/getkayan/accounts/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type Login struct {
	Email    string `form:"email"`
	Password string `form:"password"`
	// CancelDeletion cancels a pending deletion of the account.
	CancelDeletion bool `form:"cancel_deletion"`
}

type LoginManager struct {
	users     domain.UserStorage
	deletions domain.DeletionStorage
	hasher    domain.Hasher
	telemetry *telemetry.Provider
}

func NewLoginManager(users domain.UserStorage, deletions domain.DeletionStorage, hasher domain.Hasher) *LoginManager {
	return &LoginManager{users: users, deletions: deletions, hasher: hasher}
}

func (m *LoginManager) SetTelemetry(p *telemetry.Provider) { m.telemetry = p }

// Authenticate checks the credentials and returns the user. A login on an
// account scheduled for deletion fails with ErrDeletionPending unless
// CancelDeletion is set, in which case the deletion request is dropped.
func (m *LoginManager) Authenticate(ctx context.Context, form Login) (u *identity.User, err error) {
	ctx, span := m.telemetry.Tracer().Start(ctx, "login.authenticate")
	defer func() {
		m.telemetry.RecordLogin(ctx, err == nil)
		telemetry.EndSpan(span, err)
	}()

	email, err := ParseEmail(form.Email)
	if err != nil {
		return nil, err
	}
	password, err := ParsePassword(form.Password)
	if err != nil {
		return nil, err
	}

	u, err = m.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !m.hasher.Compare(password, u.PasswordHash) {
		return nil, ErrInvalidPassword
	}

	if u.RequestedDeletion {
		if !form.CancelDeletion {
			return nil, ErrDeletionPending
		}
		if err := m.deletions.CancelDeletionForUser(ctx, u.ID); err != nil {
			return nil, err
		}
		u.RequestedDeletion = false
	}

	span.SetAttributes(attribute.String(telemetry.AttrUserID, u.ID.String()))
	return u, nil
}
