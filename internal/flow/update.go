package flow

import (
	"context"
	"errors"

	"github.com/getkayan/accounts/internal/domain"
	"github.com/getkayan/accounts/internal/identity"
	"github.com/google/uuid"
)

const UpdateConfirmationSentence = "Update my account."

// UpdateForm changes one or more account fields. Empty New* fields are left
// unchanged.
type UpdateForm struct {
	NewEmail             string `form:"new_email"`
	NewUsername          string `form:"new_username"`
	NewPassword          string `form:"new_password"`
	NewPasswordConfirm   string `form:"new_password_confirm"`
	Password             string `form:"password"`
	ConfirmationSentence string `form:"confirmation_sentence"`
}

type UpdateManager struct {
	users  domain.UserStorage
	hasher domain.Hasher
}

func NewUpdateManager(users domain.UserStorage, hasher domain.Hasher) *UpdateManager {
	return &UpdateManager{users: users, hasher: hasher}
}

// Update applies the form to the user in a single transaction.
func (m *UpdateManager) Update(ctx context.Context, userID uuid.UUID, form UpdateForm) error {
	if form.ConfirmationSentence != UpdateConfirmationSentence {
		return ErrInvalidConfirmationSentence
	}

	password, err := ParsePassword(form.Password)
	if err != nil {
		return err
	}

	var changes identity.Changes
	if form.NewEmail != "" {
		email, err := ParseEmail(form.NewEmail)
		if err != nil {
			return err
		}
		changes.Email = &email
	}
	if form.NewUsername != "" {
		username, err := ParseUsername(form.NewUsername)
		if err != nil {
			return err
		}
		changes.Username = &username
	}
	var newPassword string
	if form.NewPassword != "" {
		if form.NewPasswordConfirm != form.NewPassword {
			return ErrInvalidForm
		}
		if newPassword, err = ParsePassword(form.NewPassword); err != nil {
			return err
		}
	}
	if changes.Empty() && newPassword == "" {
		return ErrInvalidForm
	}

	u, err := m.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrInvalidSessionCookie
	}
	if err != nil {
		return err
	}
	if !m.hasher.Compare(password, u.PasswordHash) {
		return ErrUpdateInvalidPassword
	}

	if newPassword != "" {
		hash, err := m.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		changes.PasswordHash = &hash
	}

	err = m.users.UpdateUser(ctx, userID, changes)
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		return ErrUpdateEmailTaken
	case errors.Is(err, domain.ErrUsernameTaken):
		return ErrUpdateUsernameTaken
	case errors.Is(err, domain.ErrNotFound):
		return ErrInvalidSessionCookie
	}
	return err
}
