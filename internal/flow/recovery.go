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

type ResetRequest struct {
	Email         string `form:"email"`
	CaptchaID     string `form:"captcha_id"`
	CaptchaAnswer string `form:"captcha_answer"`
	Bzz           string `form:"bzz"`
}

type Reset struct {
	Token              string `form:"token"`
	NewPassword        string `form:"new_password"`
	NewPasswordConfirm string `form:"new_password_confirm"`
}

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	DeleteAll(ctx context.Context, userID uuid.UUID) error
}

// RecoveryManager resets forgotten passwords through an emailed link.
type RecoveryManager struct {
	users    domain.UserStorage
	emails   *EmailDataset
	captchas *CaptchaManager
	hasher   domain.Hasher
	sessions SessionRevoker
	mailer   mail.Mailer
	baseURL  string
	now      func() time.Time
}

func NewRecoveryManager(users domain.UserStorage, emails *EmailDataset, captchas *CaptchaManager, hasher domain.Hasher, sessions SessionRevoker, mailer mail.Mailer, baseURL string) *RecoveryManager {
	return &RecoveryManager{
		users:    users,
		emails:   emails,
		captchas: captchas,
		hasher:   hasher,
		sessions: sessions,
		mailer:   mailer,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

// Request mails a reset link to the address. Unknown addresses get no mail
// but the call still succeeds, so the endpoint does not reveal which emails
// are registered.
func (m *RecoveryManager) Request(ctx context.Context, req ResetRequest) error {
	if req.Bzz != "" {
		return ErrNotABee
	}
	email, err := ParseEmail(req.Email)
	if err != nil {
		return err
	}
	captchaID, answer, err := parseCaptcha(req.CaptchaID, req.CaptchaAnswer)
	if err != nil {
		return err
	}

	if err := m.captchas.Verify(ctx, captchaID, answer); err != nil {
		return err
	}

	exists, err := m.users.EmailExists(ctx, email)
	if err != nil || !exists {
		return err
	}

	tok, err := issueEmailToken(ctx, m.emails, email, m.now())
	if err != nil {
		return err
	}

	return m.mailer.Send(ctx, mail.Message{
		To:      email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Choose a new password: %s/reset-password?token=%s", m.baseURL, tok),
	})
}

// Reset sets the new password of the user the token was issued for and ends
// all of their sessions.
func (m *RecoveryManager) Reset(ctx context.Context, form Reset) error {
	password, err := ParseNewPassword(form.NewPassword, form.NewPasswordConfirm)
	if err != nil {
		return err
	}
	tok, err := token.ParseURLToken(form.Token)
	if err != nil {
		return ErrInvalidURLToken
	}

	confirmed, err := redeemEmailToken(ctx, m.emails, tok)
	if err != nil {
		return err
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		return err
	}

	u, err := m.users.GetUserByEmail(ctx, confirmed.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrInvalidURLToken
	}
	if err != nil {
		return err
	}
	if err := m.users.UpdatePasswordByEmail(ctx, u.Email, hash); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrInvalidURLToken
		}
		return err
	}
	if err := m.sessions.DeleteAll(ctx, u.ID); err != nil {
		return err
	}

	return m.mailer.Send(ctx, mail.Message{
		To:      u.Email,
		Subject: "Your password was changed",
		Body:    fmt.Sprintf("Hi %s, the password of your account was just changed.", u.Username),
	})
}
