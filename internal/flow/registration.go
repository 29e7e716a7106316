package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getkayan/accounts/internal/domain"
	"github.com/getkayan/accounts/internal/ephemeral"
	"github.com/getkayan/accounts/internal/identity"
	"github.com/getkayan/accounts/internal/mail"
	"github.com/getkayan/accounts/internal/record"
	"github.com/getkayan/accounts/internal/telemetry"
	"github.com/getkayan/accounts/internal/token"
	"github.com/google/uuid"
)

// EmailDataset is the ephemeral dataset of emailed URL tokens, used both for
// registration and password reset.
type EmailDataset = ephemeral.Dataset[token.URLToken, record.ConfirmEmail]

func NewEmailDataset(store ephemeral.HashStore) *EmailDataset {
	return ephemeral.NewDataset[token.URLToken](store, ephemeral.DatasetEmail, record.DecodeConfirmEmail)
}

// RegisterRequest starts a registration. Bzz is a honeypot field that humans
// never fill.
type RegisterRequest struct {
	Email         string `form:"email"`
	CaptchaID     string `form:"captcha_id"`
	CaptchaAnswer string `form:"captcha_answer"`
	Bzz           string `form:"bzz"`
}

// Register completes a registration with the token mailed by Request.
type Register struct {
	Token           string `form:"token"`
	Username        string `form:"username"`
	Password        string `form:"password"`
	PasswordConfirm string `form:"password_confirm"`
}

type RegistrationManager struct {
	users     domain.UserStorage
	emails    *EmailDataset
	captchas  *CaptchaManager
	hasher    domain.Hasher
	mailer    mail.Mailer
	baseURL   string
	telemetry *telemetry.Provider
	now       func() time.Time
}

func NewRegistrationManager(users domain.UserStorage, emails *EmailDataset, captchas *CaptchaManager, hasher domain.Hasher, mailer mail.Mailer, baseURL string) *RegistrationManager {
	return &RegistrationManager{
		users:    users,
		emails:   emails,
		captchas: captchas,
		hasher:   hasher,
		mailer:   mailer,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

func (m *RegistrationManager) SetTelemetry(p *telemetry.Provider) { m.telemetry = p }

// Request checks the email and captcha, then mails a confirmation link.
func (m *RegistrationManager) Request(ctx context.Context, req RegisterRequest) error {
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

	taken, err := m.users.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	if err := m.captchas.Verify(ctx, captchaID, answer); err != nil {
		return err
	}

	tok, err := issueEmailToken(ctx, m.emails, email, m.now())
	if err != nil {
		return err
	}

	return m.mailer.Send(ctx, mail.Message{
		To:      email,
		Subject: "Confirm your email address",
		Body:    fmt.Sprintf("Finish creating your account: %s/register?token=%s", m.baseURL, tok),
	})
}

// Complete creates the user whose email was confirmed by the token.
func (m *RegistrationManager) Complete(ctx context.Context, form Register) (u *identity.User, err error) {
	defer func() { m.telemetry.RecordRegistration(ctx, err == nil) }()

	password, err := ParseNewPassword(form.Password, form.PasswordConfirm)
	if err != nil {
		return nil, err
	}
	tok, err := token.ParseURLToken(form.Token)
	if err != nil {
		return nil, ErrInvalidURLToken
	}
	username, err := ParseUsername(form.Username)
	if err != nil {
		return nil, err
	}

	taken, err := m.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	confirmed, err := redeemEmailToken(ctx, m.emails, tok)
	if err != nil {
		return nil, err
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	u = &identity.User{
		ID:           uuid.New(),
		Email:        confirmed.Email,
		Username:     username,
		PasswordHash: hash,
	}
	if err := m.users.CreateUser(ctx, u); err != nil {
		return nil, storageError(err)
	}
	return u, nil
}

func issueEmailToken(ctx context.Context, emails *EmailDataset, email string, now time.Time) (token.URLToken, error) {
	value, err := record.EncodeConfirmEmail(email, now.Unix())
	if err != nil {
		return "", err
	}
	return emails.Issue(ctx, token.GenerateURLToken, value)
}

func redeemEmailToken(ctx context.Context, emails *EmailDataset, tok token.URLToken) (record.ConfirmEmail, error) {
	confirmed, err := emails.Redeem(ctx, tok)
	if errors.Is(err, ephemeral.ErrInvalidToken) {
		return confirmed, ErrInvalidURLToken
	}
	return confirmed, err
}

// storageError maps the uniqueness errors of the storage layer.
func storageError(err error) error {
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		return ErrEmailTaken
	case errors.Is(err, domain.ErrUsernameTaken):
		return ErrUsernameTaken
	}
	return err
}
