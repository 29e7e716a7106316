package flow

import (
	"context"
	"errors"
	"time"

	"github.com/getkayan/accounts/internal/captcha"
	"github.com/getkayan/accounts/internal/ephemeral"
	"github.com/getkayan/accounts/internal/record"
	"github.com/getkayan/accounts/internal/token"
	"github.com/google/uuid"
)

// CaptchaDataset is the ephemeral dataset of issued captchas.
type CaptchaDataset = ephemeral.Dataset[token.CaptchaID, record.CaptchaFields]

func NewCaptchaDataset(store ephemeral.HashStore) *CaptchaDataset {
	return ephemeral.NewDataset[token.CaptchaID](store, ephemeral.DatasetCaptcha, record.DecodeCaptchaFields)
}

// CaptchaImage is what the client receives: the id to send back with the
// answer and the base64 PNG to show.
type CaptchaImage struct {
	ID  string `json:"id"`
	Img string `json:"img"`
}

type CaptchaManager struct {
	captchas *CaptchaDataset
	generate func(seed string) (captcha.Challenge, error)
	now      func() time.Time
}

func NewCaptchaManager(captchas *CaptchaDataset) *CaptchaManager {
	return &CaptchaManager{captchas: captchas, generate: captcha.Generate, now: time.Now}
}

// Load issues a new captcha.
func (m *CaptchaManager) Load(ctx context.Context) (*CaptchaImage, error) {
	challenge, err := m.generate(uuid.NewString())
	if err != nil {
		return nil, ErrCaptchaGeneration
	}

	value, err := record.EncodeCaptchaFields(challenge.Answer, m.now().Unix())
	if err != nil {
		return nil, err
	}

	id, err := m.captchas.Issue(ctx, token.NewCaptchaID, value)
	if err != nil {
		return nil, err
	}

	return &CaptchaImage{ID: id.String(), Img: challenge.Image}, nil
}

// Reload discards the captcha with the given id and issues a new one.
func (m *CaptchaManager) Reload(ctx context.Context, rawID string) (*CaptchaImage, error) {
	id, err := token.ParseCaptchaID(rawID)
	if err != nil {
		return nil, ErrInvalidCaptchaID
	}

	existed, err := m.captchas.Discard(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, ErrInvalidCaptchaID
	}

	return m.Load(ctx)
}

// Verify redeems the captcha and compares its answer. A captcha can be
// verified once, whatever the outcome.
func (m *CaptchaManager) Verify(ctx context.Context, id token.CaptchaID, answer token.CaptchaAnswer) error {
	fields, err := m.captchas.Redeem(ctx, id)
	if errors.Is(err, ephemeral.ErrInvalidToken) {
		return ErrInvalidCaptchaID
	}
	if err != nil {
		return err
	}

	if fields.Answer != answer.String() {
		return ErrInvalidCaptchaAnswer
	}
	return nil
}

// parseCaptcha validates the captcha fields of a form.
func parseCaptcha(rawID, rawAnswer string) (token.CaptchaID, token.CaptchaAnswer, error) {
	id, err := token.ParseCaptchaID(rawID)
	if err != nil {
		return "", "", ErrInvalidCaptchaID
	}
	answer, err := token.ParseCaptchaAnswer(rawAnswer)
	if err != nil {
		return "", "", ErrInvalidCaptchaAnswer
	}
	return id, answer, nil
}
