// Package record defines the timestamped payloads stored in the ephemeral
// datasets. Every record serializes to a flat JSON object holding its fields
// plus an integer "timestamp" (Unix seconds of creation), e.g.
//
//	{"email":"jane@example.com","timestamp":1700000000}
//
// There is no version field; a format change requires stored records to be
// migrated or to expire first.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode reports a stored value that is not a valid record.
var ErrDecode = errors.New("record: malformed value")

// Record is a payload carrying its creation time.
type Record interface {
	Timestamp() int64
}

// Decoder parses the wire form of a record.
type Decoder[R Record] func(raw string) (R, error)

// ConfirmEmail is stored under a URL token until the link is redeemed.
type ConfirmEmail struct {
	Email     string `json:"email"`
	CreatedAt int64  `json:"timestamp"`
}

func (c ConfirmEmail) Timestamp() int64 { return c.CreatedAt }

// EncodeConfirmEmail returns the wire form of a ConfirmEmail record.
func EncodeConfirmEmail(email string, timestamp int64) (string, error) {
	return encode(ConfirmEmail{Email: email, CreatedAt: timestamp})
}

func DecodeConfirmEmail(raw string) (ConfirmEmail, error) {
	var w struct {
		Email     *string `json:"email"`
		Timestamp *int64  `json:"timestamp"`
	}
	if err := decode(raw, &w); err != nil {
		return ConfirmEmail{}, err
	}
	if w.Email == nil || w.Timestamp == nil {
		return ConfirmEmail{}, fmt.Errorf("%w: missing confirm email field", ErrDecode)
	}
	return ConfirmEmail{Email: *w.Email, CreatedAt: *w.Timestamp}, nil
}

// CaptchaFields is stored under a captcha id until the captcha is answered.
type CaptchaFields struct {
	Answer    string `json:"answer"`
	CreatedAt int64  `json:"timestamp"`
}

func (c CaptchaFields) Timestamp() int64 { return c.CreatedAt }

func EncodeCaptchaFields(answer string, timestamp int64) (string, error) {
	return encode(CaptchaFields{Answer: answer, CreatedAt: timestamp})
}

func DecodeCaptchaFields(raw string) (CaptchaFields, error) {
	var w struct {
		Answer    *string `json:"answer"`
		Timestamp *int64  `json:"timestamp"`
	}
	if err := decode(raw, &w); err != nil {
		return CaptchaFields{}, err
	}
	if w.Answer == nil || w.Timestamp == nil {
		return CaptchaFields{}, fmt.Errorf("%w: missing captcha field", ErrDecode)
	}
	return CaptchaFields{Answer: *w.Answer, CreatedAt: *w.Timestamp}, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
