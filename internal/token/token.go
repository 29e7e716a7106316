// Package token defines the opaque identifiers used as keys of the ephemeral
// datasets: single-use URL tokens (email confirmation, password reset, account
// deletion cancel links) and captcha ids.
//
// Both types are plain strings. Their zero value is the empty sentinel used
// to preallocate deletion buffers; it is never produced by Parse or Generate,
// so it can never collide with a stored key.
package token

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/google/uuid"
)

// URLTokenLength is the exact length of a URL token.
const URLTokenLength = 150

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	ErrInvalidURLToken      = errors.New("invalid url token")
	ErrInvalidCaptchaID     = errors.New("invalid captcha id")
	ErrInvalidCaptchaAnswer = errors.New("invalid captcha answer")
)

// URLToken is a 150 character ASCII alphanumeric token carried in links.
type URLToken string

// EmptyURLToken is the placeholder value of deletion buffers.
const EmptyURLToken URLToken = ""

// ParseURLToken validates client input.
func ParseURLToken(raw string) (URLToken, error) {
	if len(raw) != URLTokenLength || !isAlphanumeric(raw) {
		return EmptyURLToken, ErrInvalidURLToken
	}
	return URLToken(raw), nil
}

// GenerateURLToken draws a new token from crypto/rand.
func GenerateURLToken() URLToken {
	return URLToken(randomString(URLTokenLength))
}

func (t URLToken) String() string { return string(t) }

// CaptchaID identifies a pending captcha challenge. It is a UUID string.
type CaptchaID string

const EmptyCaptchaID CaptchaID = ""

// ParseCaptchaID validates client input.
func ParseCaptchaID(raw string) (CaptchaID, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return EmptyCaptchaID, ErrInvalidCaptchaID
	}
	return CaptchaID(raw), nil
}

// NewCaptchaID returns a random (v4) captcha id.
func NewCaptchaID() CaptchaID {
	return CaptchaID(uuid.NewString())
}

func (id CaptchaID) String() string { return string(id) }

// CaptchaAnswer is the text a user reads off a captcha image.
type CaptchaAnswer string

// ParseCaptchaAnswer accepts 4 to 6 ASCII alphanumeric characters.
func ParseCaptchaAnswer(raw string) (CaptchaAnswer, error) {
	if len(raw) < 4 || len(raw) > 6 || !isAlphanumeric(raw) {
		return "", ErrInvalidCaptchaAnswer
	}
	return CaptchaAnswer(raw), nil
}

func (a CaptchaAnswer) String() string { return string(a) }

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

func randomString(n int) string {
	max := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is unusable.
			panic(err)
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b)
}
