package flow

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.]+$`)

// ParseEmail accepts a syntactically valid email address.
func ParseEmail(raw string) (string, error) {
	if err := validation.Validate(raw, validation.Required, validation.Length(3, 254), is.EmailFormat); err != nil {
		return "", ErrInvalidEmailFmt
	}
	return raw, nil
}

// ParseUsername accepts 2 to 30 letters, digits, underscores and dots.
func ParseUsername(raw string) (string, error) {
	if err := validation.Validate(raw, validation.Required, validation.Length(2, 30), validation.Match(usernamePattern)); err != nil {
		return "", ErrInvalidUsernameFmt
	}
	return raw, nil
}

// ParsePassword accepts 8 to 100 characters with at least one lower case
// letter, one upper case letter, one digit and one punctuation character.
func ParsePassword(raw string) (string, error) {
	if err := validation.Validate(raw, validation.Required, validation.Length(8, 100), validation.By(characterClasses)); err != nil {
		return "", ErrInvalidPasswordFmt
	}
	return raw, nil
}

// ParseNewPassword is ParsePassword for a password typed twice.
func ParseNewPassword(password, confirm string) (string, error) {
	if err := validation.Validate(confirm, validation.By(stringEquals(password))); err != nil {
		return "", ErrInvalidPasswordFmt
	}
	return ParsePassword(password)
}

func characterClasses(value interface{}) error {
	s, _ := value.(string)
	var lower, upper, digit, punct bool
	for _, r := range s {
		switch {
		case r > unicode.MaxASCII:
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r):
			punct = true
		}
	}
	if !lower || !upper || !digit || !punct {
		return errors.New("must mix lower case, upper case, digits and punctuation")
	}
	return nil
}

func stringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
