// Package captcha renders digit captcha challenges.
package captcha

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/dchest/captcha"
)

const (
	DigitCount = 6
	Width      = captcha.StdWidth
	Height     = captcha.StdHeight
)

// Challenge is a rendered captcha: the expected answer and the PNG image
// encoded as standard base64.
type Challenge struct {
	Answer string
	Image  string
}

// Generate draws DigitCount random digits and renders them. seed is passed to
// the renderer to derandomize the distortion; any unique string works.
func Generate(seed string) (Challenge, error) {
	digits := captcha.RandomDigits(DigitCount)

	var buf bytes.Buffer
	if _, err := captcha.NewImage(seed, digits, Width, Height).WriteTo(&buf); err != nil {
		return Challenge{}, fmt.Errorf("captcha: rendering failed: %w", err)
	}

	answer := make([]byte, len(digits))
	for i, d := range digits {
		answer[i] = '0' + d
	}

	return Challenge{
		Answer: string(answer),
		Image:  base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
