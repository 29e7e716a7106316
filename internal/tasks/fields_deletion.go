package tasks

import (
	"context"
	"fmt"

	"github.com/getkayan/accounts/internal/config"
	"github.com/getkayan/accounts/internal/ephemeral"
	"github.com/getkayan/accounts/internal/record"
	"github.com/getkayan/accounts/internal/token"
	"go.uber.org/zap"
)

// StartFieldsDeletion builds the reaper matching hash and runs it until it
// fails or ctx is done. Only the "email" and "captcha" datasets have a
// reaper; any other name returns ErrInvalidHashName without touching the
// store.
func StartFieldsDeletion(ctx context.Context, store ephemeral.HashStore, settings config.TaskSettings, hash string, log *zap.Logger) error {
	cfg := ReaperConfig{
		Store:             store,
		Hash:              hash,
		Expiry:            settings.ExpiryTime,
		DeletionBulkCount: settings.DeletionBulkCount,
		Logger:            log,
	}

	switch hash {
	case ephemeral.DatasetEmail:
		r, err := NewReaper[token.URLToken](cfg, record.DecodeConfirmEmail)
		if err != nil {
			return fmt.Errorf("tasks: configuring %s reaper: %w", hash, err)
		}
		return r.Run(ctx)
	case ephemeral.DatasetCaptcha:
		r, err := NewReaper[token.CaptchaID](cfg, record.DecodeCaptchaFields)
		if err != nil {
			return fmt.Errorf("tasks: configuring %s reaper: %w", hash, err)
		}
		return r.Run(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidHashName, hash)
	}
}
