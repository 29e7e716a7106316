package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getkayan/accounts/internal/domain"
	"github.com/getkayan/accounts/internal/identity"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func init() {
	Register("sqlite", GORMFactory(sqlite.Open))
	Register("postgres", GORMFactory(postgres.Open))
	Register("mysql", GORMFactory(mysql.Open))
}

// GORMFactory returns a factory that uses GORM with a specific dialector opener.
func GORMFactory(opener func(string) gorm.Dialector) Factory {
	return func(dsn string, opts Options) (domain.Storage, error) {
		gormConfig := opts.Gorm
		if gormConfig == nil {
			gormConfig = &gorm.Config{}
		}
		gormConfig.TranslateError = true

		db, err := gorm.Open(opener(dsn), gormConfig)
		if err != nil {
			return nil, err
		}

		repo := NewRepository(db)
		if !opts.SkipAutoMigrate {
			if err := repo.AutoMigrate(); err != nil {
				return nil, err
			}
		}

		return repo, nil
	}
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&identity.User{},
		&identity.AccountDeletion{},
	)
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) CreateUser(ctx context.Context, u *identity.User) error {
	u.UsernameKey = strings.ToLower(u.Username)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkAvailable(tx, uuid.Nil, &u.Email, &u.Username); err != nil {
			return err
		}
		if err := tx.Create(u).Error; err != nil {
			return translate(tx, err, u.Email)
		}
		return nil
	})
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	var u identity.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	var u identity.User
	if err := r.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return exists(r.db.WithContext(ctx), "email = ?", email)
}

func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return exists(r.db.WithContext(ctx), "username_key = ?", strings.ToLower(username))
}

func (r *Repository) UpdatePasswordByEmail(ctx context.Context, email, hash string) error {
	res := r.db.WithContext(ctx).Model(&identity.User{}).
		Where("email = ?", email).
		Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateUser(ctx context.Context, id uuid.UUID, c identity.Changes) error {
	if c.Empty() {
		return nil
	}

	updates := map[string]interface{}{}
	if c.Email != nil {
		updates["email"] = *c.Email
	}
	if c.Username != nil {
		updates["username"] = *c.Username
		updates["username_key"] = strings.ToLower(*c.Username)
	}
	if c.PasswordHash != nil {
		updates["password_hash"] = *c.PasswordHash
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkAvailable(tx, id, c.Email, c.Username); err != nil {
			return err
		}
		res := tx.Model(&identity.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			email := ""
			if c.Email != nil {
				email = *c.Email
			}
			return translate(tx, res.Error, email)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *Repository) RequestDeletion(ctx context.Context, userID uuid.UUID, token string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&identity.AccountDeletion{ID: token, AccountID: userID}).Error; err != nil {
			return err
		}
		res := tx.Model(&identity.User{}).Where("id = ?", userID).Update("requested_deletion", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *Repository) CancelDeletion(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d identity.AccountDeletion
		if err := tx.First(&d, "id = ?", token).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Delete(&d).Error; err != nil {
			return err
		}
		return tx.Model(&identity.User{}).Where("id = ?", d.AccountID).Update("requested_deletion", false).Error
	})
}

func (r *Repository) CancelDeletionForUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", userID).Delete(&identity.AccountDeletion{}).Error; err != nil {
			return err
		}
		return tx.Model(&identity.User{}).Where("id = ?", userID).Update("requested_deletion", false).Error
	})
}

func (r *Repository) PurgeDeletions(ctx context.Context, cutoff time.Time) (int, error) {
	var purged int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&identity.AccountDeletion{}).
			Where("created_at < ?", cutoff).
			Pluck("account_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("id IN ?", ids).Delete(&identity.User{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id IN ?", ids).Delete(&identity.AccountDeletion{}).Error; err != nil {
			return err
		}
		purged = len(ids)
		return nil
	})
	return purged, err
}

// checkAvailable rejects an email or username already used by a user other
// than self.
func checkAvailable(tx *gorm.DB, self uuid.UUID, email, username *string) error {
	if email != nil {
		taken, err := exists(tx, "email = ? AND id <> ?", *email, self)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrEmailTaken
		}
	}
	if username != nil {
		taken, err := exists(tx, "username_key = ? AND id <> ?", strings.ToLower(*username), self)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrUsernameTaken
		}
	}
	return nil
}

func exists(db *gorm.DB, query string, args ...interface{}) (bool, error) {
	var n int64
	if err := db.Model(&identity.User{}).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// translate maps a uniqueness violation raced past checkAvailable to the
// matching domain error.
func translate(tx *gorm.DB, err error, email string) error {
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	if email != "" {
		if taken, qerr := exists(tx, "email = ?", email); qerr == nil && taken {
			return domain.ErrEmailTaken
		}
	}
	return domain.ErrUsernameTaken
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("persistence: query failed: %w", err)
}
