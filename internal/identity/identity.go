package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email    string    `gorm:"size:254;uniqueIndex" json:"email"`
	Username string    `gorm:"size:30" json:"username"`
	// UsernameKey is the lower-cased username; usernames are unique
	// regardless of case.
	UsernameKey       string    `gorm:"size:30;uniqueIndex" json:"-"`
	PasswordHash      string    `json:"-"`
	Bio               string    `json:"bio"`
	RequestedDeletion bool      `gorm:"index" json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AccountDeletion is a pending deletion request. ID is the URL token mailed
// to the user to cancel the request.
type AccountDeletion struct {
	ID        string    `gorm:"size:150;primaryKey"`
	AccountID uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	CreatedAt time.Time `gorm:"index"`
}

// Changes lists the fields of an account update. Nil fields are left as is.
type Changes struct {
	Email        *string
	Username     *string
	PasswordHash *string
}

func (c Changes) Empty() bool {
	return c.Email == nil && c.Username == nil && c.PasswordHash == nil
}
