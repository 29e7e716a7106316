package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidSession is returned for a missing, expired or malformed session id.
var ErrInvalidSession = errors.New("session: invalid session cookie")

// Session is a server-side login session. Only ID leaves the server, as the
// session cookie value.
type Session struct {
	ID        string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

func newSession(userID uuid.UUID, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	}
}
