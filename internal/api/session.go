package api

import (
	"errors"
	"net/http"

	"github.com/getkayan/accounts/internal/flow"
	"github.com/getkayan/accounts/internal/session"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const sessionKey = "session"

// loadSession resolves the session cookie, if any, and stores the session in
// the echo context. It never rejects a request.
func (h *Handler) loadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(h.cookieName)
		if err != nil || cookie.Value == "" {
			return next(c)
		}

		s, err := h.sessions.Validate(c.Request().Context(), cookie.Value)
		switch {
		case errors.Is(err, session.ErrInvalidSession):
			h.clearCookie(c)
		case err != nil:
			return respondError(c, err)
		default:
			c.Set(sessionKey, s)
		}
		return next(c)
	}
}

// requireSession rejects requests without a live session.
func (h *Handler) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if currentSession(c) == nil {
			return respondError(c, flow.ErrInvalidSessionCookie)
		}
		return next(c)
	}
}

func currentSession(c echo.Context) *session.Session {
	s, _ := c.Get(sessionKey).(*session.Session)
	return s
}

func (h *Handler) setCookie(c echo.Context, s *session.Session) {
	c.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// startSession opens a session for the user and sets the cookie. A session
// the request already carried is replaced.
func (h *Handler) startSession(c echo.Context, userID uuid.UUID) error {
	ctx := c.Request().Context()
	if old := currentSession(c); old != nil {
		if err := h.sessions.Delete(ctx, old.ID); err != nil {
			return err
		}
	}

	s, err := h.sessions.Create(ctx, userID)
	if err != nil {
		return err
	}
	h.setCookie(c, s)
	return nil
}
