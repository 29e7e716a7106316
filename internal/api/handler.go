// Package api exposes the account flows over HTTP.
//
// Forms are posted as application/x-www-form-urlencoded. Failures of a flow
// are answered with 400 and a one-entry JSON object naming the error
// category and kind, for example {"validation_error": "invalid_email_fmt"}.
// The login session lives server side; the client only holds its id in an
// HttpOnly, Secure, SameSite=Strict cookie.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/getkayan/accounts/internal/domain"
	"github.com/getkayan/accounts/internal/flow"
	"github.com/getkayan/accounts/internal/session"
	"github.com/labstack/echo/v4"
)

// Managers groups the flows served by the Handler.
type Managers struct {
	Captcha      *flow.CaptchaManager
	Registration *flow.RegistrationManager
	Login        *flow.LoginManager
	Recovery     *flow.RecoveryManager
	Update       *flow.UpdateManager
	Deletion     *flow.DeletionManager
}

type Handler struct {
	flows      Managers
	sessions   *session.Manager
	users      domain.UserStorage
	cookieName string
}

func NewHandler(flows Managers, sessions *session.Manager, users domain.UserStorage, cookieName string) *Handler {
	if cookieName == "" {
		cookieName = "id"
	}
	return &Handler{flows: flows, sessions: sessions, users: users, cookieName: cookieName}
}

// UserData is returned by GET /user/data.
type UserData struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	// RegistrationDate is a Unix timestamp in seconds.
	RegistrationDate string `json:"registration_date"`
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.Use(h.loadSession)

	g.GET("/captcha", h.HandleLoadCaptcha)
	g.GET("/captcha/reload", h.HandleReloadCaptcha)

	g.POST("/user/create/request", h.HandleCreateUserRequest)
	g.POST("/user/create", h.HandleCreateUser)
	g.POST("/user/login", h.HandleLogin)
	g.GET("/user/logout", h.HandleLogout)
	g.GET("/user/delete/cancel", h.HandleCancelDeletion)

	g.POST("/reset-password/request", h.HandleResetPasswordRequest)
	g.POST("/reset-password", h.HandleResetPassword)

	// Protected routes
	protected := g.Group("/user", h.requireSession)
	protected.POST("/update", h.HandleUpdateUser)
	protected.GET("/data", h.HandleUserData)
	protected.POST("/delete/request", h.HandleDeleteUserRequest)
}

func (h *Handler) HandleLoadCaptcha(c echo.Context) error {
	img, err := h.flows.Captcha.Load(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, img)
}

func (h *Handler) HandleReloadCaptcha(c echo.Context) error {
	img, err := h.flows.Captcha.Reload(c.Request().Context(), c.QueryParam("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, img)
}

func (h *Handler) HandleCreateUserRequest(c echo.Context) error {
	if currentSession(c) != nil {
		return c.Redirect(http.StatusSeeOther, "/home")
	}

	var form flow.RegisterRequest
	if err := bind(c, &form); err != nil {
		return respondError(c, err)
	}
	if err := h.flows.Registration.Request(c.Request().Context(), form); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) HandleCreateUser(c echo.Context) error {
	var form flow.Register
	if err := bind(c, &form); err != nil {
		return respondError(c, err)
	}

	u, err := h.flows.Registration.Complete(c.Request().Context(), form)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.startSession(c, u.ID); err != nil {
		return respondError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, "/home")
	return c.NoContent(http.StatusCreated)
}

func (h *Handler) HandleLogin(c echo.Context) error {
	if currentSession(c) != nil {
		return c.Redirect(http.StatusSeeOther, "/home")
	}

	var form flow.Login
	if err := bind(c, &form); err != nil {
		return respondError(c, err)
	}

	u, err := h.flows.Login.Authenticate(c.Request().Context(), form)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.startSession(c, u.ID); err != nil {
		return respondError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, "/home")
	return c.NoContent(http.StatusOK)
}

func (h *Handler) HandleLogout(c echo.Context) error {
	if s := currentSession(c); s != nil {
		if err := h.sessions.Delete(c.Request().Context(), s.ID); err != nil {
			return respondError(c, err)
		}
		h.clearCookie(c)
	}

	c.Response().Header().Set(echo.HeaderLocation, "/login")
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) HandleUpdateUser(c echo.Context) error {
	var form flow.UpdateForm
	if err := bind(c, &form); err != nil {
		return respondError(c, err)
	}

	if err := h.flows.Update.Update(c.Request().Context(), currentSession(c).UserID, form); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) HandleUserData(c echo.Context) error {
	u, err := h.users.GetUser(c.Request().Context(), currentSession(c).UserID)
	if errors.Is(err, domain.ErrNotFound) {
		h.clearCookie(c)
		return respondError(c, flow.ErrInvalidSessionCookie)
	}
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, UserData{
		Email:            u.Email,
		Username:         u.Username,
		Bio:              u.Bio,
		RegistrationDate: strconv.FormatInt(u.CreatedAt.Unix(), 10),
	})
}

func (h *Handler) HandleDeleteUserRequest(c echo.Context) error {
	var form flow.DeleteRequest
	if err := bind(c, &form); err != nil {
		return respondError(c, err)
	}

	if err := h.flows.Deletion.Request(c.Request().Context(), currentSession(c).UserID, form); err != nil {
		return respondError(c, err)
	}
	h.clearCookie(c)

	c.Response().Header().Set(echo.HeaderLocation, "/login")
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) HandleCancelDeletion(c echo.Context) error {
	if err := h.flows.Deletion.Cancel(c.Request().Context(), c.QueryParam("token")); err != nil {
		return respondError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, "/login")
	return c.NoContent(http.StatusOK)
}

func (h *Handler) HandleResetPasswordRequest(c echo.Context) error {
	if currentSession(c) != nil {
		return c.Redirect(http.StatusSeeOther, "/home")
	}

	var form flow.ResetRequest
	if err := bind(c, &form); err != nil {
		return respondError(c, err)
	}
	if err := h.flows.Recovery.Request(c.Request().Context(), form); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) HandleResetPassword(c echo.Context) error {
	var form flow.Reset
	if err := bind(c, &form); err != nil {
		return respondError(c, err)
	}
	if err := h.flows.Recovery.Reset(c.Request().Context(), form); err != nil {
		return respondError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, "/login")
	return c.NoContent(http.StatusNoContent)
}
