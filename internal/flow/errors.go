package flow

// Domain errors are grouped in categories. The API renders an error as
// {"<category>": "<kind>"}, so kinds are stable snake_case identifiers.

// FieldError reports a malformed or unacceptable form field.
type FieldError string

const (
	ErrEmailTaken           FieldError = "email_taken"
	ErrUsernameTaken        FieldError = "username_taken"
	ErrInvalidPasswordFmt   FieldError = "invalid_password_fmt"
	ErrInvalidUsernameFmt   FieldError = "invalid_username_fmt"
	ErrInvalidEmailFmt      FieldError = "invalid_email_fmt"
	ErrInvalidCaptchaID     FieldError = "invalid_captcha_id"
	ErrInvalidCaptchaAnswer FieldError = "invalid_captcha_answer"
	ErrInvalidURLToken      FieldError = "invalid_url_token"
	ErrNotABee              FieldError = "not_a_bee"
)

func (e FieldError) Error() string    { return "validation error: " + string(e) }
func (e FieldError) Category() string { return "validation_error" }
func (e FieldError) Kind() string     { return string(e) }

// AuthError reports a failed login or password check.
type AuthError string

const (
	ErrInvalidCredentials AuthError = "invalid_credentials"
	ErrInvalidPassword    AuthError = "invalid_password"
	// ErrDeletionPending is returned by a login on an account scheduled for
	// deletion when the user did not ask to cancel it.
	ErrDeletionPending AuthError = "deletion_pending"
)

func (e AuthError) Error() string    { return "auth error: " + string(e) }
func (e AuthError) Category() string { return "auth_error" }
func (e AuthError) Kind() string     { return string(e) }

// UpdateError reports a rejected account update or deletion request.
type UpdateError string

const (
	ErrInvalidForm                 UpdateError = "invalid_form"
	ErrInvalidConfirmationSentence UpdateError = "invalid_confirmation_sentence"
	ErrUpdateUsernameTaken         UpdateError = "username_taken"
	ErrUpdateEmailTaken            UpdateError = "email_taken"
	ErrUpdateInvalidPassword       UpdateError = "invalid_password"
)

func (e UpdateError) Error() string    { return "update user error: " + string(e) }
func (e UpdateError) Category() string { return "update_user_error" }
func (e UpdateError) Kind() string     { return string(e) }

// SessionError reports a request whose session does not resolve to a user.
type SessionError string

const ErrInvalidSessionCookie SessionError = "invalid_session_cookie"

func (e SessionError) Error() string    { return "session error: " + string(e) }
func (e SessionError) Category() string { return "session_error" }
func (e SessionError) Kind() string     { return string(e) }

// RegistrationError reports a failure specific to the registration flow.
type RegistrationError string

const ErrCaptchaGeneration RegistrationError = "captcha_generation"

func (e RegistrationError) Error() string    { return "registration error: " + string(e) }
func (e RegistrationError) Category() string { return "registration_error" }
func (e RegistrationError) Kind() string     { return string(e) }

// Categorized is implemented by every domain error of this package.
type Categorized interface {
	error
	Category() string
	Kind() string
}
