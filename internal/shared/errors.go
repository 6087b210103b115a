package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is the AuthError: the identity provider rejected
	// the credentials. It is never retried automatically.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrStore marks an unreachable assignment store, identity provider or
	// session cache. Callers surface it as transient.
	ErrStore = errors.New("store unavailable")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps an error onto text that can be shown in the UI.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrStore):
		return "The service is temporarily unavailable. Please try again."
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	default:
		return "Something went wrong. Please try again."
	}
}
