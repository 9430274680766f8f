package service

import (
	"fmt"
	"net/http"
	"time"
)

// Error codes for caller-facing auth failures.
const (
	CodeInvalidArgument   = "invalid_argument"
	CodeRateLimited       = "rate_limited"
	CodeNotFound          = "not_found"
	CodeExpired           = "expired"
	CodeAttemptsExhausted = "attempts_exhausted"
	CodeWrongCode         = "wrong_code"
	CodeInternal          = "internal"
)

// AuthError is the typed error returned to callers, carrying a
// user-readable description and the HTTP status it maps to.
type AuthError struct {
	Code        string
	Description string
	Status      int

	// RetryAfter is populated for rate_limited errors.
	RetryAfter time.Duration
	// AttemptsRemaining is populated for wrong_code errors.
	AttemptsRemaining int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newAuthError(code, desc string, status int) *AuthError {
	return &AuthError{Code: code, Description: desc, Status: status}
}

func errInvalidArgument(desc string) *AuthError {
	return newAuthError(CodeInvalidArgument, desc, http.StatusBadRequest)
}

func errRateLimited(retryAfter time.Duration) *AuthError {
	err := newAuthError(CodeRateLimited,
		fmt.Sprintf("A code was sent recently. Try again in %d seconds.", int(retryAfter.Seconds()+0.5)),
		http.StatusTooManyRequests)
	err.RetryAfter = retryAfter
	return err
}

func errNotFound() *AuthError {
	return newAuthError(CodeNotFound, "No active code for this email. Request a new code.", http.StatusNotFound)
}

func errExpired() *AuthError {
	return newAuthError(CodeExpired, "The code has expired. Request a new code.", http.StatusGone)
}

func errAttemptsExhausted() *AuthError {
	return newAuthError(CodeAttemptsExhausted, "Too many incorrect attempts. Request a new code.", http.StatusTooManyRequests)
}

func errWrongCode(remaining int) *AuthError {
	err := newAuthError(CodeWrongCode,
		fmt.Sprintf("Incorrect code. %d attempts remaining.", remaining),
		http.StatusUnauthorized)
	err.AttemptsRemaining = remaining
	return err
}

func errInternal(desc string) *AuthError {
	return newAuthError(CodeInternal, desc, http.StatusInternalServerError)
}
