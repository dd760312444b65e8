package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeAlreadyExists         = "user_already_exists"
	TextCodeNotFound              = "user_not_found"
	TextCodeInvalidCredentials    = "invalid_credentials"
	TextCodeTokenMalformed        = "token_malformed"
	TextCodeTokenExpired          = "token_expired"
	TextCodeRefreshTokenNotFound  = "refresh_token_not_found"
	TextCodeRefreshTokenExpired   = "refresh_token_expired"
	TextCodeEmptyPassword         = "empty_password"
	TextCodeMissingSigningKey     = "missing_signing_key"
	TextCodeUnauthenticated       = "unauthenticated"
	TextCodeInvalidRequestPayload = "invalid_request_payload"
	TextCodeRecordNotFound        = "record_not_found"
	TextCodeRecordExists          = "record_exists"
)

// ErrAlreadyExists is returned when registering a username that is taken
var ErrAlreadyExists = errors.New("user already exists", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyExists).
	WithCode(errors.CodeConflict)

// ErrNotFound is returned when an operation targets an unknown user
var ErrNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidCredentials covers both unknown usernames and bad passwords
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail parsing or signature checks
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned for correctly signed tokens past their expiry
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshTokenNotFound is returned when a refresh token is unknown or superseded
var ErrRefreshTokenNotFound = errors.New("refresh token not found", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshTokenExpired is returned when a refresh token is past its expiry
var ErrRefreshTokenExpired = errors.New("refresh token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword password does not match the stored hash
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrMissingSigningKey is returned at construction when no signing key is configured
var ErrMissingSigningKey = errors.New("signing key is required", errors.CategoryInternal).
	WithTextCode(TextCodeMissingSigningKey).
	WithCode(errors.CodeInternal)

// ErrUnauthenticated is returned by routes that require an identity
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrRecordNotFound is the store level signal for a missing record
var ErrRecordNotFound = errors.New("record not found", errors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(errors.CodeNotFound)

// ErrRecordExists is the store level signal for a unique constraint violation
var ErrRecordExists = errors.New("record already exists", errors.CategoryConflict).
	WithTextCode(TextCodeRecordExists).
	WithCode(errors.CodeConflict)

// InvalidReason describes why a token was rejected
type InvalidReason string

const (
	ReasonMalformed InvalidReason = "malformed"
	ReasonExpired   InvalidReason = "expired"
	ReasonNotFound  InvalidReason = "notFound"
)

// InvalidReasonOf reports the rejection reason carried by a token error.
func InvalidReasonOf(err error) (InvalidReason, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, ErrTokenMalformed):
		return ReasonMalformed, true
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrRefreshTokenExpired):
		return ReasonExpired, true
	case errors.Is(err, ErrRefreshTokenNotFound):
		return ReasonNotFound, true
	default:
		return "", false
	}
}

// IsInvalidToken reports whether err rejects an access or refresh token
func IsInvalidToken(err error) bool {
	_, ok := InvalidReasonOf(err)
	return ok
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrRefreshTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed")
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

func isRecordExists(err error) bool {
	return errors.Is(err, ErrRecordExists)
}
