package social

import "github.com/goliatone/go-errors"

const (
	TextCodeInvalidIDToken   = "social_invalid_id_token"
	TextCodeEmailNotVerified = "social_email_not_verified"
	TextCodeMissingEmail     = "social_missing_email"
	TextCodeProvisionFailed  = "social_provision_failed"
)

// ErrInvalidIDToken is returned when a provider ID token fails verification.
var ErrInvalidIDToken = errors.New("invalid id token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidIDToken).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified is returned when a provider email is not verified.
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeUnauthorized)

// ErrMissingEmail is returned when an assertion carries no email identifier.
var ErrMissingEmail = errors.New("assertion has no email", errors.CategoryAuth).
	WithTextCode(TextCodeMissingEmail).
	WithCode(errors.CodeUnauthorized)

// ErrProvisionFailed is returned when the local account cannot be resolved.
var ErrProvisionFailed = errors.New("failed to provision federated account", errors.CategoryInternal).
	WithTextCode(TextCodeProvisionFailed).
	WithCode(errors.CodeInternal)
