package auth

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultCookieName      = "jwt"
	DefaultAuthScheme      = "Bearer"
	DefaultContextKey      = "user"
	MinSigningKeyLength    = 32
)

// Options is the concrete Config used by the service and the binary.
// Zero values fall back to the defaults above.
type Options struct {
	SigningKey      string        `json:"signing_key" env:"SIGNING_KEY,required"`
	Issuer          string        `json:"issuer" env:"ISSUER"`
	Audience        []string      `json:"audience" env:"AUDIENCE"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl" env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	TokenLookup     string        `json:"token_lookup" env:"TOKEN_LOOKUP"`
	AuthScheme      string        `json:"auth_scheme" env:"AUTH_SCHEME"`
	ContextKey      string        `json:"context_key" env:"CONTEXT_KEY"`
	CookieName      string        `json:"cookie_name" env:"COOKIE_NAME"`
	CookieSecure    bool          `json:"cookie_secure" env:"COOKIE_SECURE"`
}

var _ Config = Options{}

// Validate checks the options are usable. A missing signing key is fatal.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.SigningKey, validation.Required, validation.Length(MinSigningKeyLength, 0)),
		validation.Field(&o.AccessTokenTTL, validation.By(nonNegativeDuration)),
		validation.Field(&o.RefreshTokenTTL, validation.By(nonNegativeDuration)),
	)
}

func nonNegativeDuration(value any) error {
	d, ok := value.(time.Duration)
	if !ok {
		return fmt.Errorf("must be a duration")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func (o Options) GetSigningKey() string { return o.SigningKey }

func (o Options) GetIssuer() string { return o.Issuer }

func (o Options) GetAudience() []string { return o.Audience }

func (o Options) GetAccessTokenTTL() time.Duration {
	if o.AccessTokenTTL <= 0 {
		return DefaultAccessTokenTTL
	}
	return o.AccessTokenTTL
}

func (o Options) GetRefreshTokenTTL() time.Duration {
	if o.RefreshTokenTTL <= 0 {
		return DefaultRefreshTokenTTL
	}
	return o.RefreshTokenTTL
}

// GetTokenLookup defaults to the bearer header with the session cookie as fallback
func (o Options) GetTokenLookup() string {
	if strings.TrimSpace(o.TokenLookup) == "" {
		return "header:Authorization,cookie:" + o.GetCookieName()
	}
	return o.TokenLookup
}

func (o Options) GetAuthScheme() string {
	if o.AuthScheme == "" {
		return DefaultAuthScheme
	}
	return o.AuthScheme
}

func (o Options) GetContextKey() string {
	if o.ContextKey == "" {
		return DefaultContextKey
	}
	return o.ContextKey
}

func (o Options) GetCookieName() string {
	if o.CookieName == "" {
		return DefaultCookieName
	}
	return o.CookieName
}

func (o Options) GetCookieSecure() bool { return o.CookieSecure }
