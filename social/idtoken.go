package social

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"

	auth "github.com/neuronurture/go-auth"
)

// IDTokenClaims are the OpenID Connect claims read from a provider ID token
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name,omitempty"`
}

// flexBool accepts both true and "true", some providers send strings
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		parsed, err := strconv.ParseBool(t)
		if err != nil {
			return fmt.Errorf("invalid email_verified value %q", t)
		}
		*b = flexBool(parsed)
	case nil:
		*b = false
	default:
		return fmt.Errorf("invalid email_verified type %T", v)
	}
	return nil
}

// IDTokenVerifierConfig configures an IDTokenVerifier
type IDTokenVerifierConfig struct {
	Provider   string
	Issuer     string
	Audience   string
	JWKSetURL  string
	Algorithms []string
	// KeyFunc overrides JWKSetURL, mostly for tests and static keys
	KeyFunc jwt.Keyfunc
	Now     func() time.Time
	// Logger receives background JWKS refresh failures
	Logger auth.Logger
}

// IDTokenVerifier validates ID tokens against a provider JWKS
type IDTokenVerifier struct {
	provider   string
	issuer     string
	audience   string
	algorithms []string
	keyfunc    jwt.Keyfunc
	jwks       *keyfunc.JWKS
	now        func() time.Time
}

// NewIDTokenVerifier creates a verifier. When no KeyFunc is given the JWKS
// at JWKSetURL is fetched and refreshed in the background.
func NewIDTokenVerifier(cfg IDTokenVerifierConfig) (*IDTokenVerifier, error) {
	v := &IDTokenVerifier{
		provider:   cfg.Provider,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		algorithms: cfg.Algorithms,
		keyfunc:    cfg.KeyFunc,
		now:        cfg.Now,
	}

	if len(v.algorithms) == 0 {
		v.algorithms = []string{jwt.SigningMethodRS256.Alg()}
	}

	if v.now == nil {
		v.now = time.Now
	}

	if v.keyfunc == nil {
		if cfg.JWKSetURL == "" {
			return nil, errors.New("id token verifier requires a JWK Set URL or KeyFunc", errors.CategoryInternal)
		}
		logger := cfg.Logger
		if logger == nil {
			logger = nopLogger{}
		}
		jwks, err := keyfunc.Get(cfg.JWKSetURL, keyfuncOptions(cfg.Provider, logger))
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load JWK Set")
		}
		v.jwks = jwks
		v.keyfunc = jwks.Keyfunc
	}

	return v, nil
}

// NewGivenKeyfunc returns a keyfunc backed by static keys indexed by kid
func NewGivenKeyfunc(keys map[string]any, alg string) jwt.Keyfunc {
	given := make(map[string]keyfunc.GivenKey, len(keys))
	for kid, key := range keys {
		given[kid] = keyfunc.NewGivenCustom(key, keyfunc.GivenKeyOptions{
			Algorithm: alg,
		})
	}
	return keyfunc.NewGiven(given).Keyfunc
}

func keyfuncOptions(provider string, logger auth.Logger) keyfunc.Options {
	return keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Error("failed to refresh JWK Set", "provider", provider, "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

// Close stops the background JWKS refresh, if any
func (v *IDTokenVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Verify checks signature, issuer, audience and expiry of raw and returns
// the identity assertion it carries.
func (v *IDTokenVerifier) Verify(ctx context.Context, raw string) (*Assertion, error) {
	if raw == "" {
		return nil, ErrInvalidIDToken
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.algorithms),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &IDTokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyfunc, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidIDToken
	}

	if claims.Email == "" {
		return nil, ErrMissingEmail
	}

	if !bool(claims.EmailVerified) {
		return nil, ErrEmailNotVerified
	}

	return &Assertion{
		Provider:      v.provider,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: true,
		Name:          claims.Name,
		Claims: map[string]any{
			"iss": claims.Issuer,
			"sub": claims.Subject,
		},
	}, nil
}
