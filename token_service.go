package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService issues and validates access tokens. Validation is local:
// it never touches a store.
type TokenService interface {
	Issue(subject string, now time.Time) (string, error)
	Validate(token string, now time.Time) (string, error)
}

// JWTTokenService signs HS256 access tokens with a process wide key
type JWTTokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

var _ TokenService = (*JWTTokenService)(nil)

// NewTokenService creates a JWTTokenService. It fails when signingKey is
// empty so a misconfigured process never starts.
func NewTokenService(signingKey []byte, ttl time.Duration, issuer string, audience jwt.ClaimStrings, logger Logger) (*JWTTokenService, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	if logger == nil {
		logger = defLogger{}
	}

	key := make([]byte, len(signingKey))
	copy(key, signingKey)

	var aud jwt.ClaimStrings
	if len(audience) > 0 {
		aud = make(jwt.ClaimStrings, len(audience))
		copy(aud, audience)
	}

	return &JWTTokenService{
		signingKey: key,
		ttl:        ttl,
		issuer:     issuer,
		audience:   aud,
		logger:     logger,
	}, nil
}

// NewTokenServiceFromConfig creates a JWTTokenService from Config values
func NewTokenServiceFromConfig(cfg Config, logger Logger) (*JWTTokenService, error) {
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetAccessTokenTTL(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
	)
}

// TTL returns the access token lifetime
func (ts *JWTTokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue signs a token for subject valid from now until now+TTL. Both
// claims are whole seconds, so now is truncated before the expiry is derived.
func (ts *JWTTokenService) Issue(subject string, now time.Time) (string, error) {
	now = now.Truncate(time.Second)
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary access claims using the configured signing key.
func (ts *JWTTokenService) SignClaims(claims *AccessClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate returns the subject of token when its signature is valid and
// now is before its expiry.
func (ts *JWTTokenService) Validate(tokenString string, now time.Time) (string, error) {
	claims, err := ts.ParseClaims(tokenString, now)
	if err != nil {
		return "", err
	}
	return claims.Username(), nil
}

// ParseClaims verifies signature and expiry and returns the decoded claims
func (ts *JWTTokenService) ParseClaims(tokenString string, now time.Time) (*AccessClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Debug("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Username() == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
