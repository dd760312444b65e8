package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	defaultTokenLookup       = "header:" + fiber.HeaderAuthorization + ",cookie:jwt"
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// TokenValidator returns the subject of a valid access token. It mirrors
// CredentialService.ValidateToken without importing the auth package.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// TokenValidatorFunc adapts a function to TokenValidator
type TokenValidatorFunc func(token string) (string, error)

func (f TokenValidatorFunc) ValidateToken(token string) (string, error) {
	return f(token)
}

// ValidationListener is invoked after a token has been validated.
type ValidationListener func(c *fiber.Ctx, subject string)

type Config struct {
	Filter      func(*fiber.Ctx) bool
	ContextKey  string
	TokenLookup string
	AuthScheme  string
	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// ContextEnricher propagates the subject to the request context.
	// A nil enricher leaves the user context untouched.
	ContextEnricher func(ctx context.Context, subject string) context.Context
	// ContextClearer removes any subject from the request context after a
	// failed validation.
	ContextClearer func(ctx context.Context) context.Context

	// FailureListener is invoked for rejected tokens. The request still
	// proceeds unauthenticated.
	FailureListener func(c *fiber.Ctx, err error)

	ValidationListeners []ValidationListener
}

// New returns the authenticate stage. It never rejects a request: a
// missing or invalid token leaves the request unauthenticated and the
// next handler decides. Pair it with RequireAuth on protected routes.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawTokenFromContext(c, extractors)
		if err != nil || raw == "" {
			cfg.clear(c)
			return c.Next()
		}

		subject, err := cfg.TokenValidator.ValidateToken(raw)
		if err != nil || subject == "" {
			cfg.clear(c)
			if cfg.FailureListener != nil {
				cfg.FailureListener(c, err)
			}
			return c.Next()
		}

		c.Locals(cfg.ContextKey, subject)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), subject))
		}

		for _, listener := range cfg.ValidationListeners {
			if listener != nil {
				listener(c, subject)
			}
		}

		return c.Next()
	}
}

// Subject returns the subject bound by New under the default context key
func Subject(c *fiber.Ctx, key ...string) (string, bool) {
	contextKey := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		contextKey = key[0]
	}
	subject, ok := c.Locals(contextKey).(string)
	if !ok || subject == "" {
		return "", false
	}
	return subject, true
}

// RequireAuth is the authorize stage: it answers 401 unless New bound a
// subject for this request.
func RequireAuth(key ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := Subject(c, key...); !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":     "authentication required",
				"text_code": "unauthenticated",
			})
		}
		return c.Next()
	}
}

// DefaultContextKey is the Locals key holding the subject
const DefaultContextKey = "user"

func (cfg *Config) clear(c *fiber.Ctx) {
	c.Locals(cfg.ContextKey, nil)
	if cfg.ContextClearer != nil {
		c.SetUserContext(cfg.ContextClearer(c.UserContext()))
	}
}

func ExtractRawTokenFromContext(c *fiber.Ctx, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	// header:Authorization,cookie:jwt,query:auth_token,param:token
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "param":
			extractors = append(extractors, jwtFromParam(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c *fiber.Ctx) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			if a == "" {
				return "", ErrJWTMissingOrMalformed
			}
			return strings.TrimSpace(a), nil
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromParam returns a function that extracts token from the url param string.
func jwtFromParam(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Params(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
