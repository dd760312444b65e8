package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetTokenLookup() string
	GetAuthScheme() string
	GetContextKey() string
	GetCookieName() string
	GetCookieSecure() bool
}

// UserStore persists user credential records. Implementations must
// enforce uniqueness of Username and report violations as ErrRecordExists.
// Lookups for missing users return ErrRecordNotFound.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	Save(ctx context.Context, user *User) (*User, error)
}

// RefreshTokenStore persists refresh token records.
//
// Rotate must delete every token owned by record.UserID and insert record
// as a single atomic step: concurrent calls for the same user leave exactly
// one row behind. DeleteByUser and DeleteByToken are no-ops when nothing
// matches.
type RefreshTokenStore interface {
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	Rotate(ctx context.Context, record *RefreshToken) (*RefreshToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteByToken(ctx context.Context, token string) error
}

// TokenPair is returned by every operation that issues credentials
type TokenPair struct {
	AccessToken      string    `json:"token"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + msg + formatPairs(args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + msg + formatPairs(args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + msg + formatPairs(args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + msg + formatPairs(args))
}

// formatPairs renders key/value args as " k=v k2=v2"
func formatPairs(args []any) string {
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return b.String()
}
