package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/goliatone/go-errors"
)

const refreshTokenBytes = 32

// RefreshTokenManager is the only component that creates or deletes
// refresh tokens. Each user has at most one active token; issuing a new
// one supersedes the previous.
type RefreshTokenManager struct {
	store  RefreshTokenStore
	ttl    time.Duration
	now    func() time.Time
	reader func([]byte) (int, error)
	logger Logger
}

// RefreshTokenOption configures a RefreshTokenManager
type RefreshTokenOption func(*RefreshTokenManager)

// WithRefreshTokenClock overrides the clock used to stamp expiries
func WithRefreshTokenClock(now func() time.Time) RefreshTokenOption {
	return func(m *RefreshTokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRefreshTokenLogger sets the manager logger
func WithRefreshTokenLogger(logger Logger) RefreshTokenOption {
	return func(m *RefreshTokenManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewRefreshTokenManager creates a manager issuing tokens valid for ttl
func NewRefreshTokenManager(store RefreshTokenStore, ttl time.Duration, opts ...RefreshTokenOption) *RefreshTokenManager {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	m := &RefreshTokenManager{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		reader: rand.Read,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// TTL returns the refresh token lifetime
func (m *RefreshTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a fresh token for user, atomically replacing any prior one.
func (m *RefreshTokenManager) Issue(ctx context.Context, user *User) (*RefreshToken, error) {
	if user == nil {
		return nil, errors.New("user is required", errors.CategoryBadInput)
	}

	value, err := m.generate()
	if err != nil {
		return nil, err
	}

	now := m.now()
	record := &RefreshToken{
		Token:     value,
		UserID:    user.ID,
		ExpiresAt: now.Add(m.ttl),
	}

	saved, err := m.store.Rotate(ctx, record)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to rotate refresh token")
	}

	m.logger.Debug("refresh token issued", "user_id", user.ID.String())

	return saved, nil
}

// Redeem returns the record for token when it exists and is not expired.
// Expired records are purged. A valid token is not rotated by use.
func (m *RefreshTokenManager) Redeem(ctx context.Context, token string, now time.Time) (*RefreshToken, error) {
	if token == "" {
		return nil, ErrRefreshTokenNotFound
	}

	record, err := m.store.FindByToken(ctx, token)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load refresh token")
	}

	if record.IsExpired(now) {
		// delete by value so a newer token for the same user survives
		if err := m.store.DeleteByToken(ctx, record.Token); err != nil && !isRecordNotFound(err) {
			m.logger.Warn("failed to purge expired refresh token", "user_id", record.UserID.String(), "error", err)
		}
		return nil, ErrRefreshTokenExpired
	}

	return record, nil
}

// Invalidate removes the active token of user. It is idempotent.
func (m *RefreshTokenManager) Invalidate(ctx context.Context, user *User) error {
	if user == nil {
		return nil
	}
	if err := m.store.DeleteByUser(ctx, user.ID); err != nil && !isRecordNotFound(err) {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete refresh token")
	}
	return nil
}

func (m *RefreshTokenManager) generate() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := m.reader(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
