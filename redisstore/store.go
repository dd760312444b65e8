// Package redisstore keeps refresh tokens in Redis. Each token is a hash
// keyed by its value and each user has a pointer key naming the active
// token; rotations use WATCH/MULTI so concurrent writers retry.
package redisstore

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	auth "github.com/neuronurture/go-auth"
)

const (
	defaultPrefix     = "auth:"
	defaultRetention  = 24 * time.Hour
	defaultMaxRetries = 10

	fieldUserID    = "user_id"
	fieldExpiresAt = "expires_at"
	fieldCreatedAt = "created_at"
)

// ErrTooManyRetries is returned when a rotation keeps losing the race
var ErrTooManyRetries = errors.New("refresh token rotation retries exhausted", errors.CategoryInternal).
	WithCode(errors.CodeInternal)

// Store implements auth.RefreshTokenStore on Redis
type Store struct {
	client     redis.UniversalClient
	prefix     string
	retention  time.Duration
	maxRetries int
	now        func() time.Time
}

var _ auth.RefreshTokenStore = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithPrefix namespaces every key
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithRetention keeps expired records around for this long so redeem can
// tell expired tokens from unknown ones.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithMaxRetries bounds optimistic transaction retries
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithClock overrides the clock used to compute key expiry
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store backed by client
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:     client,
		prefix:     defaultPrefix,
		retention:  defaultRetention,
		maxRetries: defaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) tokenKey(token string) string {
	return s.prefix + "rt:token:" + token
}

func (s *Store) userKey(userID uuid.UUID) string {
	return s.prefix + "rt:user:" + userID.String()
}

func (s *Store) FindByToken(ctx context.Context, token string) (*auth.RefreshToken, error) {
	values, err := s.client.HGetAll(ctx, s.tokenKey(token)).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load refresh token")
	}
	if len(values) == 0 {
		return nil, auth.ErrRecordNotFound
	}
	return decode(token, values)
}

// Rotate replaces the active token of record.UserID with record.
func (s *Store) Rotate(ctx context.Context, record *auth.RefreshToken) (*auth.RefreshToken, error) {
	userKey := s.userKey(record.UserID)
	createdAt := s.now().UTC()
	record.CreatedAt = &createdAt

	ttl := record.ExpiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		ttl = time.Second
	}

	txf := func(tx *redis.Tx) error {
		previous, err := tx.Get(ctx, userKey).Result()
		if err != nil && !stderrors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != "" && previous != record.Token {
				pipe.Del(ctx, s.tokenKey(previous))
			}
			key := s.tokenKey(record.Token)
			pipe.HSet(ctx, key,
				fieldUserID, record.UserID.String(),
				fieldExpiresAt, strconv.FormatInt(record.ExpiresAt.UnixNano(), 10),
				fieldCreatedAt, strconv.FormatInt(createdAt.UnixNano(), 10),
			)
			pipe.Expire(ctx, key, ttl)
			pipe.Set(ctx, userKey, record.Token, ttl)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, userKey); err != nil {
		return nil, wrap(err, "failed to rotate refresh token")
	}

	return record, nil
}

func (s *Store) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	userKey := s.userKey(userID)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, userKey).Result()
		if stderrors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.tokenKey(current), userKey)
			return nil
		})
		return err
	}

	return wrap(s.watch(ctx, txf, userKey), "failed to delete refresh tokens by user")
}

// DeleteByToken removes token. The user pointer is cleared only while it
// still names this token.
func (s *Store) DeleteByToken(ctx context.Context, token string) error {
	tokenKey := s.tokenKey(token)

	owner, err := s.client.HGet(ctx, tokenKey, fieldUserID).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return wrap(err, "failed to delete refresh token")
	}

	userID, err := uuid.Parse(owner)
	if err != nil {
		return wrap(s.client.Del(ctx, tokenKey).Err(), "failed to delete refresh token")
	}
	userKey := s.userKey(userID)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, userKey).Result()
		if err != nil && !stderrors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, tokenKey)
			if current == token {
				pipe.Del(ctx, userKey)
			}
			return nil
		})
		return err
	}

	return wrap(s.watch(ctx, txf, tokenKey, userKey), "failed to delete refresh token")
}

func (s *Store) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTooManyRetries
}

func wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, ErrTooManyRetries) {
		return err
	}
	return errors.Wrap(err, errors.CategoryInternal, message)
}

func decode(token string, values map[string]string) (*auth.RefreshToken, error) {
	userID, err := uuid.Parse(values[fieldUserID])
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "invalid refresh token owner")
	}

	expires, err := strconv.ParseInt(values[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "invalid refresh token expiry")
	}

	record := &auth.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Unix(0, expires).UTC(),
	}

	if raw, ok := values[fieldCreatedAt]; ok {
		if created, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.Unix(0, created).UTC()
			record.CreatedAt = &t
		}
	}

	return record, nil
}
