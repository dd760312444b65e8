package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// CredentialService implements the password and session flows on top of
// a user store, the refresh token manager and the token codec.
type CredentialService struct {
	users    UserStore
	refresh  *RefreshTokenManager
	tokens   TokenService
	hasher   PasswordHasher
	logger   Logger
	activity ActivitySink
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// CredentialOption configures a CredentialService
type CredentialOption func(*CredentialService)

// WithHasher sets the password hasher
func WithHasher(h PasswordHasher) CredentialOption {
	return func(s *CredentialService) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithLogger sets the service logger
func WithLogger(logger Logger) CredentialOption {
	return func(s *CredentialService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithActivitySink routes activity events to sink
func WithActivitySink(sink ActivitySink) CredentialOption {
	return func(s *CredentialService) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithClock overrides the time source used for token issuance and checks
func WithClock(now func() time.Time) CredentialOption {
	return func(s *CredentialService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCredentialService creates a CredentialService
func NewCredentialService(users UserStore, refresh *RefreshTokenManager, tokens TokenService, opts ...CredentialOption) *CredentialService {
	s := &CredentialService{
		users:    users,
		refresh:  refresh,
		tokens:   tokens,
		hasher:   NewBcryptHasher(),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Credentials is the username/password input of Register
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks both fields are present
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.Password, validation.Required, validation.Length(1, 72)),
	)
}

// Register creates a user with a hashed password. No token is issued.
func (s *CredentialService) Register(ctx context.Context, username, password string) (*User, error) {
	input := Credentials{Username: normalizeUsername(username), Password: password}
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid registration payload").
			WithTextCode(TextCodeInvalidRequestPayload).
			WithCode(errors.CodeBadRequest)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, &User{
		ID:           uuid.New(),
		Username:     input.Username,
		PasswordHash: hash,
	})
	if err != nil {
		if isRecordExists(err) {
			return nil, ErrAlreadyExists
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create user")
	}

	s.logger.Info("user registered", "user_id", user.ID.String())
	s.record(ctx, ActivityEventRegister, user, nil)

	return user, nil
}

// Login verifies the password and issues an access and refresh token.
// Unknown users and bad passwords are indistinguishable to the caller.
func (s *CredentialService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	username = normalizeUsername(username)
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if isRecordNotFound(err) {
			// unknown users pay the same bcrypt cost as bad passwords
			s.hasher.Verify(password, s.unknownUserHash())
			s.recordFailure(ctx, username, "unknown_user")
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user")
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.recordFailure(ctx, username, "bad_password")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.IssueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEventLoginSuccess, user, nil)

	return pair, nil
}

// Verify reports whether password matches the stored hash of username.
func (s *CredentialService) Verify(ctx context.Context, username, password string) (bool, error) {
	user, err := s.findUser(ctx, username)
	if err != nil {
		return false, err
	}
	return s.hasher.Verify(password, user.PasswordHash), nil
}

// ChangePassword replaces the stored hash after checking oldPassword.
// Issued tokens are left untouched.
func (s *CredentialService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := validation.Validate(newPassword, validation.Required, validation.Length(1, 72)); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid new password").
			WithTextCode(TextCodeInvalidRequestPayload).
			WithCode(errors.CodeBadRequest)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	if _, err := s.users.Save(ctx, user); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update password")
	}

	s.record(ctx, ActivityEventPasswordChanged, user, nil)

	return nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is returned unchanged.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	now := s.now()

	record, err := s.refresh.Redeem(ctx, refreshToken, now)
	if err != nil {
		if IsInvalidToken(err) {
			reason, _ := InvalidReasonOf(err)
			s.RecordActivity(ctx, ActivityEvent{
				EventType:  ActivityEventRefreshFailure,
				Metadata:   map[string]any{"reason": string(reason)},
				OccurredAt: now,
			})
		}
		return nil, err
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load refresh token owner")
	}

	issuedAt := now.Truncate(time.Second)
	access, err := s.tokens.Issue(user.Username, issuedAt)
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEventTokenRefresh, user, nil)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     record.Token,
		AccessExpiresAt:  issuedAt.Add(s.accessTTL()),
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// Logout invalidates the refresh token of username. Unknown users are a
// no-op and access tokens stay valid until they expire.
func (s *CredentialService) Logout(ctx context.Context, username string) error {
	user, err := s.users.FindByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if isRecordNotFound(err) {
			return nil
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to load user")
	}

	if err := s.refresh.Invalidate(ctx, user); err != nil {
		return err
	}

	s.record(ctx, ActivityEventLogout, user, nil)

	return nil
}

// ValidateSession reports whether token is a valid access token now
func (s *CredentialService) ValidateSession(token string) bool {
	_, err := s.tokens.Validate(token, s.now())
	return err == nil
}

// ValidateToken returns the subject of a valid access token
func (s *CredentialService) ValidateToken(token string) (string, error) {
	return s.tokens.Validate(token, s.now())
}

// IssueTokens mints an access token and rotates the refresh token of user.
func (s *CredentialService) IssueTokens(ctx context.Context, user *User) (*TokenPair, error) {
	if user == nil {
		return nil, errors.New("user is required", errors.CategoryBadInput)
	}

	// token claims carry whole seconds
	now := s.now().Truncate(time.Second)

	access, err := s.tokens.Issue(user.Username, now)
	if err != nil {
		return nil, err
	}

	refresh, err := s.refresh.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  now.Add(s.accessTTL()),
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// AccessTTL returns the access token lifetime, used for cookie max-age
func (s *CredentialService) AccessTTL() time.Duration {
	return s.accessTTL()
}

// Users returns the user store
func (s *CredentialService) Users() UserStore {
	return s.users
}

// RecordActivity forwards an event to the configured sink
func (s *CredentialService) RecordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record activity", "event", string(event.EventType), "error", err)
	}
}

func (s *CredentialService) accessTTL() time.Duration {
	if t, ok := s.tokens.(interface{ TTL() time.Duration }); ok {
		return t.TTL()
	}
	return DefaultAccessTokenTTL
}

func (s *CredentialService) findUser(ctx context.Context, username string) (*User, error) {
	user, err := s.users.FindByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user")
	}
	return user, nil
}

func (s *CredentialService) unknownUserHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("unknown-user-placeholder")
	})
	return s.dummyHash
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func (s *CredentialService) record(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	s.RecordActivity(ctx, ActivityEvent{
		EventType: eventType,
		UserID:    user.ID.String(),
		Username:  user.Username,
		Metadata:  metadata,
	})
}

func (s *CredentialService) recordFailure(ctx context.Context, username, reason string) {
	s.RecordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Username:  username,
		Metadata:  map[string]any{"reason": reason},
	})
}
