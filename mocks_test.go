package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/neuronurture/go-auth"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// memoryUsers is an in memory auth.UserStore
type memoryUsers struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*auth.User
	byName map[string]uuid.UUID
	err    error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{
		byID:   map[uuid.UUID]*auth.User{},
		byName: map[string]uuid.UUID{},
	}
}

func (m *memoryUsers) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.byName[username]
	if !ok {
		return nil, auth.ErrRecordNotFound
	}
	u := *m.byID[id]
	return &u, nil
}

func (m *memoryUsers) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) Create(_ context.Context, user *auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.byName[user.Username]; ok {
		return nil, auth.ErrRecordExists
	}
	cp := *user
	m.byID[cp.ID] = &cp
	m.byName[cp.Username] = cp.ID
	out := cp
	return &out, nil
}

func (m *memoryUsers) Save(_ context.Context, user *auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.byID[user.ID]; !ok {
		return nil, auth.ErrRecordNotFound
	}
	cp := *user
	m.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memoryUsers) remove(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byName[username]; ok {
		delete(m.byID, id)
		delete(m.byName, username)
	}
}

// memoryRefreshTokens is an in memory auth.RefreshTokenStore that keeps
// at most one row per user.
type memoryRefreshTokens struct {
	mu      sync.Mutex
	byToken map[string]*auth.RefreshToken
	deleted []string
	err     error
}

func newMemoryRefreshTokens() *memoryRefreshTokens {
	return &memoryRefreshTokens{byToken: map[string]*auth.RefreshToken{}}
}

func (m *memoryRefreshTokens) FindByToken(_ context.Context, token string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	rt, ok := m.byToken[token]
	if !ok {
		return nil, auth.ErrRecordNotFound
	}
	cp := *rt
	return &cp, nil
}

func (m *memoryRefreshTokens) Rotate(_ context.Context, record *auth.RefreshToken) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for token, rt := range m.byToken {
		if rt.UserID == record.UserID {
			delete(m.byToken, token)
		}
	}
	now := time.Now()
	cp := *record
	cp.CreatedAt = &now
	m.byToken[cp.Token] = &cp
	out := cp
	return &out, nil
}

func (m *memoryRefreshTokens) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for token, rt := range m.byToken {
		if rt.UserID == userID {
			delete(m.byToken, token)
			m.deleted = append(m.deleted, token)
		}
	}
	return nil
}

func (m *memoryRefreshTokens) DeleteByToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byToken[token]; ok {
		delete(m.byToken, token)
		m.deleted = append(m.deleted, token)
	}
	return nil
}

func (m *memoryRefreshTokens) countByUser(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rt := range m.byToken {
		if rt.UserID == userID {
			n++
		}
	}
	return n
}

// recordingSink captures activity events
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *recordingSink) last() auth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return auth.ActivityEvent{}
	}
	return r.events[len(r.events)-1]
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fastHasher() auth.BcryptHasher {
	return auth.BcryptHasher{Cost: bcrypt.MinCost}
}

type fixture struct {
	clock   *testClock
	users   *memoryUsers
	tokens  *memoryRefreshTokens
	codec   *auth.JWTTokenService
	refresh *auth.RefreshTokenManager
	sink    *recordingSink
	service *auth.CredentialService
}

func newFixture(tb testing.TB) *fixture {
	tb.Helper()

	clock := newTestClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	codec, err := auth.NewTokenService([]byte(testSigningKey), time.Hour, "", nil, nopLogger{})
	if err != nil {
		tb.Fatalf("token service: %v", err)
	}

	users := newMemoryUsers()
	tokens := newMemoryRefreshTokens()
	refresh := auth.NewRefreshTokenManager(tokens, 7*24*time.Hour,
		auth.WithRefreshTokenClock(clock.Now),
		auth.WithRefreshTokenLogger(nopLogger{}),
	)
	sink := &recordingSink{}

	service := auth.NewCredentialService(users, refresh, codec,
		auth.WithHasher(fastHasher()),
		auth.WithLogger(nopLogger{}),
		auth.WithActivitySink(sink),
		auth.WithClock(clock.Now),
	)

	return &fixture{
		clock:   clock,
		users:   users,
		tokens:  tokens,
		codec:   codec,
		refresh: refresh,
		sink:    sink,
		service: service,
	}
}
