package social

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"

	auth "github.com/neuronurture/go-auth"
)

// Assertion is a trusted identity statement from an external provider.
type Assertion struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Claims        map[string]any
}

// Identifier returns the normalized local username for the assertion
func (a Assertion) Identifier() string {
	return strings.ToLower(strings.TrimSpace(a.Email))
}

// Result is the outcome of a provisioning run
type Result struct {
	User    *auth.User
	Tokens  *auth.TokenPair
	Created bool
}

// TokenIssuer mints credentials for a resolved user
type TokenIssuer interface {
	IssueTokens(ctx context.Context, user *auth.User) (*auth.TokenPair, error)
}

// Provisioner resolves an assertion to a local account, creating one on
// first login, and issues tokens for it.
type Provisioner struct {
	users    auth.UserStore
	issuer   TokenIssuer
	accounts SocialAccountRepository
	activity auth.ActivitySink
	logger   auth.Logger
	now      func() time.Time
}

// ProvisionerOption configures a Provisioner
type ProvisionerOption func(*Provisioner)

// WithAccountRepository records provider links for provisioned users
func WithAccountRepository(repo SocialAccountRepository) ProvisionerOption {
	return func(p *Provisioner) {
		p.accounts = repo
	}
}

// WithActivitySink sets the activity sink
func WithActivitySink(sink auth.ActivitySink) ProvisionerOption {
	return func(p *Provisioner) {
		if sink != nil {
			p.activity = sink
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger auth.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvisioner creates a Provisioner
func NewProvisioner(users auth.UserStore, issuer TokenIssuer, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		users:    users,
		issuer:   issuer,
		activity: auth.ActivitySinkFunc(nil),
		logger:   nopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Provision finds or creates the account named by the assertion email and
// issues an access and refresh token for it.
func (p *Provisioner) Provision(ctx context.Context, assertion Assertion) (*Result, error) {
	identifier := assertion.Identifier()
	if identifier == "" {
		return nil, ErrMissingEmail
	}

	user, created, err := p.findOrCreate(ctx, identifier)
	if err != nil {
		return nil, err
	}

	p.link(ctx, user, assertion)

	tokens, err := p.issuer.IssueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	eventType := auth.ActivityEventSocialLogin
	if created {
		eventType = auth.ActivityEventSocialProvision
	}
	if err := p.activity.Record(ctx, auth.ActivityEvent{
		EventType:  eventType,
		UserID:     user.ID.String(),
		Username:   user.Username,
		Metadata:   map[string]any{"provider": assertion.Provider},
		OccurredAt: p.now(),
	}); err != nil {
		p.logger.Warn("failed to record social activity", "error", err)
	}

	return &Result{User: user, Tokens: tokens, Created: created}, nil
}

func (p *Provisioner) findOrCreate(ctx context.Context, identifier string) (*auth.User, bool, error) {
	user, err := p.users.FindByUsername(ctx, identifier)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, auth.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to load federated user")
	}

	id, err := hashid.NewUUID(identifier)
	if err != nil {
		id = uuid.New()
	}

	user, err = p.users.Create(ctx, &auth.User{
		ID:       id,
		Username: identifier,
	})
	if err == nil {
		p.logger.Info("federated user provisioned", "user_id", user.ID.String())
		return user, true, nil
	}

	if !errors.Is(err, auth.ErrRecordExists) {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to create federated user")
	}

	// lost the first login race, the winner's row is authoritative
	user, err = p.users.FindByUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, auth.ErrRecordNotFound) {
			return nil, false, ErrProvisionFailed
		}
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to load federated user")
	}

	return user, false, nil
}

func (p *Provisioner) link(ctx context.Context, user *auth.User, assertion Assertion) {
	if p.accounts == nil || assertion.Provider == "" || assertion.Subject == "" {
		return
	}

	err := p.accounts.Upsert(ctx, &SocialAccount{
		UserID:         user.ID.String(),
		Provider:       assertion.Provider,
		ProviderUserID: assertion.Subject,
		Email:          assertion.Identifier(),
		Name:           assertion.Name,
		ProfileData:    assertion.Claims,
	})
	if err != nil {
		p.logger.Warn("failed to link social account",
			"provider", assertion.Provider,
			"user_id", user.ID.String(),
			"error", err,
		)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
