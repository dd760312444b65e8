package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	auth "github.com/neuronurture/go-auth"
)

func TestOptionsDefaults(t *testing.T) {
	opts := auth.Options{SigningKey: testSigningKey}

	assert.Equal(t, auth.DefaultAccessTokenTTL, opts.GetAccessTokenTTL())
	assert.Equal(t, auth.DefaultRefreshTokenTTL, opts.GetRefreshTokenTTL())
	assert.Equal(t, "header:Authorization,cookie:jwt", opts.GetTokenLookup())
	assert.Equal(t, "Bearer", opts.GetAuthScheme())
	assert.Equal(t, "user", opts.GetContextKey())
	assert.Equal(t, "jwt", opts.GetCookieName())
	assert.False(t, opts.GetCookieSecure())
}

func TestOptionsOverrides(t *testing.T) {
	opts := auth.Options{
		SigningKey:      testSigningKey,
		Issuer:          "authd",
		Audience:        []string{"web"},
		AccessTokenTTL:  5 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		AuthScheme:      "Token",
		ContextKey:      "subject",
		CookieName:      "session",
		CookieSecure:    true,
	}

	assert.Equal(t, "authd", opts.GetIssuer())
	assert.Equal(t, []string{"web"}, opts.GetAudience())
	assert.Equal(t, 5*time.Minute, opts.GetAccessTokenTTL())
	assert.Equal(t, 24*time.Hour, opts.GetRefreshTokenTTL())
	assert.Equal(t, "header:Authorization,cookie:session", opts.GetTokenLookup())
	assert.Equal(t, "Token", opts.GetAuthScheme())
	assert.Equal(t, "subject", opts.GetContextKey())
	assert.Equal(t, "session", opts.GetCookieName())
	assert.True(t, opts.GetCookieSecure())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    auth.Options
		wantErr bool
	}{
		{name: "valid", opts: auth.Options{SigningKey: testSigningKey}},
		{name: "missing key", opts: auth.Options{}, wantErr: true},
		{name: "short key", opts: auth.Options{SigningKey: "short"}, wantErr: true},
		{name: "negative access ttl", opts: auth.Options{SigningKey: testSigningKey, AccessTokenTTL: -time.Second}, wantErr: true},
		{name: "negative refresh ttl", opts: auth.Options{SigningKey: testSigningKey, RefreshTokenTTL: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
