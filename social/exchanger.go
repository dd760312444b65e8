package social

import (
	"context"

	auth "github.com/neuronurture/go-auth"
)

// Verifier turns a raw provider token into an assertion
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Assertion, error)
}

// Exchanger verifies a provider ID token and provisions the account it
// names. It satisfies auth.FederatedExchanger.
type Exchanger struct {
	Verifier    Verifier
	Provisioner *Provisioner
}

var _ auth.FederatedExchanger = (*Exchanger)(nil)

// NewExchanger creates an Exchanger
func NewExchanger(verifier Verifier, provisioner *Provisioner) *Exchanger {
	return &Exchanger{Verifier: verifier, Provisioner: provisioner}
}

func (e *Exchanger) Exchange(ctx context.Context, idToken string) (*auth.TokenPair, error) {
	assertion, err := e.Verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	result, err := e.Provisioner.Provision(ctx, *assertion)
	if err != nil {
		return nil, err
	}

	return result.Tokens, nil
}
