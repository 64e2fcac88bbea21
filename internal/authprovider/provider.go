// Package authprovider defines the remote auth provider contract and its
// implementations. The provider owns identities; the portal only consumes
// sign-in/sign-out events and tokens.
package authprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/cvfolio/cvfolio-portal/internal/models"
)

// ErrNotConfigured is returned when the provider has no backend URL.
// All auth operations fail fast with it.
var ErrNotConfigured = errors.New("auth provider not configured")

// AuthError covers bad credentials, expired tokens, and provider outages.
// Session state is left at its last-known-good value when one surfaces.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// Credential is an email/password pair presented at sign-in.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Subscriber receives auth-state changes. A nil identity means signed out.
type Subscriber func(identity *models.Identity)

// Provider is the remote auth provider contract.
//
// Subscribe registers a callback fired on sign-in, sign-out, and token
// refresh; the returned function unregisters it. CurrentIdentity reports
// the identity derived from the cached token without a network round-trip,
// which is what the reconciler's eager initialization path uses.
type Provider interface {
	SignIn(ctx context.Context, cred Credential) (*models.Identity, error)
	SignOut(ctx context.Context) error
	Subscribe(fn Subscriber) (unsubscribe func())
	CurrentToken() string
	CurrentIdentity() *models.Identity
}
