package authprovider

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cvfolio/cvfolio-portal/internal/models"
)

// DevProvider is a local, in-memory auth provider for dev mode and tests.
// Users are registered with bcrypt-hashed passwords; tokens are opaque
// random strings valid until sign-out.
type DevProvider struct {
	mu       sync.RWMutex
	users    map[string]devUser // keyed by lowercase email
	token    string
	identity *models.Identity

	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int
}

type devUser struct {
	identity     models.Identity
	passwordHash []byte
}

// NewDevProvider creates an empty dev provider.
func NewDevProvider() *DevProvider {
	return &DevProvider{
		users: make(map[string]devUser),
		subs:  make(map[int]Subscriber),
	}
}

// Register adds a dev user. The password is bcrypt-hashed at registration.
func (p *DevProvider) Register(identity models.Identity, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[strings.ToLower(identity.Email)] = devUser{identity: identity, passwordHash: hash}
	return nil
}

// SignIn checks credentials against the registered users.
func (p *DevProvider) SignIn(_ context.Context, cred Credential) (*models.Identity, error) {
	p.mu.Lock()
	user, ok := p.users[strings.ToLower(strings.TrimSpace(cred.Email))]
	if !ok {
		p.mu.Unlock()
		return nil, &AuthError{Message: "invalid credentials"}
	}
	if err := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(cred.Password)); err != nil {
		p.mu.Unlock()
		return nil, &AuthError{Message: "invalid credentials"}
	}

	identity := user.identity
	p.token = uuid.New().String()
	p.identity = &identity
	p.mu.Unlock()

	p.notify(&identity)
	return &identity, nil
}

// SignOut clears the cached token and notifies subscribers.
func (p *DevProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.identity = nil
	p.mu.Unlock()

	p.notify(nil)
	return nil
}

// Subscribe registers a callback for auth-state changes.
func (p *DevProvider) Subscribe(fn Subscriber) func() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		delete(p.subs, id)
	}
}

// CurrentToken returns the cached token, or empty when signed out.
func (p *DevProvider) CurrentToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// CurrentIdentity returns the signed-in identity, or nil.
func (p *DevProvider) CurrentIdentity() *models.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.identity == nil {
		return nil
	}
	c := *p.identity
	return &c
}

func (p *DevProvider) notify(identity *models.Identity) {
	p.subMu.Lock()
	subs := make([]Subscriber, 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.subMu.Unlock()

	for _, fn := range subs {
		fn(identity)
	}
}
