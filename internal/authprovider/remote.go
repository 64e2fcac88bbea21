package authprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

// RemoteProvider is the HTTP client for the hosted auth service.
// It caches the issued token and identity in memory and notifies
// subscribers whenever the auth state changes.
type RemoteProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger

	mu       sync.RWMutex
	token    string
	identity *models.Identity

	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int
}

// NewRemoteProvider creates a provider targeting the given auth service URL.
// An empty URL yields an unconfigured provider whose operations fail fast
// with ErrNotConfigured.
func NewRemoteProvider(baseURL string, logger *common.Logger) *RemoteProvider {
	return &RemoteProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		subs:       make(map[int]Subscriber),
	}
}

// SignIn exchanges credentials for an identity and token.
// POST /api/auth/login -> { status: "ok", data: { token, identity } }
func (p *RemoteProvider) SignIn(ctx context.Context, cred Credential) (*models.Identity, error) {
	if p.baseURL == "" {
		return nil, ErrNotConfigured
	}

	bodyJSON, _ := json.Marshal(cred)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/auth/login", bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, &AuthError{Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Message: "provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &AuthError{Message: "read response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Message: "invalid credentials"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Message: fmt.Sprintf("provider returned %d", resp.StatusCode)}
	}

	var result struct {
		Status string `json:"status"`
		Data   struct {
			Token    string          `json:"token"`
			Identity models.Identity `json:"identity"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &AuthError{Message: "parse response", Err: err}
	}

	p.mu.Lock()
	p.token = result.Data.Token
	identity := result.Data.Identity
	p.identity = &identity
	p.mu.Unlock()

	p.notify(&identity)
	return &identity, nil
}

// SignOut revokes the cached token at the provider and clears local state.
// The cached state is only cleared when the provider call succeeds, so a
// failed sign-out leaves the session intact.
func (p *RemoteProvider) SignOut(ctx context.Context) error {
	if p.baseURL == "" {
		return ErrNotConfigured
	}

	token := p.CurrentToken()
	if token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/auth/logout", nil)
	if err != nil {
		return &AuthError{Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &AuthError{Message: "provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &AuthError{Message: fmt.Sprintf("provider returned %d", resp.StatusCode)}
	}

	p.mu.Lock()
	p.token = ""
	p.identity = nil
	p.mu.Unlock()

	p.notify(nil)
	return nil
}

// Subscribe registers a callback for auth-state changes.
func (p *RemoteProvider) Subscribe(fn Subscriber) func() {
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
func (p *RemoteProvider) CurrentToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// CurrentIdentity returns the identity derived from the cached token
// without a network round-trip.
func (p *RemoteProvider) CurrentIdentity() *models.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.identity == nil {
		return nil
	}
	c := *p.identity
	return &c
}

// StartRefresh polls the provider's session endpoint, firing a sign-out
// event when the token has expired and a refresh event when the identity
// record changed server-side. Stops when ctx is cancelled.
func (p *RemoteProvider) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshOnce(ctx)
		}
	}
}

func (p *RemoteProvider) refreshOnce(ctx context.Context) {
	token := p.CurrentToken()
	if token == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/auth/session", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn().Str("error", err.Error()).Msg("auth session refresh failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		p.mu.Lock()
		p.token = ""
		p.identity = nil
		p.mu.Unlock()
		p.notify(nil)
		return
	}
	if resp.StatusCode != http.StatusOK {
		return
	}

	var result struct {
		Status string `json:"status"`
		Data   struct {
			Identity models.Identity `json:"identity"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return
	}

	p.mu.Lock()
	changed := p.identity == nil || *p.identity != result.Data.Identity
	identity := result.Data.Identity
	p.identity = &identity
	p.mu.Unlock()

	if changed {
		p.notify(&identity)
	}
}

// notify calls every subscriber with the new auth state.
func (p *RemoteProvider) notify(identity *models.Identity) {
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
