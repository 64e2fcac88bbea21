package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cvfolio/cvfolio-portal/internal/authprovider"
	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/docstore"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

func testLogger(t *testing.T) *common.Logger {
	t.Helper()
	return common.NewSilentLogger()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- fake auth provider ---

type fakeProvider struct {
	mu        sync.Mutex
	identity  *models.Identity
	signInErr error
	signOutErr error

	subMu   sync.Mutex
	subs    map[int]authprovider.Subscriber
	nextSub int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[int]authprovider.Subscriber)}
}

func (p *fakeProvider) SignIn(_ context.Context, cred authprovider.Credential) (*models.Identity, error) {
	p.mu.Lock()
	if p.signInErr != nil {
		err := p.signInErr
		p.mu.Unlock()
		return nil, err
	}
	identity := &models.Identity{UID: "uid-" + cred.Email, Email: cred.Email, DisplayName: cred.Email}
	p.identity = identity
	p.mu.Unlock()

	p.notify(identity)
	return identity, nil
}

func (p *fakeProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	if p.signOutErr != nil {
		err := p.signOutErr
		p.mu.Unlock()
		return err
	}
	p.identity = nil
	p.mu.Unlock()

	p.notify(nil)
	return nil
}

func (p *fakeProvider) Subscribe(fn authprovider.Subscriber) func() {
	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subMu.Unlock()
	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

func (p *fakeProvider) CurrentToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identity == nil {
		return ""
	}
	return "token-" + p.identity.UID
}

func (p *fakeProvider) CurrentIdentity() *models.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identity == nil {
		return nil
	}
	id := *p.identity
	return &id
}

// notify fires the auth stream, mimicking the real provider's event push.
func (p *fakeProvider) notify(identity *models.Identity) {
	p.subMu.Lock()
	subs := make([]authprovider.Subscriber, 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.subMu.Unlock()
	for _, fn := range subs {
		fn(identity)
	}
}

// --- fake document store ---

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]*models.PortfolioDocument
	getErr  error
	setErr  error
	putErr  error
	gates   map[string]chan struct{} // Get blocks on the user's gate when set
	getCalls  int
	setCalls  int
	putCalls  int
	fieldCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:  make(map[string]*models.PortfolioDocument),
		gates: make(map[string]chan struct{}),
	}
}

func (s *fakeStore) put(doc *models.PortfolioDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.UserID] = doc.Clone()
}

// gate makes the next Get for userID block until release is called.
func (s *fakeStore) gate(userID string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[userID] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (s *fakeStore) Get(_ context.Context, userID string) (*models.PortfolioDocument, error) {
	s.mu.Lock()
	s.getCalls++
	gate := s.gates[userID]
	failErr := s.getErr
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failErr != nil {
		return nil, failErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[userID]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *fakeStore) Set(_ context.Context, userID string, section models.Section, patch json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	doc, ok := s.docs[userID]
	if !ok {
		doc = models.NewPortfolioDocument(userID)
		s.docs[userID] = doc
	}
	return doc.ApplySection(section, patch)
}

func (s *fakeStore) Put(_ context.Context, doc *models.PortfolioDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.putErr != nil {
		return s.putErr
	}
	s.docs[doc.UserID] = doc.Clone()
	return nil
}

func (s *fakeStore) GetField(_ context.Context, userID, fieldPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldCalls++
	if s.getErr != nil {
		return "", s.getErr
	}
	doc, ok := s.docs[userID]
	if !ok {
		return "", docstore.ErrNotFound
	}
	switch fieldPath {
	case "api_key":
		return doc.APIKey, nil
	case "tier":
		return string(doc.Tier), nil
	}
	return "", errors.New("unknown field")
}

func (s *fakeStore) failGets(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

func (s *fakeStore) failSets(err error) {
	s.mu.Lock()
	s.setErr = err
	s.mu.Unlock()
}

// --- in-memory cache ---

type memCache struct {
	mu   sync.Mutex
	docs map[string]*models.PortfolioDocument
	writes  int
	deletes int
}

func newMemCache() *memCache {
	return &memCache{docs: make(map[string]*models.PortfolioDocument)}
}

func (c *memCache) Read(_ context.Context, userID string) *models.PortfolioDocument {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs[userID].Clone()
}

func (c *memCache) Write(_ context.Context, userID string, doc *models.PortfolioDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.docs[userID] = doc.Clone()
}

func (c *memCache) Delete(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.docs, userID)
}

func (c *memCache) has(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.docs[userID]
	return ok
}

// --- counting metrics ---

type countMetrics struct {
	loadSuccess   atomic.Int64
	loadFallback  atomic.Int64
	loadDegraded  atomic.Int64
	staleDiscards atomic.Int64
	signIns       atomic.Int64
	signOuts      atomic.Int64
	flushes       atomic.Int64
}

func (m *countMetrics) RecordLoadSuccess()   { m.loadSuccess.Add(1) }
func (m *countMetrics) RecordLoadFallback()  { m.loadFallback.Add(1) }
func (m *countMetrics) RecordLoadDegraded()  { m.loadDegraded.Add(1) }
func (m *countMetrics) RecordStaleDiscard()  { m.staleDiscards.Add(1) }
func (m *countMetrics) RecordSignIn()        { m.signIns.Add(1) }
func (m *countMetrics) RecordSignOut()       { m.signOuts.Add(1) }
func (m *countMetrics) RecordAutosaveFlush() { m.flushes.Add(1) }

// --- fixture ---

type fixture struct {
	provider *fakeProvider
	store    *fakeStore
	cache    *memCache
	metrics  *countMetrics
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		provider: newFakeProvider(),
		store:    newFakeStore(),
		cache:    newMemCache(),
		metrics:  &countMetrics{},
	}
	f.rec = New(f.provider, f.store, f.cache, testLogger(t), f.metrics)
	f.rec.Start(context.Background())
	t.Cleanup(f.rec.Stop)
	return f
}

func credFor(email string) authprovider.Credential {
	return authprovider.Credential{Email: email, Password: "pw"}
}

func (f *fixture) signIn(t *testing.T, email string) *models.SessionState {
	t.Helper()
	state, err := f.rec.SignIn(context.Background(), authprovider.Credential{Email: email, Password: "pw"})
	if err != nil {
		t.Fatalf("sign in %s: %v", email, err)
	}
	return state
}
