package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cvfolio/cvfolio-portal/internal/authprovider"
	"github.com/cvfolio/cvfolio-portal/internal/cache"
	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/docstore"
	"github.com/cvfolio/cvfolio-portal/internal/interfaces"
	"github.com/cvfolio/cvfolio-portal/internal/models"
	"github.com/cvfolio/cvfolio-portal/internal/session"
)

// memKV backs the local store and cache in handler tests.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) GetAll(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

type handlerFixture struct {
	rec     *session.Reconciler
	saver   *session.Autosaver
	auth    *AuthHandler
	profile *ProfileHandler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := common.NewSilentLogger()
	kv := newMemKV()

	provider := authprovider.NewDevProvider()
	if err := provider.Register(models.Identity{UID: "uid-alice", Email: "alice@example.com", DisplayName: "Alice"}, "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := session.New(provider, docstore.NewLocal(kv, logger), cache.New(kv, logger), logger, nil)
	rec.Start(context.Background())
	t.Cleanup(rec.Stop)

	saver := session.NewAutosaver(rec, 10*time.Millisecond, logger)
	t.Cleanup(saver.Stop)

	return &handlerFixture{
		rec:     rec,
		saver:   saver,
		auth:    NewAuthHandler(logger, rec, testSecret, false),
		profile: NewProfileHandler(logger, rec, saver, testSecret),
	}
}

// login drives HandleLogin and returns the session cookie.
func (f *handlerFixture) login(t *testing.T) *http.Cookie {
	t.Helper()
	body := strings.NewReader(`{"email":"alice@example.com","password":"correct horse"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rr := httptest.NewRecorder()
	f.auth.HandleLogin(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == "cvfolio_session" {
			return c
		}
	}
	t.Fatal("no session cookie set on login")
	return nil
}

func TestHandleLogin_Success(t *testing.T) {
	f := newHandlerFixture(t)

	body := strings.NewReader(`{"email":"alice@example.com","password":"correct horse"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rr := httptest.NewRecorder()
	f.auth.HandleLogin(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status string              `json:"status"`
		Data   models.SessionState `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Data.Identity.UID != "uid-alice" {
		t.Errorf("unexpected identity: %+v", resp.Data.Identity)
	}
	if resp.Data.Status != models.PortfolioLoaded {
		t.Errorf("expected loaded session in response, got %s", resp.Data.Status)
	}

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "cvfolio_session" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("no session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be http-only")
	}
	if _, err := ValidateJWT(cookie.Value, testSecret); err != nil {
		t.Errorf("cookie does not hold a valid token: %v", err)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	f := newHandlerFixture(t)

	body := strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rr := httptest.NewRecorder()
	f.auth.HandleLogin(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestHandleLogin_BadRequests(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing email", `{"password":"x"}`},
		{"missing password", `{"email":"a@b.c"}`},
		{"whitespace email", `{"email":"   ","password":"x"}`},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body))
		rr := httptest.NewRecorder()
		f.auth.HandleLogin(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rr.Code)
		}
	}
}

func TestHandleLogin_MethodNotAllowed(t *testing.T) {
	f := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	rr := httptest.NewRecorder()
	f.auth.HandleLogin(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if got := rr.Header().Get("Allow"); got != http.MethodPost {
		t.Errorf("expected Allow: POST header, got %q", got)
	}

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("405 body is not the JSON error envelope: %v", err)
	}
	if resp.Status != "error" || resp.Error == "" {
		t.Errorf("unexpected error envelope: %+v", resp)
	}
}

func TestHandleLogout_ExpiresCookie(t *testing.T) {
	f := newHandlerFixture(t)
	f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rr := httptest.NewRecorder()
	f.auth.HandleLogout(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var expired bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == "cvfolio_session" && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Error("logout must expire the session cookie")
	}
	if f.rec.Snapshot() != nil {
		t.Error("logout must clear the reconciled session")
	}
}

func TestHandleSession(t *testing.T) {
	f := newHandlerFixture(t)
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.profile.HandleSession(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data struct {
			Session    models.SessionState    `json:"session"`
			Completion map[models.Section]int `json:"completion"`
			Overall    int                    `json:"overall"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Data.Session.Identity.UID != "uid-alice" {
		t.Errorf("unexpected identity: %+v", resp.Data.Session.Identity)
	}
	if len(resp.Data.Completion) != len(models.Sections()) {
		t.Errorf("expected completion for every section, got %d", len(resp.Data.Completion))
	}
}

func TestHandleSession_NoCookie(t *testing.T) {
	f := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()
	f.profile.HandleSession(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestHandleSession_CookieOutlivesSession(t *testing.T) {
	f := newHandlerFixture(t)
	cookie := f.login(t)

	// The reconciled session is gone but the cookie is still
	// cryptographically valid; it must no longer grant access.
	if err := f.rec.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.profile.HandleSession(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after sign-out, got %d", rr.Code)
	}
}

func TestHandleUpdateSection(t *testing.T) {
	f := newHandlerFixture(t)
	cookie := f.login(t)

	body := strings.NewReader(`{"section":"contact","patch":{"headline":"Engineer"}}`)
	req := httptest.NewRequest(http.MethodPut, "/api/profile/section", body)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.profile.HandleUpdateSection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	state := f.rec.Snapshot()
	if state.Portfolio.Contact.Headline != "Engineer" {
		t.Errorf("update not applied: %q", state.Portfolio.Contact.Headline)
	}
}

func TestHandleUpdateSection_UnknownSection(t *testing.T) {
	f := newHandlerFixture(t)
	cookie := f.login(t)

	body := strings.NewReader(`{"section":"hobbies","patch":{}}`)
	req := httptest.NewRequest(http.MethodPut, "/api/profile/section", body)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.profile.HandleUpdateSection(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleUpdateSection_MissingPatch(t *testing.T) {
	f := newHandlerFixture(t)
	cookie := f.login(t)

	body := strings.NewReader(`{"section":"contact"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/profile/section", body)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.profile.HandleUpdateSection(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleAutosave_Queues(t *testing.T) {
	f := newHandlerFixture(t)
	cookie := f.login(t)

	body := strings.NewReader(`{"section":"contact","patch":{"headline":"Draft"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/profile/autosave", body)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.profile.HandleAutosave(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}

	// The debounced write lands after the idle window.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s := f.rec.Snapshot(); s != nil && s.Portfolio.Contact.Headline == "Draft" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("autosaved patch never landed")
}

func TestHandleAPIKey(t *testing.T) {
	f := newHandlerFixture(t)
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profile/apikey", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.profile.HandleAPIKey(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Data struct {
			APIKey  string `json:"api_key"`
			Preview string `json:"preview"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if !strings.HasPrefix(resp.Data.APIKey, "cvf_") {
		t.Errorf("expected cvf_ key, got %q", resp.Data.APIKey)
	}
	if !strings.Contains(resp.Data.Preview, "*") {
		t.Errorf("preview must be masked: %q", resp.Data.Preview)
	}
	if resp.Data.Preview == resp.Data.APIKey {
		t.Error("preview must differ from the raw key")
	}
}

func TestHandleRefresh(t *testing.T) {
	f := newHandlerFixture(t)
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/profile/refresh", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.profile.HandleRefresh(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestProfileEndpoints_RejectForgedCookie(t *testing.T) {
	f := newHandlerFixture(t)
	f.login(t)

	forged, _ := GenerateJWT(testClaims(), []byte("attacker-secret"))
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: "cvfolio_session", Value: forged})
	rr := httptest.NewRecorder()
	f.profile.HandleSession(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged cookie, got %d", rr.Code)
	}
}
