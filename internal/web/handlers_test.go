package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/secrets-app/internal/auth"
	"github.com/yourusername/secrets-app/internal/config"
	"github.com/yourusername/secrets-app/internal/federation"
	"github.com/yourusername/secrets-app/internal/users"
)

var csrfPattern = regexp.MustCompile(`name="_csrf" value="([0-9a-f]+)"`)

type failingListStore struct {
	*users.MemoryStore
}

func (failingListStore) ListWithSecrets(ctx context.Context) ([]*users.User, error) {
	return nil, errors.New("connection refused")
}

type client struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
}

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range cl.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	cl.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(cl.cookies, c.Name)
			continue
		}
		cl.cookies[c.Name] = c
	}
	return rec
}

func (cl *client) get(path string) *httptest.ResponseRecorder {
	return cl.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (cl *client) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return cl.do(req)
}

func (cl *client) csrfToken() string {
	cl.t.Helper()
	rec := cl.get(auth.SubmitPath)
	if rec.Code != http.StatusOK {
		cl.t.Fatalf("GET /submit: unexpected status %d", rec.Code)
	}
	m := csrfPattern.FindStringSubmatch(rec.Body.String())
	if m == nil {
		cl.t.Fatalf("csrf token not found in submit page:\n%s", rec.Body.String())
	}
	return m[1]
}

func newTestApp(t *testing.T, store users.Store, visibility string, registry *federation.Registry) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authManager := auth.NewManager(store, auth.Bcrypt{Cost: bcrypt.MinCost}, nil, nil)
	h, err := NewHandler(store, authManager, registry, Options{SecretsVisibility: visibility}, nil)
	if err != nil {
		t.Fatalf("NewHandler returned error: %v", err)
	}

	router := gin.New()
	router.Use(sessions.Sessions(auth.SessionCookieName, memstore.NewStore([]byte("test-secret"))))
	h.Routes(router)
	return router
}

func newClient(t *testing.T, router http.Handler) *client {
	return &client{t: t, router: router, cookies: map[string]*http.Cookie{}}
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != location {
		t.Fatalf("Location = %q, want %q", got, location)
	}
}

func TestStaticPagesRender(t *testing.T) {
	router := newTestApp(t, users.NewMemoryStore(), config.VisibilityMembers, nil)
	cl := newClient(t, router)

	for path, want := range map[string]string{
		"/":         "share them anonymously",
		"/login":    `action="/login"`,
		"/register": `action="/register"`,
	} {
		rec := cl.get(path)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: unexpected status %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("GET %s: expected %q in body:\n%s", path, want, rec.Body.String())
		}
	}
}

func TestLoginPageListsProviders(t *testing.T) {
	store := users.NewMemoryStore()
	registry := federation.NewRegistry(store, nil, nil, federation.Google("id", "secret", "http://localhost:3000"))
	router := newTestApp(t, store, config.VisibilityMembers, registry)

	rec := newClient(t, router).get("/login")
	if !strings.Contains(rec.Body.String(), `href="/auth/google"`) {
		t.Fatalf("expected google link in login page:\n%s", rec.Body.String())
	}

	rec = newClient(t, router).get("/auth/google")
	if rec.Code != http.StatusFound || !strings.HasPrefix(rec.Header().Get("Location"), "https://accounts.google.com/") {
		t.Fatalf("unexpected begin response: %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestSubmitThenSecretsShowsOwner(t *testing.T) {
	router := newTestApp(t, users.NewMemoryStore(), config.VisibilityMembers, nil)
	alice := newClient(t, router)

	expectRedirect(t, alice.post("/register", url.Values{"username": {"alice"}, "password": {"pw1"}}), "/secrets")

	token := alice.csrfToken()
	expectRedirect(t, alice.post("/submit", url.Values{"secret": {"hello"}, "_csrf": {token}}), "/secrets")

	rec := alice.get("/secrets")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<span class="owner">alice</span>: <span class="secret">hello</span>`) {
		t.Fatalf("expected alice's secret in listing:\n%s", body)
	}
}

func TestSubmitOverwritesPreviousSecret(t *testing.T) {
	store := users.NewMemoryStore()
	router := newTestApp(t, store, config.VisibilityMembers, nil)
	alice := newClient(t, router)

	alice.post("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	alice.post("/submit", url.Values{"secret": {"first"}, "_csrf": {alice.csrfToken()}})
	alice.post("/submit", url.Values{"secret": {"second"}, "_csrf": {alice.csrfToken()}})

	u, err := store.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindByUsername returned error: %v", err)
	}
	if u.Secret != "second" {
		t.Fatalf("Secret = %q, want %q", u.Secret, "second")
	}
}

func TestSubmitEmptySecretRedirectsBack(t *testing.T) {
	router := newTestApp(t, users.NewMemoryStore(), config.VisibilityMembers, nil)
	alice := newClient(t, router)

	alice.post("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	expectRedirect(t, alice.post("/submit", url.Values{"secret": {"   "}, "_csrf": {alice.csrfToken()}}), "/submit")
}

func TestSubmitWithoutCSRFIsForbidden(t *testing.T) {
	router := newTestApp(t, users.NewMemoryStore(), config.VisibilityMembers, nil)
	alice := newClient(t, router)

	alice.post("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	if rec := alice.post("/submit", url.Values{"secret": {"hello"}}); rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestLogoutThenSubmitRedirectsToLogin(t *testing.T) {
	router := newTestApp(t, users.NewMemoryStore(), config.VisibilityMembers, nil)
	alice := newClient(t, router)

	alice.post("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	expectRedirect(t, alice.get("/logout"), "/")
	expectRedirect(t, alice.get("/submit"), "/login")
	expectRedirect(t, alice.post("/submit", url.Values{"secret": {"x"}}), "/login")
}

func TestSecretsVisibility(t *testing.T) {
	store := users.NewMemoryStore()
	ctx := context.Background()
	u := &users.User{Username: "alice", Secret: "hello"}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	members := newTestApp(t, store, config.VisibilityMembers, nil)
	expectRedirect(t, newClient(t, members).get("/secrets"), "/login")

	public := newTestApp(t, store, config.VisibilityPublic, nil)
	rec := newClient(t, public).get("/secrets")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hello") {
		t.Fatalf("expected secret in public listing:\n%s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `href="/login"`) {
		t.Fatalf("expected login link for anonymous visitor:\n%s", rec.Body.String())
	}
}

func TestSecretsListingStoreFailure(t *testing.T) {
	store := failingListStore{MemoryStore: users.NewMemoryStore()}
	router := newTestApp(t, store, config.VisibilityPublic, nil)

	if rec := newClient(t, router).get("/secrets"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
