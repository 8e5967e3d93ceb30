package federation

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"sort"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-app/internal/logging"
	"github.com/yourusername/secrets-app/internal/users"
)

const (
	sessionKeyState = "oauth_state"

	loginPath   = "/login"
	successPath = "/secrets"
)

// ErrStateMismatch はコールバックの state がセッションと一致しない場合に返されます。
var ErrStateMismatch = errors.New("oauth state mismatch")

// SessionStarter はログイン済みセッションを発行します。
type SessionStarter interface {
	Establish(c *gin.Context, u *users.User) error
}

// Registry は有効な Provider をまとめ、認可フローのハンドラーを提供します。
type Registry struct {
	providers map[users.Provider]*Provider
	store     users.Store
	sessions  SessionStarter
	log       logging.Logger
}

// NewRegistry は Registry を作成します。
func NewRegistry(store users.Store, starter SessionStarter, log logging.Logger, providers ...*Provider) *Registry {
	if log == nil {
		log = logging.Discard()
	}
	r := &Registry{
		providers: make(map[users.Provider]*Provider, len(providers)),
		store:     store,
		sessions:  starter,
		log:       log,
	}
	for _, p := range providers {
		r.providers[p.Name] = p
	}
	return r
}

// Providers はログイン画面に表示する Provider を名前順で返します。
func (r *Registry) Providers() []*Provider {
	out := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Routes は /auth/:provider と /auth/:provider/secrets を登録します。
func (r *Registry) Routes(router gin.IRouter) {
	router.GET("/auth/:provider", r.Begin)
	router.GET("/auth/:provider/secrets", r.Callback)
}

// Begin は IdP の認可画面へリダイレクトします。
func (r *Registry) Begin(c *gin.Context) {
	p, ok := r.providers[users.Provider(c.Param("provider"))]
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	state, err := newState()
	if err != nil {
		r.log.Error(c.Request.Context(), "failed to generate oauth state", "error", err)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionKeyState, string(p.Name)+":"+state)
	if err := session.Save(); err != nil {
		r.log.Error(c.Request.Context(), "failed to save oauth state", "error", err)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	c.Redirect(http.StatusFound, p.OAuth.AuthCodeURL(state))
}

// Callback は認可コードを交換し、プロフィールから利用者を検索または作成してログインさせます。
func (r *Registry) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := r.providers[users.Provider(c.Param("provider"))]
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	log := r.log.With("provider", string(p.Name))

	session := sessions.Default(c)
	expected, _ := session.Get(sessionKeyState).(string)
	session.Delete(sessionKeyState)
	_ = session.Save()

	if reason := c.Query("error"); reason != "" {
		log.Warn(ctx, "provider denied login", "reason", reason)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	received := string(p.Name) + ":" + c.Query("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		log.Warn(ctx, "federated login rejected", "error", ErrStateMismatch)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	code := c.Query("code")
	if code == "" {
		log.Warn(ctx, "federated login rejected: missing code")
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	token, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		log.Warn(ctx, "oauth code exchange failed", "error", err)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	profile, err := p.FetchProfile(ctx, token)
	if err != nil {
		log.Warn(ctx, "federated login rejected", "error", err)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	u, created, err := r.store.FindOrCreateByProvider(ctx, p.Name, profile.ID, &users.User{
		Name:  profile.Name,
		Email: profile.Email,
	})
	if err != nil {
		log.Error(ctx, "failed to resolve federated user", "error", err)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	if err := r.sessions.Establish(c, u); err != nil {
		log.Error(ctx, "failed to establish session", "user_id", u.ID, "error", err)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	log.Info(ctx, "federated login", "user_id", u.ID, "created", created)
	c.Redirect(http.StatusFound, successPath)
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
