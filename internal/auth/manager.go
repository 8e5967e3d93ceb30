// Package auth は認証・認可機能を提供します。
//
// パスワードの照合方式（平文 / bcrypt）は Credentials で切り替え、
// ログイン後の状態は署名付きクッキーのセッションで保持します。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-app/internal/logging"
	"github.com/yourusername/secrets-app/internal/users"
)

const (
	SessionCookieName    = "secrets_session"
	sessionKeyUser       = "auth_user"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "_csrf"
)

// 画面遷移先
const (
	HomePath     = "/"
	LoginPath    = "/login"
	RegisterPath = "/register"
	SecretsPath  = "/secrets"
	SubmitPath   = "/submit"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
)

var (
	// ErrInvalidCredentials はユーザー名またはパスワードが一致しない場合に返されます。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput は必須項目が不足している場合に返されます。
	ErrInvalidInput = errors.New("invalid input")
	// ErrThrottled はログイン失敗が続きロック中の場合に返されます。
	ErrThrottled = errors.New("too many login attempts")
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	store    users.Store
	creds    Credentials
	throttle Throttle
	log      logging.Logger
	now      func() time.Time
}

// NewManager は認証マネージャーを作成します。
// throttle が nil の場合はプロセス内で失敗回数を数えます。
func NewManager(store users.Store, creds Credentials, throttle Throttle, log logging.Logger) *Manager {
	if throttle == nil {
		throttle = NewMemoryThrottle()
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{
		store:    store,
		creds:    creds,
		throttle: throttle,
		log:      log,
		now:      time.Now,
	}
}

// Register はユーザーを作成します。
func (m *Manager) Register(ctx context.Context, username, password string) (*users.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	stored, err := m.creds.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &users.User{
		Username: username,
		Password: stored,
	}
	if err := m.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate はユーザー名とパスワードを照合します。
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*users.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	u, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !m.creds.Verify(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Establish はログイン済みのセッションを発行します。
func (m *Manager) Establish(c *gin.Context, u *users.User) error {
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate csrf token: %w", err)
	}

	session := sessions.Default(c)
	session.Clear()
	now := m.now()
	session.Set(sessionKeyUser, u.ID)
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Teardown はセッションを破棄します。
func (m *Manager) Teardown(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// CurrentUser は RequireLogin が設定したユーザーを返します。
func CurrentUser(c *gin.Context) (*users.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*users.User)
	return u, ok && u != nil
}

// SignedIn はセッションにログイン済みユーザーが記録されているかを返します。
// 有効期限は検証しないので、表示の切り替えにだけ使います。
func SignedIn(c *gin.Context) bool {
	if _, ok := CurrentUser(c); ok {
		return true
	}
	id, _ := sessions.Default(c).Get(sessionKeyUser).(string)
	return id != ""
}

// CSRFToken はフォームに埋め込む CSRF トークンを返します。
func CSRFToken(c *gin.Context) string {
	token, _ := sessions.Default(c).Get(sessionKeyCSRF).(string)
	return token
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
