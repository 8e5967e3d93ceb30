// Package web は画面のルーティングとハンドラーを提供します。
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-app/internal/auth"
	"github.com/yourusername/secrets-app/internal/config"
	"github.com/yourusername/secrets-app/internal/federation"
	"github.com/yourusername/secrets-app/internal/logging"
	"github.com/yourusername/secrets-app/internal/users"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options は画面の挙動を切り替える設定です。
type Options struct {
	// SecretsVisibility は /secrets にログインを要求するかどうかです（members, public）。
	SecretsVisibility string
}

// Handler は画面系のハンドラーをまとめた構造体です。
type Handler struct {
	store     users.Store
	auth      *auth.Manager
	providers *federation.Registry
	opts      Options
	log       logging.Logger
	templates *template.Template
}

// NewHandler は Handler を作成します。providers は nil でも構いません。
func NewHandler(store users.Store, authManager *auth.Manager, providers *federation.Registry, opts Options, log logging.Logger) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if opts.SecretsVisibility == "" {
		opts.SecretsVisibility = config.VisibilityMembers
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Handler{
		store:     store,
		auth:      authManager,
		providers: providers,
		opts:      opts,
		log:       log,
		templates: tmpl,
	}, nil
}

// Routes は画面系のルートを登録します。
func (h *Handler) Routes(router *gin.Engine) {
	router.SetHTMLTemplate(h.templates)

	router.GET(auth.HomePath, h.Home)
	router.GET(auth.LoginPath, h.LoginPage)
	router.GET(auth.RegisterPath, h.RegisterPage)
	router.POST(auth.RegisterPath, h.auth.HandleRegister)
	router.POST(auth.LoginPath, h.auth.HandleLogin)
	router.GET("/logout", h.auth.HandleLogout)

	if h.opts.SecretsVisibility == config.VisibilityPublic {
		router.GET(auth.SecretsPath, h.Secrets)
	} else {
		router.GET(auth.SecretsPath, h.auth.RequireLogin(), h.Secrets)
	}

	submit := router.Group(auth.SubmitPath, h.auth.RequireLogin(), h.auth.VerifyCSRF())
	{
		submit.GET("", h.SubmitPage)
		submit.POST("", h.Submit)
	}

	if h.providers != nil {
		h.providers.Routes(router)
	}
}

// Home は GET / のハンドラーです。
func (h *Handler) Home(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", gin.H{})
}

// LoginPage は GET /login のハンドラーです。
func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{"Providers": h.providerList()})
}

// RegisterPage は GET /register のハンドラーです。
func (h *Handler) RegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", gin.H{"Providers": h.providerList()})
}

type secretView struct {
	Owner string
	Text  string
}

// Secrets は GET /secrets のハンドラーです。秘密が登録されている全ユーザーを表示します。
func (h *Handler) Secrets(c *gin.Context) {
	list, err := h.store.ListWithSecrets(c.Request.Context())
	if err != nil {
		h.log.Error(c.Request.Context(), "failed to list secrets", "error", err)
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{})
		return
	}

	views := make([]secretView, 0, len(list))
	for _, u := range list {
		views = append(views, secretView{Owner: u.DisplayName(), Text: u.Secret})
	}

	c.HTML(http.StatusOK, "secrets.html", gin.H{
		"Secrets":  views,
		"LoggedIn": auth.SignedIn(c),
	})
}

// SubmitPage は GET /submit のハンドラーです。
func (h *Handler) SubmitPage(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	c.HTML(http.StatusOK, "submit.html", gin.H{
		"CSRFToken": auth.CSRFToken(c),
		"Current":   u.Secret,
	})
}

// Submit は POST /submit のハンドラーです。ログイン中のユーザーの秘密を上書きします。
func (h *Handler) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	u, ok := auth.CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusFound, auth.LoginPath)
		return
	}

	secret := strings.TrimSpace(c.PostForm("secret"))
	if secret == "" {
		h.log.Warn(ctx, "submit rejected: empty secret", "user_id", u.ID)
		c.Redirect(http.StatusFound, auth.SubmitPath)
		return
	}

	u.Secret = secret
	if err := h.store.Save(ctx, u); err != nil {
		h.log.Error(ctx, "failed to save secret", "user_id", u.ID, "error", err)
		c.Redirect(http.StatusFound, auth.SubmitPath)
		return
	}

	h.log.Info(ctx, "secret submitted", "user_id", u.ID)
	c.Redirect(http.StatusFound, auth.SecretsPath)
}

func (h *Handler) providerList() []*federation.Provider {
	if h.providers == nil {
		return nil
	}
	return h.providers.Providers()
}
