// Package server は設定からアプリケーション全体を組み立てます。
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-app/internal/auth"
	"github.com/yourusername/secrets-app/internal/config"
	"github.com/yourusername/secrets-app/internal/federation"
	"github.com/yourusername/secrets-app/internal/logging"
	"github.com/yourusername/secrets-app/internal/users"
	"github.com/yourusername/secrets-app/internal/web"
)

// devSessionSecret は SESSION_SECRET 未設定のローカル開発時だけ使う鍵です。
const devSessionSecret = "secrets-app-insecure-dev-key"

// Server はプロセス起動時に一度だけ作られるアプリケーションコンテキストです。
type Server struct {
	cfg        *config.Config
	log        logging.Logger
	store      users.Store
	throttle   *auth.RedisThrottle
	sessions   sessions.Store
	router     *gin.Engine
	httpServer *http.Server
}

// New は設定から Server を組み立てます。
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*Server, error) {
	store, err := users.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open user store: %w", err)
	}

	srv, err := build(cfg, store, log)
	if err != nil {
		_ = store.Close(context.Background())
		return nil, err
	}
	return srv, nil
}

func build(cfg *config.Config, store users.Store, log logging.Logger) (*Server, error) {
	creds, err := auth.NewCredentials(cfg.Credentials, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	srv := &Server{cfg: cfg, log: log, store: store}

	var throttle auth.Throttle
	if cfg.RedisURL != "" {
		rt, err := auth.NewRedisThrottle(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		srv.throttle = rt
		throttle = rt
	}

	authManager := auth.NewManager(store, creds, throttle, log.With("component", "auth"))

	var providers []*federation.Provider
	if cfg.GoogleEnabled() {
		providers = append(providers, federation.Google(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.PublicBaseURL))
	}
	if cfg.FacebookEnabled() {
		providers = append(providers, federation.Facebook(cfg.FacebookAppID, cfg.FacebookAppSecret, cfg.PublicBaseURL))
	}
	var registry *federation.Registry
	if len(providers) > 0 {
		registry = federation.NewRegistry(store, authManager, log.With("component", "federation"), providers...)
	}

	pages, err := web.NewHandler(store, authManager, registry, web.Options{
		SecretsVisibility: cfg.SecretsVisibility,
	}, log.With("component", "web"))
	if err != nil {
		return nil, err
	}

	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定
	secret := cfg.SessionSecret
	if secret == "" {
		log.Warn(context.Background(), "SESSION_SECRET is not set; using an insecure development key")
		secret = devSessionSecret
	}
	sessionStore, err := newSessionStore(cfg, store, []byte(secret))
	if err != nil {
		return nil, err
	}
	srv.sessions = sessionStore
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		// IdP からのリダイレクトでもクッキーを送るため Lax にする
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, sessionStore))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", handleHealth)
	pages.Routes(router)

	srv.router = router
	srv.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "secrets-app",
		"version": "0.1.0",
	})
}

// Handler はテスト用にルーターを返します。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run は ctx がキャンセルされるまで HTTP サーバーを動かし、その後グレースフルに停止します。
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "starting server", "addr", s.httpServer.Addr, "mode", s.cfg.GinMode,
			"store", s.cfg.StoreDriver, "credentials", s.cfg.Credentials)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.close(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info(shutdownCtx, "shutting down server")
	err := s.httpServer.Shutdown(shutdownCtx)
	s.close(shutdownCtx)
	return err
}

func (s *Server) close(ctx context.Context) {
	if err := s.store.Close(ctx); err != nil {
		s.log.Error(ctx, "failed to close user store", "error", err)
	}
	if c, ok := s.sessions.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.log.Error(ctx, "failed to close session store", "error", err)
		}
	}
	if s.throttle != nil {
		if err := s.throttle.Close(); err != nil {
			s.log.Error(ctx, "failed to close redis", "error", err)
		}
	}
}
