package server

import (
	"fmt"
	"time"

	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-contrib/sessions/mongo/mongodriver"
	redisstore "github.com/gin-contrib/sessions/redis"
	redigo "github.com/gomodule/redigo/redis"

	"github.com/yourusername/secrets-app/internal/auth"
	"github.com/yourusername/secrets-app/internal/config"
	"github.com/yourusername/secrets-app/internal/users"
)

const (
	sessionsCollection = "sessions"
	sessionKeyPrefix   = "secrets:session:"
)

// newSessionStore はセッションの保存先を作成します。
// クッキーには署名付きのセッションIDだけを載せ、内容はサーバー側に置きます。
// REDIS_URL があれば Redis、無ければユーザーストアと同じ保存先を使います。
func newSessionStore(cfg *config.Config, store users.Store, secret []byte) (sessions.Store, error) {
	if cfg.RedisURL != "" {
		pool := &redigo.Pool{
			MaxIdle:     10,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redigo.Conn, error) {
				return redigo.DialURL(cfg.RedisURL)
			},
		}
		s, err := redisstore.NewStoreWithPool(pool, secret)
		if err != nil {
			return nil, fmt.Errorf("connect redis session store: %w", err)
		}
		if err := redisstore.SetKeyPrefix(s, sessionKeyPrefix); err != nil {
			return nil, err
		}
		return s, nil
	}

	switch s := store.(type) {
	case *users.MongoStore:
		return mongodriver.NewStore(s.Collection(sessionsCollection), auth.SessionMaxAgeSeconds(), true, secret), nil
	case *users.GormStore:
		return gormsessions.NewStore(s.DB(), true, secret), nil
	default:
		return memstore.NewStore(secret), nil
	}
}
