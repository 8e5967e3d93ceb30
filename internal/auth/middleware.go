package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-app/internal/users"
)

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未ログインや期限切れの場合は /login へリダイレクトします。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get(sessionKeyUser).(string)
		if !ok || userID == "" {
			redirectAbort(c, LoginPath)
			return
		}

		now := m.now()
		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		lastActive := readUnix(session.Get(sessionKeyLastActive))

		if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime {
			m.log.Info(c.Request.Context(), "session expired", "user_id", userID)
			m.expire(c)
			return
		}

		if lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
			m.log.Info(c.Request.Context(), "session idle timeout", "user_id", userID)
			m.expire(c)
			return
		}

		u, err := m.store.FindByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				m.log.Warn(c.Request.Context(), "session user no longer exists", "user_id", userID)
				m.expire(c)
				return
			}
			m.log.Error(c.Request.Context(), "failed to load session user", "user_id", userID, "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		session.Set(sessionKeyLastActive, now.Unix())
		_ = session.Save()
		c.Set(ContextUserKey, u)
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダー、または _csrf フォーム項目を検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			m.log.Warn(c.Request.Context(), "csrf token missing from session", "path", c.FullPath())
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		received := c.GetHeader(csrfHeader)
		if received == "" {
			received = c.PostForm(csrfFormField)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			m.log.Warn(c.Request.Context(), "csrf token mismatch", "path", c.FullPath())
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Next()
	}
}

func (m *Manager) expire(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	redirectAbort(c, LoginPath)
}

func redirectAbort(c *gin.Context, path string) {
	c.Redirect(http.StatusFound, path)
	c.Abort()
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
