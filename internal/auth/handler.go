package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/secrets-app/internal/users"
)

type credentialsForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// HandleRegister は POST /register のハンドラーです。
// 失敗時は理由を表示せず /register に戻します。
func (m *Manager) HandleRegister(c *gin.Context) {
	ctx := c.Request.Context()

	var form credentialsForm
	if err := c.ShouldBind(&form); err != nil {
		m.log.Warn(ctx, "register rejected: missing fields")
		c.Redirect(http.StatusFound, RegisterPath)
		return
	}

	u, err := m.Register(ctx, form.Username, form.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrDuplicate):
			m.log.Warn(ctx, "register rejected: username taken", "username", form.Username)
		case errors.Is(err, ErrInvalidInput):
			m.log.Warn(ctx, "register rejected: invalid input", "username", form.Username, "error", err)
		default:
			m.log.Error(ctx, "register failed", "username", form.Username, "error", err)
		}
		c.Redirect(http.StatusFound, RegisterPath)
		return
	}

	if err := m.Establish(c, u); err != nil {
		m.log.Error(ctx, "failed to establish session", "user_id", u.ID, "error", err)
		c.Redirect(http.StatusFound, LoginPath)
		return
	}

	m.log.Info(ctx, "user registered", "user_id", u.ID, "credentials", m.creds.Name())
	c.Redirect(http.StatusFound, SecretsPath)
}

// HandleLogin は POST /login のハンドラーです。
// 失敗時は理由を表示せず /login に戻します。
func (m *Manager) HandleLogin(c *gin.Context) {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	retryAfter, err := m.throttle.Locked(ctx, ip)
	if err != nil {
		m.log.Error(ctx, "login throttle lookup failed", "ip", ip, "error", err)
	}
	if retryAfter > 0 {
		m.log.Warn(ctx, "login rejected", "error", ErrThrottled, "ip", ip, "retry_after", retryAfter.String())
		c.Redirect(http.StatusFound, LoginPath)
		return
	}

	var form credentialsForm
	if err := c.ShouldBind(&form); err != nil {
		m.log.Warn(ctx, "login rejected: missing fields", "ip", ip)
		c.Redirect(http.StatusFound, LoginPath)
		return
	}

	u, err := m.Authenticate(ctx, form.Username, form.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInvalidInput) {
			remaining, ferr := m.throttle.Fail(ctx, ip)
			if ferr != nil {
				m.log.Error(ctx, "failed to record login failure", "ip", ip, "error", ferr)
			}
			m.log.Warn(ctx, "login rejected: invalid credentials", "username", form.Username, "ip", ip, "remaining_attempts", remaining)
		} else {
			m.log.Error(ctx, "login failed", "username", form.Username, "error", err)
		}
		c.Redirect(http.StatusFound, LoginPath)
		return
	}

	if err := m.throttle.Reset(ctx, ip); err != nil {
		m.log.Error(ctx, "failed to reset login throttle", "ip", ip, "error", err)
	}

	if err := m.Establish(c, u); err != nil {
		m.log.Error(ctx, "failed to establish session", "user_id", u.ID, "error", err)
		c.Redirect(http.StatusFound, LoginPath)
		return
	}

	m.log.Info(ctx, "user logged in", "user_id", u.ID)
	c.Redirect(http.StatusFound, SecretsPath)
}

// HandleLogout は GET /logout のハンドラーです。
func (m *Manager) HandleLogout(c *gin.Context) {
	if err := m.Teardown(c); err != nil {
		m.log.Error(c.Request.Context(), "failed to clear session", "error", err)
	}
	c.Redirect(http.StatusFound, HomePath)
}
