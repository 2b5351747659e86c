// auth.go implements the administrator login, verification, logout and session
// management endpoints.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/config"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/middleware"
)

// AuthHandlers handles administrator authentication endpoints
type AuthHandlers struct {
	service      *auth.Service
	tokens       middleware.TokenSource
	cookieSecure bool
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, service *auth.Service) *AuthHandlers {
	return &AuthHandlers{
		service:      service,
		tokens:       TokenSourceFrom(cfg),
		cookieSecure: cfg.Auth.Session.CookieSecure || cfg.Security.TLS.Enabled,
	}
}

// TokenSourceFrom returns the header and cookie names a session token may travel in.
func TokenSourceFrom(cfg *config.Config) middleware.TokenSource {
	return middleware.TokenSource{
		Header: cfg.Auth.Session.HeaderName,
		Cookie: cfg.Auth.Session.CookieName,
	}
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totpCode"`
}

// AdminResponse is the public view of an authenticated admin
type AdminResponse struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	FullName    string             `json:"fullName"`
	Role        string             `json:"role"`
	Permissions models.Permissions `json:"permissions"`
	TOTPEnabled bool               `json:"totpEnabled"`
	LastLoginAt *time.Time         `json:"lastLoginAt,omitempty"`
}

func newAdminResponse(admin *models.Admin) AdminResponse {
	return AdminResponse{
		ID:          admin.ID,
		Email:       admin.Email,
		FullName:    admin.FullName,
		Role:        admin.RoleName(),
		Permissions: auth.EffectivePermissions(admin),
		TOTPEnabled: admin.TOTPEnabled,
		LastLoginAt: admin.LastLoginAt,
	}
}

// SessionResponse describes one active session of the caller
type SessionResponse struct {
	ID             string    `json:"id"`
	IPAddress      *string   `json:"ipAddress,omitempty"`
	UserAgent      *string   `json:"userAgent,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Current        bool      `json:"current"`
}

// @Summary      Admin login
// @Description  Verifies email, password and, when enrolled, a TOTP code. Returns an opaque session token and also sets it as an HttpOnly cookie.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "success, sessionToken, admin, expiresAt"
// @Failure      400  {object}  map[string]interface{}  "Invalid request body"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials or TOTP code (requiresTotp set when a code is needed)"
// @Failure      403  {object}  map[string]interface{}  "Account is disabled"
// @Failure      423  {object}  map[string]interface{}  "Account is locked"
// @Failure      429  {object}  map[string]interface{}  "Too many requests"
// @Router       /api/v1/admin/auth/login [post]
// LoginHandler authenticates an administrator
// POST /api/v1/admin/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Email and password are required",
			})
			return
		}

		result, err := h.service.Login(c.Request.Context(), auth.LoginRequest{
			Email:     req.Email,
			Password:  req.Password,
			TOTPCode:  req.TOTPCode,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: middleware.RequestID(c),
		})
		if err != nil {
			if auth.KindOf(err) == auth.KindTOTPRequired {
				c.JSON(http.StatusUnauthorized, gin.H{
					"success":      false,
					"message":      auth.PublicMessage(err),
					"requiresTotp": true,
				})
				return
			}
			middleware.AbortWithAuthError(c, err)
			return
		}

		h.setSessionCookie(c, result.Token, result.ExpiresAt)

		admin := newAdminResponse(result.Admin)
		admin.Permissions = result.Permissions
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"sessionToken": result.Token,
			"admin":        admin,
			"expiresAt":    result.ExpiresAt,
		})
	}
}

// @Summary      Verify session
// @Description  Returns the admin bound to the presented session token.
// @Tags         Authentication
// @Security     AdminSession
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success, admin, sessionId, expiresAt"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Router       /api/v1/admin/auth/verify [get]
// VerifyHandler reports the session established by RequireAdminSession
// GET|POST /api/v1/admin/auth/verify
func (h *AuthHandlers) VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := middleware.CurrentSession(c)
		if !ok {
			middleware.AbortWithAuthError(c, auth.ErrSessionMissing)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"admin":     newAdminResponse(vs.Admin),
			"sessionId": vs.Session.ID,
			"expiresAt": vs.Session.ExpiresAt,
		})
	}
}

// @Summary      Logout
// @Description  Revokes the presented session. Unknown or already revoked tokens still succeed.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success: true"
// @Failure      400  {object}  map[string]interface{}  "Session token required"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/auth/logout [post]
// LogoutHandler revokes the caller's session
// POST /api/v1/admin/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := h.tokens.Token(c)
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": auth.PublicMessage(auth.ErrSessionMissing),
			})
			return
		}

		h.clearSessionCookie(c)
		if err := h.service.Logout(c.Request.Context(), token, middleware.RequestInfo(c)); err != nil {
			middleware.AbortWithAuthError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// @Summary      Logout everywhere
// @Description  Revokes every session of the caller, including the current one.
// @Tags         Authentication
// @Security     AdminSession
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success, revoked"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/auth/logout-all [post]
// LogoutAllHandler revokes every session of the caller
// POST /api/v1/admin/auth/logout-all
func (h *AuthHandlers) LogoutAllHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := middleware.CurrentSession(c)
		if !ok {
			middleware.AbortWithAuthError(c, auth.ErrSessionMissing)
			return
		}

		n, err := h.service.LogoutAll(c.Request.Context(), vs, middleware.RequestInfo(c))
		if err != nil {
			middleware.AbortWithAuthError(c, err)
			return
		}

		h.clearSessionCookie(c)
		c.JSON(http.StatusOK, gin.H{"success": true, "revoked": n})
	}
}

// @Summary      List sessions
// @Description  Lists the caller's usable sessions, marking the current one.
// @Tags         Authentication
// @Security     AdminSession
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success, sessions"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/auth/sessions [get]
// ListSessionsHandler lists the caller's sessions
// GET /api/v1/admin/auth/sessions
func (h *AuthHandlers) ListSessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := middleware.CurrentSession(c)
		if !ok {
			middleware.AbortWithAuthError(c, auth.ErrSessionMissing)
			return
		}

		sessions, err := h.service.ListSessions(c.Request.Context(), vs.Admin.ID)
		if err != nil {
			middleware.AbortWithAuthError(c, err)
			return
		}

		out := make([]SessionResponse, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, SessionResponse{
				ID:             s.ID,
				IPAddress:      s.IPAddress,
				UserAgent:      s.UserAgent,
				CreatedAt:      s.CreatedAt,
				LastActivityAt: s.LastActivityAt,
				ExpiresAt:      s.ExpiresAt,
				Current:        s.ID == vs.Session.ID,
			})
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "sessions": out})
	}
}

// @Summary      Revoke session
// @Description  Ends one of the caller's own sessions. Sessions of other admins are reported as not found.
// @Tags         Authentication
// @Security     AdminSession
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  map[string]interface{}  "success: true"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Failure      404  {object}  map[string]interface{}  "Session not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/auth/sessions/{id} [delete]
// RevokeSessionHandler ends one of the caller's sessions
// DELETE /api/v1/admin/auth/sessions/:id
func (h *AuthHandlers) RevokeSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := middleware.CurrentSession(c)
		if !ok {
			middleware.AbortWithAuthError(c, auth.ErrSessionMissing)
			return
		}

		sessionID := c.Param("id")
		found, err := h.service.RevokeSession(c.Request.Context(), vs, sessionID, middleware.RequestInfo(c))
		if err != nil {
			middleware.AbortWithAuthError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Session not found",
			})
			return
		}

		if sessionID == vs.Session.ID {
			h.clearSessionCookie(c)
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *AuthHandlers) setSessionCookie(c *gin.Context, token string, expiresAt time.Time) {
	if h.tokens.Cookie == "" {
		return
	}
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.tokens.Cookie, token, maxAge, "/", "", h.cookieSecure, true)
}

func (h *AuthHandlers) clearSessionCookie(c *gin.Context) {
	if h.tokens.Cookie == "" {
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.tokens.Cookie, "", -1, "/", "", h.cookieSecure, true)
}
