package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/db/models"
)

// Context keys populated by RequireAdminSession.
const (
	AdminKey   = "admin"
	SessionKey = "admin_session"
	AdminIDKey = "admin_id"
)

// SessionVerifier resolves a raw session token. *auth.Service satisfies it.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*auth.VerifiedSession, error)
}

// TokenSource names where a session token may travel. The header wins over the
// cookie; either may carry a "Bearer " prefix.
type TokenSource struct {
	Header string
	Cookie string
}

// Token returns the presented session token, or "".
func (s TokenSource) Token(c *gin.Context) string {
	if s.Header != "" {
		if token := auth.ExtractSessionToken(c.GetHeader(s.Header)); token != "" {
			return token
		}
	}
	if s.Cookie != "" {
		if v, err := c.Cookie(s.Cookie); err == nil {
			return auth.ExtractSessionToken(v)
		}
	}
	return ""
}

// RequestInfo collects the audit metadata of the current request.
func RequestInfo(c *gin.Context) auth.RequestInfo {
	info := auth.RequestInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: RequestID(c),
	}
	if vs, ok := CurrentSession(c); ok {
		info.SessionID = vs.Session.ID
	}
	return info
}

// AttachRequestInfo stores RequestInfo on the request context so that audit entries
// written deeper in the stack carry the caller's address and request id.
func AttachRequestInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithRequestInfo(c.Request.Context(), RequestInfo(c)))
		c.Next()
	}
}

// RequireAdminSession rejects requests without a usable admin session. On success the
// admin, the verified session and the admin id are stored on the gin context and the
// request context carries RequestInfo including the session id.
func RequireAdminSession(verifier SessionVerifier, tokens TokenSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokens.Token(c)
		if token == "" {
			AbortWithAuthError(c, auth.ErrSessionMissing)
			return
		}

		vs, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abortWithStatus(c, auth.SessionHTTPStatus(err), err)
			return
		}

		c.Set(AdminKey, vs.Admin)
		c.Set(SessionKey, vs)
		c.Set(AdminIDKey, vs.Admin.ID)
		c.Request = c.Request.WithContext(auth.WithRequestInfo(c.Request.Context(), RequestInfo(c)))

		c.Next()
	}
}

// AbortWithAuthError writes the {success:false,message} body and status for err.
// Locked accounts also get a Retry-After header in whole seconds.
func AbortWithAuthError(c *gin.Context, err error) {
	abortWithStatus(c, auth.HTTPStatus(err), err)
}

func abortWithStatus(c *gin.Context, status int, err error) {
	var ae *auth.Error
	if errors.As(err, &ae) && ae.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(ae.RetryAfter.Seconds()))))
	}
	if auth.KindOf(err) == auth.KindInternal {
		slog.Error("admin request failed", "path", c.FullPath(), "request_id", RequestID(c), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": auth.PublicMessage(err),
	})
}

// CurrentSession returns the session stored by RequireAdminSession.
func CurrentSession(c *gin.Context) (*auth.VerifiedSession, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	vs, ok := v.(*auth.VerifiedSession)
	return vs, ok && vs != nil
}

// CurrentAdmin returns the authenticated admin, or nil.
func CurrentAdmin(c *gin.Context) *models.Admin {
	v, ok := c.Get(AdminKey)
	if !ok {
		return nil
	}
	admin, _ := v.(*models.Admin)
	return admin
}
