package app

import (
	"errors"
	"net/http"

	"library_circulation/circulation"
	"library_circulation/session"
	"library_circulation/tenant"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "app_session"

const (
	ctxUserID  = "userID"
	ctxScope   = "scope"
	ctxIsAdmin = "isAdmin"
	ctxSession = "sessionID"
)

// ErrorBody is the JSON error envelope shared by middleware and handlers.
func ErrorBody(code, message string) H {
	return H{"error": H{"code": code, "message": message}}
}

// AuthRequired resolves the session cookie to a member of the session's school.
// A session whose member no longer exists is deleted.
func AuthRequired(appSess *session.AppSessionStore, svc *circulation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody("UNAUTHORIZED", "unauthorized"))
			return
		}
		as, err := appSess.Get(c.Request.Context(), ck.Value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody("UNAUTHORIZED", "invalid session"))
			return
		}
		scope, err := tenant.New(as.TenantID)
		if err != nil {
			_ = appSess.Delete(c.Request.Context(), ck.Value)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody("UNAUTHORIZED", "invalid session"))
			return
		}

		m, err := svc.Member(c.Request.Context(), scope, as.UserID)
		switch {
		case errors.Is(err, circulation.ErrForbidden), errors.Is(err, circulation.ErrInvalidArgument):
			_ = appSess.Delete(c.Request.Context(), ck.Value)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody("UNAUTHORIZED", "unauthorized"))
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorBody(string(circulation.CodeOf(err)), "membership lookup failed"))
			return
		}

		c.Set(ctxSession, ck.Value)
		c.Set(ctxUserID, m.UserID)
		c.Set(ctxScope, scope)
		c.Set(ctxIsAdmin, m.IsAdmin())
		c.Next()
	}
}

// AdminOnly must run after AuthRequired.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxUserID); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody("UNAUTHORIZED", "unauthorized"))
			return
		}
		if !c.GetBool(ctxIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorBody(string(circulation.CodeForbidden), "admin only"))
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) string { return c.GetString(ctxUserID) }

func SessionID(c *gin.Context) string { return c.GetString(ctxSession) }

func IsAdmin(c *gin.Context) bool { return c.GetBool(ctxIsAdmin) }

// Scope is the zero Scope outside AuthRequired, which the core rejects.
func Scope(c *gin.Context) tenant.Scope {
	v, _ := c.Get(ctxScope)
	s, _ := v.(tenant.Scope)
	return s
}
