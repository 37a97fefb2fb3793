package controllers

import (
	"net/http"

	"library_circulation/app"

	"github.com/gin-gonic/gin"
)

type SessionController struct{ *Srv }

func NewSessionController(s *Srv) *SessionController { return &SessionController{Srv: s} }

// GET /api/session/whoami
func (sc *SessionController) WhoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, app.H{
		"userId":   app.UserID(c),
		"tenantId": app.Scope(c).ID(),
		"isAdmin":  app.IsAdmin(c),
	})
}

// POST /api/session/logout
func (sc *SessionController) Logout(c *gin.Context) {
	if err := sc.AppSess.Delete(c.Request.Context(), app.SessionID(c)); err != nil {
		sc.Logger.WarnContext(c.Request.Context(), "session delete failed", "error", err)
	}
	sc.clearAppCookie(c.Writer)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/session/logout-all ends every session of the caller.
func (sc *SessionController) LogoutAll(c *gin.Context) {
	if err := sc.AppSess.RevokeAllForUser(c.Request.Context(), app.UserID(c)); err != nil {
		c.JSON(http.StatusServiceUnavailable, app.ErrorBody("SESSION_STORE", "could not revoke sessions"))
		return
	}
	sc.clearAppCookie(c.Writer)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
