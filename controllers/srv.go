// controllers/srv.go
package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/db"
	"library_circulation/session"
	"library_circulation/workers"

	"github.com/gin-gonic/gin"
)

// Srv is the dependency bag every controller hangs off.
type Srv struct {
	Svc       *circulation.Service
	Inbox     *db.Notifications
	Sweeper   *workers.Sweeper
	AppSess   *session.AppSessionStore
	WebOrigin string
	Logger    *slog.Logger
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Svc:       a.Circulation,
		Inbox:     a.Inbox,
		Sweeper:   a.Sweeper,
		AppSess:   a.AppSessions(),
		WebOrigin: a.Config.WebOrigin,
		Logger:    a.Logger,
	}
}

var statusByCode = map[circulation.Code]int{
	circulation.CodeNotFound:                   http.StatusNotFound,
	circulation.CodeForbidden:                  http.StatusForbidden,
	circulation.CodeInvalidArgument:            http.StatusBadRequest,
	circulation.CodeInvalidState:               http.StatusConflict,
	circulation.CodePolicyLimitExceeded:        http.StatusConflict,
	circulation.CodeOutOfStock:                 http.StatusConflict,
	circulation.CodeStockCeiling:               http.StatusConflict,
	circulation.CodeDuplicateLoan:              http.StatusConflict,
	circulation.CodeDuplicateReservation:       http.StatusConflict,
	circulation.CodeNotAvailableForReservation: http.StatusConflict,
	circulation.CodeOverdue:                    http.StatusConflict,
	circulation.CodeReservationConflict:        http.StatusConflict,
	circulation.CodeRenewalLimitExceeded:       http.StatusConflict,
	circulation.CodeNoFine:                     http.StatusConflict,
	circulation.CodeTransientStore:             http.StatusServiceUnavailable,
}

// StatusOf maps a core error code to an HTTP status, 500 for anything unknown.
func StatusOf(code circulation.Code) int {
	if st, ok := statusByCode[code]; ok {
		return st
	}
	return http.StatusInternalServerError
}

// fail writes err as the error envelope. Internal errors are logged and
// their detail is kept out of the response.
func (s *Srv) fail(c *gin.Context, err error) {
	code := circulation.CodeOf(err)
	st := StatusOf(code)
	msg := "internal error"
	var ce *circulation.Error
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	if st >= http.StatusInternalServerError {
		s.Logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "code", code, "error", err)
	}
	c.JSON(st, app.ErrorBody(string(code), msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, app.ErrorBody(string(circulation.CodeInvalidArgument), msg))
}

// queryLimit reads ?limit=, 0 when absent.
func queryLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// clearAppCookie expires the session cookie in the browser.
func (s *Srv) clearAppCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(s.WebOrigin, "https://"),
	})
}
