package controllers

import (
	"net/http"

	"library_circulation/app"

	"github.com/gin-gonic/gin"
)

type NotificationController struct{ *Srv }

func NewNotificationController(s *Srv) *NotificationController {
	return &NotificationController{Srv: s}
}

// GET /api/notifications?unread=true&limit=
func (nc *NotificationController) List(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	unread := c.Query("unread") == "true"
	list, err := nc.Inbox.List(c.Request.Context(), app.Scope(c), app.UserID(c), unread, limit)
	if err != nil {
		nc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": list})
}

// POST /api/notifications/:id/read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	if err := nc.Inbox.MarkRead(c.Request.Context(), app.Scope(c), app.UserID(c), c.Param("id")); err != nil {
		nc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
