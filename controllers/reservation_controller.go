package controllers

import (
	"net/http"

	"library_circulation/app"

	"github.com/gin-gonic/gin"
)

type ReservationController struct{ *Srv }

func NewReservationController(s *Srv) *ReservationController {
	return &ReservationController{Srv: s}
}

// POST /api/books/:id/reservations
func (rc *ReservationController) Reserve(c *gin.Context) {
	r, err := rc.Svc.Reserve(c.Request.Context(), app.Scope(c), app.UserID(c), c.Param("id"))
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// DELETE /api/reservations/:id
func (rc *ReservationController) Cancel(c *gin.Context) {
	if err := rc.Svc.CancelReservation(c.Request.Context(), app.Scope(c), app.UserID(c), c.Param("id")); err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/reservations
func (rc *ReservationController) ListMine(c *gin.Context) {
	rs, err := rc.Svc.ListReservations(c.Request.Context(), app.Scope(c), app.UserID(c))
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": rs})
}

// GET /api/books/:id/waiting
func (rc *ReservationController) WaitingCount(c *gin.Context) {
	n, err := rc.Svc.WaitingCount(c.Request.Context(), app.Scope(c), c.Param("id"))
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"bookId": c.Param("id"), "waiting": n})
}
