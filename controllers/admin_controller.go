package controllers

import (
	"errors"
	"net/http"

	"library_circulation/app"
	"library_circulation/workers"

	"github.com/gin-gonic/gin"
)

type AdminController struct{ *Srv }

func NewAdminController(s *Srv) *AdminController { return &AdminController{Srv: s} }

// POST /api/admin/sweeps runs both sweeps now, across all schools.
func (ac *AdminController) RunSweeps(c *gin.Context) {
	rep, err := ac.Sweeper.TriggerNow(c.Request.Context())
	if errors.Is(err, workers.ErrSweepRunning) {
		c.JSON(http.StatusConflict, app.ErrorBody("SWEEP_RUNNING", err.Error()))
		return
	}
	if err != nil {
		ac.Logger.WarnContext(c.Request.Context(), "manual sweep finished with errors", "error", err)
		c.JSON(http.StatusOK, app.H{"report": rep, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"report": rep})
}

// GET /api/admin/policy
func (ac *AdminController) GetPolicy(c *gin.Context) {
	p, err := ac.Svc.Policy(c.Request.Context(), app.Scope(c))
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
