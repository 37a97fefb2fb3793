package controllers

import (
	"net/http"
	"strings"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/models"

	"github.com/gin-gonic/gin"
)

type LoanController struct{ *Srv }

func NewLoanController(s *Srv) *LoanController { return &LoanController{Srv: s} }

// POST /api/books/:id/borrow
func (lc *LoanController) Borrow(c *gin.Context) {
	loan, err := lc.Svc.Borrow(c.Request.Context(), app.Scope(c), app.UserID(c), c.Param("id"))
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// POST /api/loans/:loanId/return
func (lc *LoanController) Return(c *gin.Context) {
	loan, err := lc.Svc.Return(c.Request.Context(), app.Scope(c), app.UserID(c), c.Param("loanId"))
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// POST /api/loans/:loanId/renew
func (lc *LoanController) Renew(c *gin.Context) {
	loan, err := lc.Svc.Renew(c.Request.Context(), app.Scope(c), app.UserID(c), c.Param("loanId"))
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// GET /api/loans?status=ACTIVE|RETURNED&limit=
func (lc *LoanController) ListMyLoans(c *gin.Context) {
	f, ok := loanFilter(c)
	if !ok {
		return
	}
	f.UserID = app.UserID(c)
	lc.list(c, f)
}

// GET /api/admin/loans?userId=&bookId=&status=&limit=
func (lc *LoanController) ListLoansAdmin(c *gin.Context) {
	f, ok := loanFilter(c)
	if !ok {
		return
	}
	f.UserID = c.Query("userId")
	f.BookID = c.Query("bookId")
	lc.list(c, f)
}

// POST /api/admin/loans/:loanId/fine-paid
func (lc *LoanController) MarkFinePaid(c *gin.Context) {
	loan, err := lc.Svc.MarkFinePaid(c.Request.Context(), app.Scope(c), c.Param("loanId"))
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (lc *LoanController) list(c *gin.Context, f circulation.LoanFilter) {
	loans, err := lc.Svc.ListLoans(c.Request.Context(), app.Scope(c), f)
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": loans})
}

func loanFilter(c *gin.Context) (circulation.LoanFilter, bool) {
	var f circulation.LoanFilter
	switch st := models.LoanStatus(strings.ToUpper(c.Query("status"))); st {
	case "", models.LoanActive, models.LoanReturned:
		f.Status = st
	default:
		badRequest(c, "status must be ACTIVE or RETURNED")
		return f, false
	}
	limit, ok := queryLimit(c)
	f.Limit = limit
	return f, ok
}
