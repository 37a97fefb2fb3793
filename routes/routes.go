package routes

import (
	"library_circulation/app"
	"library_circulation/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)
	loanCtl := controllers.NewLoanController(s)
	resCtl := controllers.NewReservationController(s)
	inboxCtl := controllers.NewNotificationController(s)
	adminCtl := controllers.NewAdminController(s)
	sessCtl := controllers.NewSessionController(s)

	authMW := app.AuthRequired(a.AppSessions(), a.Circulation)
	adminMW := app.AdminOnly()

	// session issued by the identity provider
	sess := r.Group("/api/session", authMW)
	{
		sess.GET("/whoami", sessCtl.WhoAmI)
		sess.POST("/logout", sessCtl.Logout)
		sess.POST("/logout-all", sessCtl.LogoutAll)
	}

	api := r.Group("/api", authMW)
	{
		api.POST("/books/:id/borrow", loanCtl.Borrow)
		api.POST("/books/:id/reservations", resCtl.Reserve)
		api.GET("/books/:id/waiting", resCtl.WaitingCount)

		api.GET("/loans", loanCtl.ListMyLoans) // ?status=ACTIVE|RETURNED&limit=
		api.POST("/loans/:loanId/return", loanCtl.Return)
		api.POST("/loans/:loanId/renew", loanCtl.Renew)

		api.GET("/reservations", resCtl.ListMine)
		api.DELETE("/reservations/:id", resCtl.Cancel)

		api.GET("/notifications", inboxCtl.List) // ?unread=true&limit=
		api.POST("/notifications/:id/read", inboxCtl.MarkRead)
	}

	admin := r.Group("/api/admin", authMW, adminMW)
	{
		admin.GET("/loans", loanCtl.ListLoansAdmin)
		admin.POST("/loans/:loanId/fine-paid", loanCtl.MarkFinePaid)
		admin.GET("/policy", adminCtl.GetPolicy)
		admin.POST("/sweeps", adminCtl.RunSweeps)
	}
}
