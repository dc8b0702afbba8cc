package handlers

import (
	"setlist-survivor/logger"
	"setlist-survivor/middleware"
	"setlist-survivor/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App, admin *services.AdminService, log *logger.Logger) {
	group := app.Group("/admin", middleware.UserContextMiddleware(log), middleware.RequireAdmin(log))

	group.Post("/shows/:showId/results", admin.SubmitManualResultsHandler)
	group.Patch("/shows/:showId/active", admin.SetShowActiveHandler)
	group.Patch("/participants/:participantId/status", admin.SetParticipantStatusHandler)
}
