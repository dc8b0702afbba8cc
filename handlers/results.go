package handlers

import (
	"setlist-survivor/logger"
	"setlist-survivor/middleware"
	"setlist-survivor/services"

	"github.com/gofiber/fiber/v2"
)

// SetupResultsRoutes exposes the grading trigger for the external cron and for admins.
func SetupResultsRoutes(app *fiber.App, processor *services.ResultsProcessor, cronSecret string, log *logger.Logger) {
	cron := app.Group("/cron", middleware.CronAuthMiddleware(cronSecret, log))

	cron.Get("/process-shows", processor.ProcessShowsHandler)
	cron.Post("/process-shows", processor.ProcessShowsHandler)
}
