package handlers

import (
	"setlist-survivor/logger"
	"setlist-survivor/middleware"
	"setlist-survivor/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPoolRoutes(app *fiber.App, picks *services.PickService, board *services.LeaderboardService, log *logger.Logger) {
	// 🔓 Public reads
	app.Get("/pools/:poolId/shows", board.ListShowsHandler)
	app.Get("/pools/:poolId/leaderboard", board.GetLeaderboardHandler)
	app.Get("/pools/:poolId/shows/:showId/pick-stats", board.GetPickStatsHandler)

	// 🔐 Player actions
	userCtx := middleware.UserContextMiddleware(log)
	app.Post("/pools/:poolId/join", userCtx, picks.JoinPoolHandler)
	app.Post("/pools/:poolId/shows/:showId/pick", userCtx, picks.SubmitPickHandler)
}
