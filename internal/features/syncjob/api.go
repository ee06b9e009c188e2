package syncjob

import (
	"go-syncbridge/internal/common/api"
	"go-syncbridge/internal/config"
	"go-syncbridge/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type SyncJobApi struct {
	controller *SyncJobController
	config     *config.Config
}

func NewSyncJobApi(controller *SyncJobController, config *config.Config) api.Route {
	return &SyncJobApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers all sync job routes
func (h *SyncJobApi) Setup(app *fiber.App) {
	group := app.Group("/api/sync", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/jobs", h.controller.CreateSyncJob)
	group.Get("/jobs", h.controller.ListSyncJobs)
	group.Get("/jobs/:id", h.controller.GetSyncJob)
	group.Post("/jobs/:id/cancel", h.controller.CancelSyncJob)
	group.Get("/jobs/:id/ws", websocket.New(h.controller.StreamJob))
	group.Get("/status/:type/:id", h.controller.GetSyncStatus)
	group.Post("/status/:type/:id", h.controller.MarkEntitySynced)
	group.Post("/cleanup", h.controller.CleanupSyncHistory)
}
