package scheduler

import (
	"go-syncbridge/internal/common/api"
	"go-syncbridge/internal/config"
	"go-syncbridge/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SchedulerApi struct {
	controller *SchedulerController
	config     *config.Config
}

func NewSchedulerApi(controller *SchedulerController, config *config.Config) api.Route {
	return &SchedulerApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers all scheduler routes
func (h *SchedulerApi) Setup(app *fiber.App) {
	group := app.Group("/api/scheduler", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/jobs", h.controller.ScheduleJob)
	group.Get("/jobs", h.controller.ListJobs)
	group.Get("/jobs/:id", h.controller.GetJob)
	group.Put("/jobs/:id", h.controller.UpdateJob)
	group.Delete("/jobs/:id", h.controller.DeleteJob)
	group.Post("/jobs/:id/enable", h.controller.EnableJob)
	group.Post("/jobs/:id/disable", h.controller.DisableJob)
	group.Post("/jobs/:id/run-now", h.controller.RunJobNow)
	group.Get("/jobs/:id/results", h.controller.GetJobResults)
	group.Post("/pause", h.controller.Pause)
	group.Post("/resume", h.controller.Resume)
}
