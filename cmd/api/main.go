package main

import (
	"context"
	"fmt"
	"go-syncbridge/internal/cache"
	common_api "go-syncbridge/internal/common/api"
	"go-syncbridge/internal/config"
	"go-syncbridge/internal/connectors"
	"go-syncbridge/internal/database"
	"go-syncbridge/internal/features/scheduler"
	"go-syncbridge/internal/features/syncjob"
	"go-syncbridge/internal/logger"
	"go-syncbridge/internal/middleware"
	"go-syncbridge/pkg/utils"
	"log"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Use custom CORS middleware
	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	log.Printf("Registering %d routes...\n", len(routes))
	for _, route := range routes {
		route.Setup(app)
	}
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Initialize Cache
			cache.NewTTLCache,

			// Initialize Connectors
			connectors.NewAdapterPair,

			// Initialize Repository
			syncjob.NewRepository,

			// Initialize Service
			syncjob.NewTransformRegistry,
			syncjob.NewManager,
			scheduler.NewFileStateStore,
			scheduler.NewSchedulerService,

			// Interface Adapters to satisfy Fx
			func(m syncjob.Manager) scheduler.JobRunner { return m },

			// Initialize Controller
			syncjob.NewSyncJobController,
			scheduler.NewSchedulerController,

			// Initialize API Routes
			AsRoute(syncjob.NewSyncJobApi),
			AsRoute(scheduler.NewSchedulerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, svc scheduler.SchedulerService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return svc.Start()
					},
					OnStop: func(ctx context.Context) error {
						return svc.Stop()
					},
				})
			},
			func(lc fx.Lifecycle, mgr syncjob.Manager) {
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						return mgr.Shutdown(ctx)
					},
				})
			},
		),
	)

	app.Run()
}
