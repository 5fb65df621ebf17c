package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/campushq/campusbill/app/controllers"
	"github.com/campushq/campusbill/app/repository"
	"github.com/campushq/campusbill/internal/pkg/cache"
	"github.com/campushq/campusbill/internal/pkg/catalog"
	"github.com/campushq/campusbill/internal/pkg/database"
	"github.com/campushq/campusbill/internal/pkg/dunning"
	"github.com/campushq/campusbill/internal/pkg/env"
	"github.com/campushq/campusbill/internal/pkg/gateway"
	"github.com/campushq/campusbill/internal/pkg/lifecycle"
	"github.com/campushq/campusbill/internal/pkg/router"
	"github.com/campushq/campusbill/internal/pkg/scheduler"
	"github.com/campushq/campusbill/internal/pkg/usage"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	scheduler.GetManager().Stop()
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	// Seed reference data on a fresh database.
	if err := gateway.EnsureSeedConfigs(db); err != nil {
		log.Fatalf("Failed to seed gateway configs: %v", err)
	}
	if err := dunning.EnsureSeedRules(db); err != nil {
		log.Fatalf("Failed to seed dunning rules: %v", err)
	}

	catalogSvc := catalog.NewService(db)
	if err := catalogSvc.EnsureSeedPlans(); err != nil {
		log.Fatalf("Failed to seed plans: %v", err)
	}
	if err := catalogSvc.Load(); err != nil {
		log.Fatalf("Failed to load plan catalog: %v", err)
	}

	registry, err := gateway.SetupRegistry(db)
	if err != nil {
		log.Fatalf("Failed to set up gateway registry: %v", err)
	}

	usageSvc := usage.NewService(db)
	lifecycleSvc := lifecycle.NewService(db, catalogSvc, registry, usageSvc)
	dunningEngine := dunning.NewEngine(db, lifecycleSvc, nil)
	lifecycleSvc.SetDunning(dunningEngine)

	scheduler.Setup(lifecycleSvc, dunningEngine, usageSvc).Start()

	controllers.SetupBilling(lifecycleSvc, catalogSvc, usageSvc, registry)

	// Find the correct base path for the OpenAPI document.
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/campusbill to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "CampusBill",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}
