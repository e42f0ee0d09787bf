package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/localnerve/contentdb/internal/app"
	"github.com/localnerve/contentdb/internal/config"
	"github.com/localnerve/contentdb/internal/database"
	"github.com/localnerve/contentdb/internal/handlers"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/localnerve/contentdb/internal/middleware"

	_ "github.com/localnerve/contentdb/docs/api" // Swagger docs
)

// @title ContentDB API
// @version 1.0.0
// @description Block-structured page content with versioning, editing leases and comment threads
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/contentdb
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	envFile := flag.String("env", os.Getenv("ENV_FILE"), "optional .env file to load")
	flag.Parse()

	boot := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), nil)
	if err := config.LoadEnvFile(*envFile); err != nil {
		boot.Fatalf("Failed to load env file: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

	services, err := app.New(cfg, log)
	if err != nil {
		log.Fatalf("Failed to start services: %v", err)
	}
	defer services.Close()

	// Run auto-migrations
	if err := database.AutoMigrate(services.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go services.Sweeper.Run(ctx)

	// Create Fiber app
	server := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(log),
	})

	// Global middleware
	server.Use(recover.New())
	server.Use(logger.New())
	server.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("contentdb")
	prometheus.RegisterAt(server, "/metrics")
	server.Use(prometheus.Middleware)

	// Swagger documentation
	server.Get("/swagger/*", swagger.HandlerDefault)

	routes := &handlers.Routes{
		Content:  &handlers.ContentHandler{Store: services.Store, Engine: services.Engine, History: services.History},
		Locks:    &handlers.LockHandler{Locks: services.Locks},
		Comments: &handlers.CommentHandler{Comments: services.Comments},
		Health:   &handlers.HealthHandler{Health: services.Health},
	}

	// A nil *SessionValidator must not become a non-nil interface
	var validator middleware.SessionValidator
	if services.Sessions != nil {
		validator = services.Sessions
	}
	routes.Register(server.Group("/api"), validator)

	// 404 handler
	server.Use(handlers.NotFound)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("Gracefully shutting down...")
		_ = server.Shutdown()
	}()

	log.Infof("Starting server on port %s", cfg.Port)
	if err := server.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Info("Server stopped")
}
