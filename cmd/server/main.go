package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/avenra/StudioSessionsBack/internal/config"
	"github.com/avenra/StudioSessionsBack/internal/database"
	"github.com/avenra/StudioSessionsBack/internal/realtime"
	"github.com/avenra/StudioSessionsBack/internal/routes"
	"github.com/avenra/StudioSessionsBack/internal/services"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB()

	// 3. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// 4. Schedule event hub
	hub := realtime.NewHub()
	go hub.Run()

	// Routes
	routes.RegisterRoutes(app, cfg, database.DB, hub)

	// 5. Background credit deduction
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := services.NewDeductionSweeper(database.DB, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// 6. Start Server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
