package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avenra/StudioSessionsBack/internal/config"
	"github.com/avenra/StudioSessionsBack/internal/handlers"
	"github.com/avenra/StudioSessionsBack/internal/middleware"
	"github.com/avenra/StudioSessionsBack/internal/realtime"
	"github.com/avenra/StudioSessionsBack/internal/repository"
	"github.com/avenra/StudioSessionsBack/internal/services"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool, hub *realtime.Hub) {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	sessionService := services.NewSessionService(
		db,
		sessionRepo,
		userRepo,
		cfg.DefaultLocation,
		cfg.DefaultSlotType,
	)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	sessionHandler := handlers.NewSessionHandler(sessionService, hub)
	realtimeHandler := handlers.NewRealtimeHandler(hub, cfg.JWTSecret)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/sessions")
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Post("", sessionHandler.CreateSlots)
	sessions.Post("/recurring", sessionHandler.CreateRecurringSlots)
	sessions.Post("/book", sessionHandler.BookSession)
	sessions.Post("/request", sessionHandler.RequestSession)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Delete("/cancel/:id", sessionHandler.CancelSession)
	sessions.Put("/confirm/:id", sessionHandler.ConfirmSession)
	sessions.Put("/complete/:id", sessionHandler.CompleteSession)
	sessions.Put("/assign/:id", sessionHandler.AssignTrainer)
	sessions.Put("/notes/:id", sessionHandler.SetSessionNotes)

	api.Use("/v1/ws", realtimeHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(realtimeHandler.HandleWebSocket))
}
