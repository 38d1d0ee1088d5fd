package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/haventide/compass-backend/internal/handlers"
	"github.com/haventide/compass-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware  *middleware.AuthMiddleware
	SessionHandler  *handlers.SessionHandler
	TurnHandler     *handlers.TurnHandler
	JourneyHandler  *handlers.JourneyHandler
	PlanHandler     *handlers.PlanHandler
	SSEHandler      *handlers.SSEHandler
	DevToolsEnabled bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)

	// Protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// Sessions
	api.GET("/sessions/:kind/state", cfg.SessionHandler.GetState)
	api.POST("/sessions/:id/turns", cfg.TurnHandler.Create)
	api.POST("/sessions/:id/turns/stream", cfg.TurnHandler.Stream)
	api.POST("/sessions/:id/outcome", cfg.SessionHandler.SelectOutcome)

	// Journey
	api.GET("/journey/routing", cfg.JourneyHandler.Routing)
	api.GET("/journey/gate", cfg.JourneyHandler.Gate)
	api.POST("/journey/checkout/start", cfg.JourneyHandler.StartCheckout)
	api.POST("/journey/checkout/complete", cfg.JourneyHandler.CompleteCheckout)
	api.POST("/journey/checkout/abandon", cfg.JourneyHandler.AbandonCheckout)
	api.POST("/journey/letter/viewed", cfg.JourneyHandler.MarkLetterViewed)

	// Plan
	api.GET("/plan", cfg.PlanHandler.Overview)
	api.POST("/plan/init", cfg.PlanHandler.RequestInit)

	// SSE
	api.GET("/sse/stream", cfg.SSEHandler.Stream)

	// Dev tooling, never mounted in production
	if cfg.DevToolsEnabled {
		api.POST("/dev/reset", cfg.SessionHandler.Reset)
	}

	return router
}
