package app

import (
	"github.com/gin-gonic/gin"

	"github.com/haventide/compass-backend/internal/server"
)

func wireRouter(cfg Config, h Handlers, m Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthMiddleware:  m.Auth,
		SessionHandler:  h.Session,
		TurnHandler:     h.Turn,
		JourneyHandler:  h.Journey,
		PlanHandler:     h.Plan,
		SSEHandler:      h.SSE,
		DevToolsEnabled: cfg.DevToolsEnabled,
	})
}
