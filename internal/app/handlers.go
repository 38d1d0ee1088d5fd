package app

import (
	"github.com/haventide/compass-backend/internal/handlers"
	"github.com/haventide/compass-backend/internal/platform/logger"
	"github.com/haventide/compass-backend/internal/realtime"
)

type Handlers struct {
	Session *handlers.SessionHandler
	Turn    *handlers.TurnHandler
	Journey *handlers.JourneyHandler
	Plan    *handlers.PlanHandler
	SSE     *handlers.SSEHandler
}

func wireHandlers(log *logger.Logger, s Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Session: handlers.NewSessionHandler(log, s.Session),
		Turn:    handlers.NewTurnHandler(log, s.Turn),
		Journey: handlers.NewJourneyHandler(log, s.Journey),
		Plan:    handlers.NewPlanHandler(log, s.Plan),
		SSE:     handlers.NewSSEHandler(log, hub),
	}
}
