package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/llm"
	"github.com/haventide/compass-backend/internal/platform/logger"
	"github.com/haventide/compass-backend/internal/realtime"
	"github.com/haventide/compass-backend/internal/realtime/bus"
	"github.com/haventide/compass-backend/internal/services"
)

type Services struct {
	Provider   llm.Provider
	Locker     services.Locker
	Notifier   services.TurnNotifier
	Turn       services.TurnService
	Session    services.SessionService
	Journey    services.JourneyService
	Generation services.GenerationService
	Plan       services.PlanService
	Scheduler  *services.PlanInitScheduler
	Bus        bus.Bus
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	provider, err := llm.FromEnv(log)
	if err != nil {
		return Services{}, fmt.Errorf("init llm provider: %w", err)
	}

	var emitter services.SSEEmitter
	var redisBus bus.Bus
	switch cfg.SSEBackend {
	case "redis":
		redisBus, err = bus.NewRedisBus(log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis bus: %w", err)
		}
		emitter = &services.RedisEmitter{Bus: redisBus}
	default:
		emitter = &services.HubEmitter{Hub: hub}
	}

	locker := services.NewMemoryLocker()
	notifier := services.NewTurnNotifier(emitter)

	turn := services.NewTurnService(services.TurnDeps{
		DB:            db,
		Log:           log,
		Provider:      provider,
		Locker:        locker,
		Notifier:      notifier,
		Sessions:      r.Session,
		Turns:         r.SessionTurn,
		Events:        r.SessionEvent,
		Users:         r.User,
		JourneyStates: r.JourneyState,
		CoachingPlans: r.CoachingPlan,
		SeriousPlans:  r.SeriousPlan,
		PlanInitRuns:  r.PlanInitRun,
	})

	session := services.NewSessionService(services.SessionDeps{
		DB:            db,
		Log:           log,
		Turn:          turn,
		Notifier:      notifier,
		Sessions:      r.Session,
		Turns:         r.SessionTurn,
		Events:        r.SessionEvent,
		JourneyStates: r.JourneyState,
		CoachingPlans: r.CoachingPlan,
		Dossiers:      r.Dossier,
		SeriousPlans:  r.SeriousPlan,
		PlanInitRuns:  r.PlanInitRun,
	})

	journey := services.NewJourneyService(db, log, r.JourneyState, notifier)
	generation := services.NewGenerationService(db, log, provider, locker, r.SessionTurn, r.Dossier)
	initializer := services.NewPlanInitializer(db, log, r.SeriousPlan)
	scheduler := services.NewPlanInitScheduler(db, log, r.PlanInitRun, r.CoachingPlan, r.Dossier, r.SeriousPlan, generation, initializer, notifier)
	plan := services.NewPlanService(db, log, r.CoachingPlan, r.Dossier, r.SeriousPlan, r.PlanInitRun)

	return Services{
		Provider:   provider,
		Locker:     locker,
		Notifier:   notifier,
		Turn:       turn,
		Session:    session,
		Journey:    journey,
		Generation: generation,
		Plan:       plan,
		Scheduler:  scheduler,
		Bus:        redisBus,
	}, nil
}
