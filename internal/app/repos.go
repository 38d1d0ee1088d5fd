package app

import (
	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/data/repos/plans"
	"github.com/haventide/compass-backend/internal/data/repos/sessions"
	"github.com/haventide/compass-backend/internal/data/repos/users"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type Repos struct {
	User         users.UserRepo
	JourneyState users.JourneyStateRepo
	Session      sessions.SessionRepo
	SessionTurn  sessions.SessionTurnRepo
	SessionEvent sessions.SessionEventRepo
	CoachingPlan plans.CoachingPlanRepo
	Dossier      plans.DossierRepo
	SeriousPlan  plans.SeriousPlanRepo
	PlanInitRun  plans.PlanInitRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	sessionRepo := sessions.NewSessionRepo(db, log)
	return Repos{
		User:         users.NewUserRepo(db, log),
		JourneyState: users.NewJourneyStateRepo(db, log),
		Session:      sessionRepo,
		SessionTurn:  sessions.NewSessionTurnRepo(db, log),
		SessionEvent: sessions.NewSessionEventRepo(db, sessionRepo, log),
		CoachingPlan: plans.NewCoachingPlanRepo(db, log),
		Dossier:      plans.NewDossierRepo(db, log),
		SeriousPlan:  plans.NewSeriousPlanRepo(db, log),
		PlanInitRun:  plans.NewPlanInitRunRepo(db, log),
	}
}
