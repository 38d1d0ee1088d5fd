package db

import (
	"gorm.io/gorm"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Identity
		&types.User{},

		// Coaching sessions: gap-free turn + event streams
		&types.Session{},
		&types.SessionTurn{},
		&types.SessionEvent{},

		// Journey milestones
		&types.JourneyState{},

		// Plan artifacts + durable plan-init retries
		&types.CoachingPlan{},
		&types.Dossier{},
		&types.SeriousPlan{},
		&types.PlanInitRun{},
	)
}
