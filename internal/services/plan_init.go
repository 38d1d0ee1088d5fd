package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/data/repos/plans"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

// PlanInitializer materializes the full program from the coaching plan
// and dossier. It is a seam: swap in a remote pipeline without touching
// the scheduler.
type PlanInitializer interface {
	InitializePlan(ctx context.Context, userID uuid.UUID, plan *types.CoachingPlan, dossier *types.Dossier) (*types.SeriousPlan, error)
}

type planInitializer struct {
	db           *gorm.DB
	log          *logger.Logger
	seriousPlans plans.SeriousPlanRepo
}

func NewPlanInitializer(db *gorm.DB, baseLog *logger.Logger, seriousPlans plans.SeriousPlanRepo) PlanInitializer {
	return &planInitializer{
		db:           db,
		log:          baseLog.With("service", "PlanInitializer"),
		seriousPlans: seriousPlans,
	}
}

func (p *planInitializer) InitializePlan(ctx context.Context, userID uuid.UUID, plan *types.CoachingPlan, dossier *types.Dossier) (*types.SeriousPlan, error) {
	if plan == nil {
		return nil, fmt.Errorf("coaching plan missing")
	}
	if dossier == nil {
		return nil, fmt.Errorf("dossier missing")
	}

	var modules []PlanModule
	if err := json.Unmarshal(plan.Modules, &modules); err != nil {
		return nil, fmt.Errorf("plan modules: %w", err)
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("coaching plan has no modules")
	}

	content, err := json.Marshal(map[string]any{
		"title":      plan.Title,
		"summary":    plan.Summary,
		"modules":    modules,
		"dossier_id": dossier.ID,
	})
	if err != nil {
		return nil, err
	}

	serious, created, err := p.seriousPlans.CreateIfAbsent(dbctx.Context{Ctx: ctx}, &types.SeriousPlan{
		UserID:  userID,
		PlanID:  plan.ID,
		Content: content,
	})
	if err != nil {
		return nil, err
	}
	if created {
		p.log.Info("serious plan initialized", "user_id", userID, "modules", len(modules))
	}
	return serious, nil
}
