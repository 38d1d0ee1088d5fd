package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/data/repos/plans"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/apierr"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type PlanOverview struct {
	CoachingPlan *types.CoachingPlan `json:"coaching_plan,omitempty"`
	HasDossier   bool                `json:"has_dossier"`
	SeriousPlan  *types.SeriousPlan  `json:"serious_plan,omitempty"`
	InitStatus   string              `json:"init_status,omitempty"`
}

type PlanService interface {
	Overview(ctx context.Context, userID uuid.UUID) (*PlanOverview, error)

	// RequestInit enqueues plan initialization when it has not already
	// succeeded or been queued. Safe to call repeatedly.
	RequestInit(ctx context.Context, userID uuid.UUID) (*types.PlanInitRun, error)
}

type planService struct {
	db            *gorm.DB
	log           *logger.Logger
	coachingPlans plans.CoachingPlanRepo
	dossiers      plans.DossierRepo
	seriousPlans  plans.SeriousPlanRepo
	planInitRuns  plans.PlanInitRunRepo
}

func NewPlanService(db *gorm.DB, baseLog *logger.Logger, coachingPlans plans.CoachingPlanRepo, dossiers plans.DossierRepo, seriousPlans plans.SeriousPlanRepo, planInitRuns plans.PlanInitRunRepo) PlanService {
	return &planService{
		db:            db,
		log:           baseLog.With("service", "PlanService"),
		coachingPlans: coachingPlans,
		dossiers:      dossiers,
		seriousPlans:  seriousPlans,
		planInitRuns:  planInitRuns,
	}
}

func (s *planService) Overview(ctx context.Context, userID uuid.UUID) (*PlanOverview, error) {
	dbc := dbctx.Context{Ctx: ctx}
	out := &PlanOverview{}

	plan, err := s.coachingPlans.GetByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	out.CoachingPlan = plan

	dossier, err := s.dossiers.GetByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	out.HasDossier = dossier != nil

	serious, err := s.seriousPlans.GetByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	out.SeriousPlan = serious

	if run, err := s.planInitRuns.GetLatestByUserID(dbc, userID); err == nil && run != nil {
		out.InitStatus = run.Status
	}
	return out, nil
}

func (s *planService) RequestInit(ctx context.Context, userID uuid.UUID) (*types.PlanInitRun, error) {
	dbc := dbctx.Context{Ctx: ctx}

	plan, err := s.coachingPlans.GetByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apierr.New(http.StatusConflict, "plan_missing",
			fmt.Errorf("no coaching plan to initialize"))
	}
	done, err := s.seriousPlans.ExistsByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, apierr.New(http.StatusConflict, "already_initialized",
			fmt.Errorf("the plan is already initialized"))
	}
	if latest, err := s.planInitRuns.GetLatestByUserID(dbc, userID); err == nil && latest != nil {
		switch latest.Status {
		case types.PlanInitStatusQueued, types.PlanInitStatusRunning:
			return latest, nil
		}
	}
	run, err := s.planInitRuns.Create(dbc, &types.PlanInitRun{
		UserID:    userID,
		SessionID: plan.SessionID,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("plan initialization requested", "user_id", userID, "run_id", run.ID)
	return run, nil
}
