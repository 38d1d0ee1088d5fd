package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/data/repos/plans"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/envutil"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

// planInitBackoff is the fixed retry ladder: attempt N failing
// schedules attempt N+1 after planInitBackoff[N-1].
var planInitBackoff = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
}

const planInitMaxAttempts = 6

// PlanInitScheduler drains durable plan-init runs. Runs live in the
// database, so retries survive restarts; the ticker claims due rows
// with SKIP LOCKED, which keeps multiple processes safe.
type PlanInitScheduler struct {
	db            *gorm.DB
	log           *logger.Logger
	runs          plans.PlanInitRunRepo
	coachingPlans plans.CoachingPlanRepo
	dossiers      plans.DossierRepo
	seriousPlans  plans.SeriousPlanRepo
	generation    GenerationService
	initializer   PlanInitializer
	notifier      TurnNotifier

	interval time.Duration
	now      func() time.Time
}

func NewPlanInitScheduler(
	db *gorm.DB,
	baseLog *logger.Logger,
	runs plans.PlanInitRunRepo,
	coachingPlans plans.CoachingPlanRepo,
	dossiers plans.DossierRepo,
	seriousPlans plans.SeriousPlanRepo,
	generation GenerationService,
	initializer PlanInitializer,
	notifier TurnNotifier,
) *PlanInitScheduler {
	return &PlanInitScheduler{
		db:            db,
		log:           baseLog.With("service", "PlanInitScheduler"),
		runs:          runs,
		coachingPlans: coachingPlans,
		dossiers:      dossiers,
		seriousPlans:  seriousPlans,
		generation:    generation,
		initializer:   initializer,
		notifier:      notifier,
		interval:      envutil.Duration("PLAN_INIT_POLL_INTERVAL", time.Second),
		now:           time.Now,
	}
}

func (s *PlanInitScheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// tick claims and processes every run that is due right now.
func (s *PlanInitScheduler) tick(ctx context.Context) {
	for {
		run, err := s.runs.ClaimNextDue(dbctx.Context{Ctx: ctx}, s.now())
		if err != nil {
			s.log.Error("plan init claim failed", "error", err)
			return
		}
		if run == nil {
			return
		}
		s.processRun(ctx, run)
	}
}

func (s *PlanInitScheduler) processRun(ctx context.Context, run *types.PlanInitRun) {
	dbc := dbctx.Context{Ctx: ctx}
	attempt := run.Attempts + 1

	done, err := s.seriousPlans.ExistsByUserID(dbc, run.UserID)
	if err == nil && done {
		s.finish(ctx, run, types.PlanInitStatusSucceeded, "")
		return
	}

	plan, err := s.coachingPlans.GetByUserID(dbc, run.UserID)
	if err != nil {
		s.retryOrExhaust(ctx, run, attempt, "load plan: "+err.Error())
		return
	}
	if plan == nil {
		s.retryOrExhaust(ctx, run, attempt, "coaching plan not ready")
		return
	}

	dossier, err := s.dossiers.GetByUserID(dbc, run.UserID)
	if err != nil {
		s.retryOrExhaust(ctx, run, attempt, "load dossier: "+err.Error())
		return
	}
	if dossier == nil {
		dossier, err = s.generation.GenerateDossier(ctx, run.UserID, run.SessionID)
		if err != nil {
			s.retryOrExhaust(ctx, run, attempt, "generate dossier: "+err.Error())
			return
		}
	}

	if _, err := s.initializer.InitializePlan(ctx, run.UserID, plan, dossier); err != nil {
		s.retryOrExhaust(ctx, run, attempt, "initialize: "+err.Error())
		return
	}

	s.finish(ctx, run, types.PlanInitStatusSucceeded, "")
	s.notifier.PlanReady(run.UserID)
}

func (s *PlanInitScheduler) retryOrExhaust(ctx context.Context, run *types.PlanInitRun, attempt int, reason string) {
	if attempt >= planInitMaxAttempts {
		s.log.Error("plan initialization exhausted, giving up",
			"run_id", run.ID, "user_id", run.UserID, "attempts", attempt, "last_error", reason)
		s.finishWithAttempts(ctx, run, types.PlanInitStatusExhausted, reason, attempt)
		return
	}
	delay := planInitBackoff[attempt-1]
	s.log.Warn("plan initialization attempt failed, rescheduling",
		"run_id", run.ID, "attempt", attempt, "retry_in", delay.String(), "reason", reason)
	if err := s.runs.UpdateFields(dbctx.Context{Ctx: ctx}, run.ID, map[string]interface{}{
		"status":      types.PlanInitStatusQueued,
		"attempts":    attempt,
		"next_run_at": s.now().Add(delay),
		"last_error":  reason,
	}); err != nil {
		s.log.Error("plan init reschedule failed", "run_id", run.ID, "error", err)
	}
}

func (s *PlanInitScheduler) finish(ctx context.Context, run *types.PlanInitRun, status, lastError string) {
	s.finishWithAttempts(ctx, run, status, lastError, run.Attempts+1)
}

func (s *PlanInitScheduler) finishWithAttempts(ctx context.Context, run *types.PlanInitRun, status, lastError string, attempts int) {
	if err := s.runs.UpdateFields(dbctx.Context{Ctx: ctx}, run.ID, map[string]interface{}{
		"status":     status,
		"attempts":   attempts,
		"last_error": lastError,
	}); err != nil {
		s.log.Error("plan init status update failed", "run_id", run.ID, "error", err)
	}
}
