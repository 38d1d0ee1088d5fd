package plans

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type PlanInitRunRepo interface {
	Create(dbc dbctx.Context, run *types.PlanInitRun) (*types.PlanInitRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PlanInitRun, error)

	// HasActiveForUser reports whether a queued or running run already
	// exists, so finalization never enqueues a duplicate.
	HasActiveForUser(dbc dbctx.Context, userID uuid.UUID) (bool, error)

	// ClaimNextDue picks the oldest queued run whose next_run_at has
	// passed, marks it running, and returns it. SKIP LOCKED keeps
	// concurrent workers off the same row.
	ClaimNextDue(dbc dbctx.Context, now time.Time) (*types.PlanInitRun, error)

	GetLatestByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.PlanInitRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error
}

type planInitRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanInitRunRepo(db *gorm.DB, baseLog *logger.Logger) PlanInitRunRepo {
	return &planInitRunRepo{db: db, log: baseLog.With("repo", "PlanInitRunRepo")}
}

func (r *planInitRunRepo) Create(dbc dbctx.Context, run *types.PlanInitRun) (*types.PlanInitRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = types.PlanInitStatusQueued
	}
	if run.NextRunAt.IsZero() {
		run.NextRunAt = time.Now()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *planInitRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PlanInitRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.PlanInitRun
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *planInitRunRepo) HasActiveForUser(dbc dbctx.Context, userID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return false, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.PlanInitRun{}).
		Where("user_id = ? AND status IN ?", userID, []string{
			types.PlanInitStatusQueued,
			types.PlanInitStatusRunning,
		}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *planInitRunRepo) ClaimNextDue(dbc dbctx.Context, now time.Time) (*types.PlanInitRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var claimed *types.PlanInitRun
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var run types.PlanInitRun
		qErr := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_run_at <= ?", types.PlanInitStatusQueued, now).
			Order("next_run_at ASC").
			First(&run).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.PlanInitRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":     types.PlanInitStatusRunning,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		run.Status = types.PlanInitStatusRunning
		claimed = &run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *planInitRunRepo) GetLatestByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.PlanInitRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var run types.PlanInitRun
	err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *planInitRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.PlanInitRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *planInitRunRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Delete(&types.PlanInitRun{}).Error
}
