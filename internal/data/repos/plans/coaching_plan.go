package plans

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type CoachingPlanRepo interface {
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.CoachingPlan, error)

	// CreateIfAbsent keeps the first plan canonical: when a plan already
	// exists for the user the existing row is returned untouched.
	CreateIfAbsent(dbc dbctx.Context, plan *types.CoachingPlan) (*types.CoachingPlan, bool, error)

	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error
}

type coachingPlanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCoachingPlanRepo(db *gorm.DB, baseLog *logger.Logger) CoachingPlanRepo {
	return &coachingPlanRepo{db: db, log: baseLog.With("repo", "CoachingPlanRepo")}
}

func (r *coachingPlanRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.CoachingPlan, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var plan types.CoachingPlan
	err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == uuid.Nil {
		return nil, nil
	}
	return &plan, nil
}

func (r *coachingPlanRepo) CreateIfAbsent(dbc dbctx.Context, plan *types.CoachingPlan) (*types.CoachingPlan, bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	existing, err := r.GetByUserID(dbc, plan.UserID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(plan).Error; err != nil {
		raced, gErr := r.GetByUserID(dbc, plan.UserID)
		if gErr == nil && raced != nil {
			return raced, false, nil
		}
		return nil, false, err
	}
	return plan, true, nil
}

func (r *coachingPlanRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Delete(&types.CoachingPlan{}).Error
}
