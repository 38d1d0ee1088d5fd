package plans

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type SeriousPlanRepo interface {
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.SeriousPlan, error)
	ExistsByUserID(dbc dbctx.Context, userID uuid.UUID) (bool, error)
	CreateIfAbsent(dbc dbctx.Context, plan *types.SeriousPlan) (*types.SeriousPlan, bool, error)
	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error
}

type seriousPlanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSeriousPlanRepo(db *gorm.DB, baseLog *logger.Logger) SeriousPlanRepo {
	return &seriousPlanRepo{db: db, log: baseLog.With("repo", "SeriousPlanRepo")}
}

func (r *seriousPlanRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.SeriousPlan, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var plan types.SeriousPlan
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

func (r *seriousPlanRepo) ExistsByUserID(dbc dbctx.Context, userID uuid.UUID) (bool, error) {
	plan, err := r.GetByUserID(dbc, userID)
	if err != nil {
		return false, err
	}
	return plan != nil, nil
}

func (r *seriousPlanRepo) CreateIfAbsent(dbc dbctx.Context, plan *types.SeriousPlan) (*types.SeriousPlan, bool, error) {
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

func (r *seriousPlanRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Delete(&types.SeriousPlan{}).Error
}
