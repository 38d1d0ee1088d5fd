package plans

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type DossierRepo interface {
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.Dossier, error)
	CreateIfAbsent(dbc dbctx.Context, dossier *types.Dossier) (*types.Dossier, bool, error)
	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error
}

type dossierRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDossierRepo(db *gorm.DB, baseLog *logger.Logger) DossierRepo {
	return &dossierRepo{db: db, log: baseLog.With("repo", "DossierRepo")}
}

func (r *dossierRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.Dossier, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var dossier types.Dossier
	err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&dossier).Error
	if err != nil {
		return nil, err
	}
	if dossier.ID == uuid.Nil {
		return nil, nil
	}
	return &dossier, nil
}

func (r *dossierRepo) CreateIfAbsent(dbc dbctx.Context, dossier *types.Dossier) (*types.Dossier, bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	existing, err := r.GetByUserID(dbc, dossier.UserID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if dossier.ID == uuid.Nil {
		dossier.ID = uuid.New()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(dossier).Error; err != nil {
		raced, gErr := r.GetByUserID(dbc, dossier.UserID)
		if gErr == nil && raced != nil {
			return raced, false, nil
		}
		return nil, false, err
	}
	return dossier, true, nil
}

func (r *dossierRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Delete(&types.Dossier{}).Error
}
