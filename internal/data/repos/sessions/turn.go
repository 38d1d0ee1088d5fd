package sessions

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type SessionTurnRepo interface {
	Create(dbc dbctx.Context, turns []*types.SessionTurn) ([]*types.SessionTurn, error)
	ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.SessionTurn, error)
	CountBySessionID(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
	DeleteBySessionID(dbc dbctx.Context, sessionID uuid.UUID) error
}

type sessionTurnRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionTurnRepo(db *gorm.DB, baseLog *logger.Logger) SessionTurnRepo {
	return &sessionTurnRepo{db: db, log: baseLog.With("repo", "SessionTurnRepo")}
}

func (r *sessionTurnRepo) Create(dbc dbctx.Context, turns []*types.SessionTurn) ([]*types.SessionTurn, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(turns) == 0 {
		return []*types.SessionTurn{}, nil
	}
	for _, t := range turns {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

func (r *sessionTurnRepo) ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.SessionTurn, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SessionTurn
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionTurnRepo) CountBySessionID(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if sessionID == uuid.Nil {
		return 0, nil
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.SessionTurn{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *sessionTurnRepo) DeleteBySessionID(dbc dbctx.Context, sessionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if sessionID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Delete(&types.SessionTurn{}).Error
}
