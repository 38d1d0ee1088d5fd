package sessions

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

type SessionRepo interface {
	Create(dbc dbctx.Context, sessions []*types.Session) ([]*types.Session, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error)
	GetByUserAndKind(dbc dbctx.Context, userID uuid.UUID, kind string) (*types.Session, error)
	GetOrCreate(dbc dbctx.Context, userID uuid.UUID, kind string) (*types.Session, error)

	// LockByID takes a FOR UPDATE lock on the session row. It must be
	// called inside a transaction (dbc.Tx set).
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error)

	// NextTurnSeq and NextEventSeq advance the session's counters and
	// return the newly assigned value. Callers must hold the row lock.
	NextTurnSeq(dbc dbctx.Context, id uuid.UUID) (int64, error)
	NextEventSeq(dbc dbctx.Context, id uuid.UUID) (int64, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, sessions []*types.Session) ([]*types.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sessions) == 0 {
		return []*types.Session{}, nil
	}
	for _, s := range sessions {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var session types.Session
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == uuid.Nil {
		return nil, nil
	}
	return &session, nil
}

func (r *sessionRepo) GetByUserAndKind(dbc dbctx.Context, userID uuid.UUID, kind string) (*types.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || kind == "" {
		return nil, nil
	}
	var session types.Session
	err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Limit(1).
		Find(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == uuid.Nil {
		return nil, nil
	}
	return &session, nil
}

func (r *sessionRepo) GetOrCreate(dbc dbctx.Context, userID uuid.UUID, kind string) (*types.Session, error) {
	existing, err := r.GetByUserAndKind(dbc, userID, kind)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	session := &types.Session{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		Status:     "active",
		LastTurnAt: time.Now(),
	}
	created, err := r.Create(dbc, []*types.Session{session})
	if err != nil {
		// Lost a create race against another request for the same
		// (user, kind); the unique index makes the winner canonical.
		raced, gErr := r.GetByUserAndKind(dbc, userID, kind)
		if gErr == nil && raced != nil {
			return raced, nil
		}
		return nil, err
	}
	return created[0], nil
}

func (r *sessionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	if dbc.Tx == nil {
		return nil, errors.New("LockByID requires a transaction")
	}
	var session types.Session
	err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) NextTurnSeq(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	return r.nextSeq(dbc, id, "next_turn_seq")
}

func (r *sessionRepo) NextEventSeq(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	return r.nextSeq(dbc, id, "next_event_seq")
}

func (r *sessionRepo) nextSeq(dbc dbctx.Context, id uuid.UUID, column string) (int64, error) {
	if dbc.Tx == nil {
		return 0, errors.New("seq assignment requires a transaction")
	}
	session, err := r.LockByID(dbc, id)
	if err != nil {
		return 0, err
	}
	var current int64
	switch column {
	case "next_turn_seq":
		current = session.NextTurnSeq
	case "next_event_seq":
		current = session.NextEventSeq
	default:
		return 0, errors.New("unknown seq column " + column)
	}
	next := current + 1
	err = dbc.Tx.WithContext(dbc.Ctx).
		Model(&types.Session{}).
		Where("id = ?", id).
		UpdateColumn(column, next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *sessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Session{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *sessionRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Delete(&types.Session{}).Error
}
