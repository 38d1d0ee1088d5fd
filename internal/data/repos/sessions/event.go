package sessions

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type SessionEventRepo interface {
	// Append assigns the next gap-free event_seq under the session row
	// lock and inserts the event in the same transaction. When dbc.Tx
	// is set the append joins the caller's transaction.
	Append(dbc dbctx.Context, event *types.SessionEvent) (*types.SessionEvent, error)

	ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.SessionEvent, error)
	ListBySessionIDAndType(dbc dbctx.Context, sessionID uuid.UUID, eventType string) ([]*types.SessionEvent, error)
	GetBySeq(dbc dbctx.Context, sessionID uuid.UUID, eventSeq int64) (*types.SessionEvent, error)
	DeleteBySessionID(dbc dbctx.Context, sessionID uuid.UUID) error
}

type sessionEventRepo struct {
	db       *gorm.DB
	sessions SessionRepo
	log      *logger.Logger
}

func NewSessionEventRepo(db *gorm.DB, sessions SessionRepo, baseLog *logger.Logger) SessionEventRepo {
	return &sessionEventRepo{db: db, sessions: sessions, log: baseLog.With("repo", "SessionEventRepo")}
}

// MarshalPayload converts a payload value into the stored JSON column.
func MarshalPayload(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON([]byte("{}")), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func (r *sessionEventRepo) Append(dbc dbctx.Context, event *types.SessionEvent) (*types.SessionEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if event == nil || event.SessionID == uuid.Nil {
		return nil, fmt.Errorf("append requires a session id")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if len(event.Payload) == 0 {
		event.Payload = datatypes.JSON([]byte("{}"))
	}
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		seq, err := r.sessions.NextEventSeq(inner, event.SessionID)
		if err != nil {
			return err
		}
		event.EventSeq = seq
		return txx.Create(event).Error
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *sessionEventRepo) ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.SessionEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SessionEvent
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("event_seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionEventRepo) ListBySessionIDAndType(dbc dbctx.Context, sessionID uuid.UUID, eventType string) ([]*types.SessionEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SessionEvent
	if sessionID == uuid.Nil || eventType == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ? AND type = ?", sessionID, eventType).
		Order("event_seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionEventRepo) GetBySeq(dbc dbctx.Context, sessionID uuid.UUID, eventSeq int64) (*types.SessionEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if sessionID == uuid.Nil {
		return nil, nil
	}
	var event types.SessionEvent
	err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ? AND event_seq = ?", sessionID, eventSeq).
		Limit(1).
		Find(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == uuid.Nil {
		return nil, nil
	}
	return &event, nil
}

func (r *sessionEventRepo) DeleteBySessionID(dbc dbctx.Context, sessionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if sessionID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Delete(&types.SessionEvent{}).Error
}
