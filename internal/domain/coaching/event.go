package coaching

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types appended to a session's event stream. Events are never
// updated or deleted; corrections append a new event.
const (
	EventTypeTitleCard          = "title_card"
	EventTypeSectionHeader      = "section_header"
	EventTypeStructuredOutcomes = "structured_outcomes"
	EventTypeOutcomeSelected    = "outcome_selected"
	EventTypeValueBullets       = "value_bullets"
	EventTypeNameSet            = "name_set"
	EventTypeSocialProof        = "social_proof"
	EventTypePlanCard           = "plan_card"
	EventTypeProgress           = "progress"
	EventTypeModuleCompleted    = "module_completed"
	EventTypeInterviewFinalized = "interview_finalized"
)

type SessionEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_session_event_seq,unique,priority:1" json:"session_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	// EventSeq is gap-free per session and assigned under the session
	// row lock, never by the caller.
	EventSeq int64 `gorm:"column:event_seq;not null;index:idx_session_event_seq,unique,priority:2" json:"event_seq"`

	Type string `gorm:"column:type;not null;index" json:"type"`

	// AfterTurnSeq anchors the event in the rendered transcript: the
	// event renders after the turn with this seq. -1 renders before the
	// first turn.
	AfterTurnSeq int64 `gorm:"column:after_turn_seq;not null;default:-1" json:"after_turn_seq"`

	Payload datatypes.JSON `gorm:"type:jsonb;column:payload;not null;default:'{}'" json:"payload"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SessionEvent) TableName() string { return "session_event" }
