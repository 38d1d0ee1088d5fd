package coaching

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Session kinds. Each kind carries its own system prompt and tool set.
const (
	SessionKindInterview   = "interview"
	SessionKindModuleOne   = "module1"
	SessionKindModuleTwo   = "module2"
	SessionKindModuleThree = "module3"
)

type Session struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index:idx_session_user_kind,unique,priority:1" json:"user_id"`
	Kind   string    `gorm:"column:kind;not null;index:idx_session_user_kind,unique,priority:2" json:"kind"`

	Status string `gorm:"column:status;not null;default:'active';index" json:"status"`

	// Concurrency-safe per-session sequencing. Both counters are only
	// advanced under a row lock on the session.
	NextTurnSeq  int64 `gorm:"column:next_turn_seq;not null;default:0" json:"next_turn_seq"`
	NextEventSeq int64 `gorm:"column:next_event_seq;not null;default:0" json:"next_event_seq"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	LastTurnAt time.Time `gorm:"column:last_turn_at;not null;index" json:"last_turn_at"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Session) TableName() string { return "coaching_session" }

// Turn roles.
const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

type SessionTurn struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_session_turn_seq,unique,priority:1" json:"session_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_session_turn_seq,unique,priority:2" json:"seq"`

	Role    string `gorm:"column:role;not null;index" json:"role"`
	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Model   string `gorm:"column:model" json:"model,omitempty"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SessionTurn) TableName() string { return "session_turn" }
