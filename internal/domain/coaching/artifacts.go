package coaching

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CoachingPlan is the durable form of the plan card the coach presents
// at the end of the interview. One per user; create-if-absent.
type CoachingPlan struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`

	Title   string         `gorm:"column:title;not null;default:''" json:"title"`
	Summary string         `gorm:"column:summary;type:text;not null;default:''" json:"summary"`
	Modules datatypes.JSON `gorm:"type:jsonb;column:modules;not null;default:'[]'" json:"modules"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CoachingPlan) TableName() string { return "coaching_plan" }

// Dossier is the coach's synthesized profile of the user, generated
// from the interview transcript once the interview finalizes.
type Dossier struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`

	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Model   string `gorm:"column:model" json:"model,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Dossier) TableName() string { return "dossier" }

// SeriousPlan is the fully materialized program built by the plan
// initialization pipeline from the coaching plan and dossier.
type SeriousPlan struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	PlanID uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`

	Content datatypes.JSON `gorm:"type:jsonb;column:content;not null;default:'{}'" json:"content"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SeriousPlan) TableName() string { return "serious_plan" }

// PlanInitRun statuses.
const (
	PlanInitStatusQueued    = "queued"
	PlanInitStatusRunning   = "running"
	PlanInitStatusSucceeded = "succeeded"
	PlanInitStatusExhausted = "exhausted"
)

// PlanInitRun is a durable retry record for plan initialization. Runs
// survive restarts; a background worker claims due rows and retries on
// a fixed backoff ladder until success or exhaustion.
type PlanInitRun struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`

	Status   string `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Attempts int    `gorm:"column:attempts;not null;default:0" json:"attempts"`

	NextRunAt time.Time `gorm:"column:next_run_at;not null;index" json:"next_run_at"`
	LastError string    `gorm:"column:last_error;type:text;not null;default:''" json:"last_error,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PlanInitRun) TableName() string { return "plan_init_run" }
