package coaching

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JourneyState tracks the user's progress milestones. Every milestone
// flag is monotone: once set it is never cleared except by an explicit
// dev-mode reset.
type JourneyState struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`

	InterviewCompleted   bool `gorm:"column:interview_completed;not null;default:false" json:"interview_completed"`
	Purchased            bool `gorm:"column:purchased;not null;default:false" json:"purchased"`
	ModuleOneCompleted   bool `gorm:"column:module_one_completed;not null;default:false" json:"module_one_completed"`
	ModuleTwoCompleted   bool `gorm:"column:module_two_completed;not null;default:false" json:"module_two_completed"`
	ModuleThreeCompleted bool `gorm:"column:module_three_completed;not null;default:false" json:"module_three_completed"`
	CoachLetterViewed    bool `gorm:"column:coach_letter_viewed;not null;default:false" json:"coach_letter_viewed"`

	// PendingCheckoutID is set while a checkout is open and cleared on
	// completion or abandonment. It is the only non-monotone field.
	PendingCheckoutID string `gorm:"column:pending_checkout_id;not null;default:''" json:"pending_checkout_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JourneyState) TableName() string { return "journey_state" }
