package coaching

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email string    `gorm:"column:email;not null;uniqueIndex" json:"email"`

	// ProvidedName is the name the user gave the coach during the
	// interview. First write wins; later writes are ignored.
	ProvidedName string `gorm:"column:provided_name;not null;default:''" json:"provided_name,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }
