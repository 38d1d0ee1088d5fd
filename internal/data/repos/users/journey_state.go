package users

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type JourneyStateRepo interface {
	GetOrCreate(dbc dbctx.Context, userID uuid.UUID) (*types.JourneyState, error)

	// SetMilestone sets a boolean milestone column to true. Milestones
	// are monotone, so the update never writes false.
	SetMilestone(dbc dbctx.Context, userID uuid.UUID, column string) error

	UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error
	Reset(dbc dbctx.Context, userID uuid.UUID) error
}

type journeyStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJourneyStateRepo(db *gorm.DB, baseLog *logger.Logger) JourneyStateRepo {
	return &journeyStateRepo{db: db, log: baseLog.With("repo", "JourneyStateRepo")}
}

func (r *journeyStateRepo) GetOrCreate(dbc dbctx.Context, userID uuid.UUID) (*types.JourneyState, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	var state types.JourneyState
	err := dbc.DB(r.db).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&state).Error
	if err != nil {
		return nil, err
	}
	if state.ID != uuid.Nil {
		return &state, nil
	}
	state = types.JourneyState{ID: uuid.New(), UserID: userID}
	if err := dbc.DB(r.db).Create(&state).Error; err != nil {
		// Create race: another request made the row first.
		var raced types.JourneyState
		if gErr := dbc.DB(r.db).
			Where("user_id = ?", userID).
			Limit(1).
			Find(&raced).Error; gErr == nil && raced.ID != uuid.Nil {
			return &raced, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *journeyStateRepo) SetMilestone(dbc dbctx.Context, userID uuid.UUID, column string) error {
	if userID == uuid.Nil || column == "" {
		return nil
	}
	if _, err := r.GetOrCreate(dbc, userID); err != nil {
		return err
	}
	return dbc.DB(r.db).
		Model(&types.JourneyState{}).
		Where("user_id = ?", userID).
		UpdateColumn(column, true).Error
}

func (r *journeyStateRepo) UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error {
	if userID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, err := r.GetOrCreate(dbc, userID); err != nil {
		return err
	}
	return dbc.DB(r.db).
		Model(&types.JourneyState{}).
		Where("user_id = ?", userID).
		Updates(updates).Error
}

func (r *journeyStateRepo) Reset(dbc dbctx.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Model(&types.JourneyState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"interview_completed":    false,
			"purchased":              false,
			"module_one_completed":   false,
			"module_two_completed":   false,
			"module_three_completed": false,
			"coach_letter_viewed":    false,
			"pending_checkout_id":    "",
		}).Error
}
