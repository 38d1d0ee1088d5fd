package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/data/repos/users"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/journey"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/apierr"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type JourneyService interface {
	Routing(ctx context.Context, userID uuid.UUID) (*journey.Routing, error)
	Gate(ctx context.Context, userID uuid.UUID, path string) (*journey.Decision, error)

	StartCheckout(ctx context.Context, userID uuid.UUID, checkoutID string) error
	CompleteCheckout(ctx context.Context, userID uuid.UUID, checkoutID string) error
	AbandonCheckout(ctx context.Context, userID uuid.UUID) error
	MarkCoachLetterViewed(ctx context.Context, userID uuid.UUID) error
}

type journeyService struct {
	db            *gorm.DB
	log           *logger.Logger
	journeyStates users.JourneyStateRepo
	notifier      TurnNotifier
}

func NewJourneyService(db *gorm.DB, baseLog *logger.Logger, journeyStates users.JourneyStateRepo, notifier TurnNotifier) JourneyService {
	return &journeyService{
		db:            db,
		log:           baseLog.With("service", "JourneyService"),
		journeyStates: journeyStates,
		notifier:      notifier,
	}
}

func toJourneyState(state *types.JourneyState) journey.State {
	if state == nil {
		return journey.State{}
	}
	return journey.State{
		InterviewCompleted:   state.InterviewCompleted,
		Purchased:            state.Purchased,
		ModuleOneCompleted:   state.ModuleOneCompleted,
		ModuleTwoCompleted:   state.ModuleTwoCompleted,
		ModuleThreeCompleted: state.ModuleThreeCompleted,
		CoachLetterViewed:    state.CoachLetterViewed,
		PendingCheckoutID:    state.PendingCheckoutID,
	}
}

func (s *journeyService) Routing(ctx context.Context, userID uuid.UUID) (*journey.Routing, error) {
	state, err := s.journeyStates.GetOrCreate(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, err
	}
	r := journey.Compute(toJourneyState(state))
	return &r, nil
}

func (s *journeyService) Gate(ctx context.Context, userID uuid.UUID, path string) (*journey.Decision, error) {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "/") {
		return nil, apierr.New(http.StatusUnprocessableEntity, "invalid_path", fmt.Errorf("path must start with /"))
	}
	state, err := s.journeyStates.GetOrCreate(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, err
	}
	d := journey.Gate(toJourneyState(state), path)
	return &d, nil
}

func (s *journeyService) StartCheckout(ctx context.Context, userID uuid.UUID, checkoutID string) error {
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return apierr.New(http.StatusUnprocessableEntity, "invalid_checkout", fmt.Errorf("checkout id is empty"))
	}
	dbc := dbctx.Context{Ctx: ctx}
	state, err := s.journeyStates.GetOrCreate(dbc, userID)
	if err != nil {
		return err
	}
	if !state.InterviewCompleted {
		return apierr.New(http.StatusConflict, "interview_incomplete", fmt.Errorf("finish the interview before checkout"))
	}
	if state.Purchased {
		return apierr.New(http.StatusConflict, "already_purchased", fmt.Errorf("program already purchased"))
	}
	if err := s.journeyStates.UpdateFields(dbc, userID, map[string]interface{}{
		"pending_checkout_id": checkoutID,
	}); err != nil {
		return err
	}
	s.notifyPhase(ctx, userID)
	return nil
}

func (s *journeyService) CompleteCheckout(ctx context.Context, userID uuid.UUID, checkoutID string) error {
	dbc := dbctx.Context{Ctx: ctx}
	state, err := s.journeyStates.GetOrCreate(dbc, userID)
	if err != nil {
		return err
	}
	if state.Purchased {
		return nil // completion is idempotent
	}
	if state.PendingCheckoutID == "" || state.PendingCheckoutID != strings.TrimSpace(checkoutID) {
		return apierr.New(http.StatusConflict, "checkout_mismatch", fmt.Errorf("no matching pending checkout"))
	}
	if err := s.journeyStates.UpdateFields(dbc, userID, map[string]interface{}{
		"purchased":           true,
		"pending_checkout_id": "",
	}); err != nil {
		return err
	}
	s.log.Info("purchase recorded", "user_id", userID)
	s.notifyPhase(ctx, userID)
	return nil
}

func (s *journeyService) AbandonCheckout(ctx context.Context, userID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	if err := s.journeyStates.UpdateFields(dbc, userID, map[string]interface{}{
		"pending_checkout_id": "",
	}); err != nil {
		return err
	}
	s.notifyPhase(ctx, userID)
	return nil
}

func (s *journeyService) MarkCoachLetterViewed(ctx context.Context, userID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	state, err := s.journeyStates.GetOrCreate(dbc, userID)
	if err != nil {
		return err
	}
	if !state.ModuleThreeCompleted {
		return apierr.New(http.StatusConflict, "letter_not_ready", fmt.Errorf("the coach letter unlocks after module 3"))
	}
	if state.CoachLetterViewed {
		return nil
	}
	if err := s.journeyStates.SetMilestone(dbc, userID, "coach_letter_viewed"); err != nil {
		return err
	}
	s.notifyPhase(ctx, userID)
	return nil
}

func (s *journeyService) notifyPhase(ctx context.Context, userID uuid.UUID) {
	state, err := s.journeyStates.GetOrCreate(dbctx.Context{Ctx: ctx}, userID)
	if err != nil || state == nil {
		return
	}
	s.notifier.JourneyMoved(userID, string(journey.Compute(toJourneyState(state)).Phase))
}
