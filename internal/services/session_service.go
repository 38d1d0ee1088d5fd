package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/data/repos/plans"
	"github.com/haventide/compass-backend/internal/data/repos/sessions"
	"github.com/haventide/compass-backend/internal/data/repos/users"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/apierr"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

// TimelineItem interleaves turns and events into render order.
type TimelineItem struct {
	Kind  string              `json:"kind"` // "turn" | "event"
	Turn  *types.SessionTurn  `json:"turn,omitempty"`
	Event *types.SessionEvent `json:"event,omitempty"`
}

type SessionState struct {
	Session  *types.Session        `json:"session"`
	Turns    []*types.SessionTurn  `json:"turns"`
	Events   []*types.SessionEvent `json:"events"`
	Timeline []TimelineItem        `json:"timeline"`
}

type SessionService interface {
	// GetState returns the session for (user, kind), bootstrapping a
	// greeting turn and title card when the session is blank.
	GetState(ctx context.Context, userID uuid.UUID, kind string) (*SessionState, error)

	// SelectOutcome records the user's pick on a structured-outcomes
	// card. Re-picking the same option is a no-op; picking a different
	// option conflicts.
	SelectOutcome(ctx context.Context, userID, sessionID uuid.UUID, eventSeq int64, optionID string) (*types.SessionEvent, error)

	// ResetUser wipes all coaching data for the user. Dev-mode only.
	ResetUser(ctx context.Context, userID uuid.UUID) error
}

type SessionDeps struct {
	DB            *gorm.DB
	Log           *logger.Logger
	Turn          TurnService
	Notifier      TurnNotifier
	Sessions      sessions.SessionRepo
	Turns         sessions.SessionTurnRepo
	Events        sessions.SessionEventRepo
	JourneyStates users.JourneyStateRepo
	CoachingPlans plans.CoachingPlanRepo
	Dossiers      plans.DossierRepo
	SeriousPlans  plans.SeriousPlanRepo
	PlanInitRuns  plans.PlanInitRunRepo
}

type sessionService struct {
	SessionDeps
	log *logger.Logger
}

func NewSessionService(d SessionDeps) SessionService {
	return &sessionService{SessionDeps: d, log: d.Log.With("service", "SessionService")}
}

func validSessionKind(kind string) bool {
	switch kind {
	case types.SessionKindInterview, types.SessionKindModuleOne, types.SessionKindModuleTwo, types.SessionKindModuleThree:
		return true
	}
	return false
}

func (s *sessionService) GetState(ctx context.Context, userID uuid.UUID, kind string) (*SessionState, error) {
	if !validSessionKind(kind) {
		return nil, apierr.New(http.StatusUnprocessableEntity, "invalid_session_kind", fmt.Errorf("unknown session kind %q", kind))
	}
	dbc := dbctx.Context{Ctx: ctx}
	session, err := s.Sessions.GetOrCreate(dbc, userID, kind)
	if err != nil {
		return nil, err
	}

	turns, err := s.Turns.ListBySessionID(dbc, session.ID)
	if err != nil {
		return nil, err
	}
	events, err := s.Events.ListBySessionID(dbc, session.ID)
	if err != nil {
		return nil, err
	}

	if len(turns) == 0 && len(events) == 0 {
		if _, bErr := s.Turn.Bootstrap(ctx, userID, session.ID); bErr != nil {
			return nil, bErr
		}
		turns, err = s.Turns.ListBySessionID(dbc, session.ID)
		if err != nil {
			return nil, err
		}
		events, err = s.Events.ListBySessionID(dbc, session.ID)
		if err != nil {
			return nil, err
		}
	}

	return &SessionState{
		Session:  session,
		Turns:    turns,
		Events:   events,
		Timeline: buildTimeline(turns, events),
	}, nil
}

// buildTimeline orders the stream deterministically: events anchored
// before the first turn, then each turn followed by the events anchored
// to it. Ties between events keep event_seq order.
func buildTimeline(turns []*types.SessionTurn, events []*types.SessionEvent) []TimelineItem {
	byAnchor := make(map[int64][]*types.SessionEvent)
	for _, ev := range events {
		byAnchor[ev.AfterTurnSeq] = append(byAnchor[ev.AfterTurnSeq], ev)
	}

	out := make([]TimelineItem, 0, len(turns)+len(events))
	appendEvents := func(anchor int64) {
		for _, ev := range byAnchor[anchor] {
			out = append(out, TimelineItem{Kind: "event", Event: ev})
		}
		delete(byAnchor, anchor)
	}

	appendEvents(-1)
	appendEvents(0)
	for _, turn := range turns {
		out = append(out, TimelineItem{Kind: "turn", Turn: turn})
		appendEvents(turn.Seq)
	}
	// Events anchored past the last turn (orphaned by a reset) still
	// render at the end in event order.
	if len(byAnchor) > 0 {
		for _, ev := range events {
			if evs, ok := byAnchor[ev.AfterTurnSeq]; ok {
				for _, e := range evs {
					out = append(out, TimelineItem{Kind: "event", Event: e})
				}
				delete(byAnchor, ev.AfterTurnSeq)
			}
		}
	}
	return out
}

func (s *sessionService) SelectOutcome(ctx context.Context, userID, sessionID uuid.UUID, eventSeq int64, optionID string) (*types.SessionEvent, error) {
	if optionID == "" {
		return nil, apierr.New(http.StatusUnprocessableEntity, "invalid_option", fmt.Errorf("option id is empty"))
	}
	dbc := dbctx.Context{Ctx: ctx}
	session, err := s.Sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, apierr.New(http.StatusNotFound, "session_not_found", fmt.Errorf("session not found"))
	}

	card, err := s.Events.GetBySeq(dbc, session.ID, eventSeq)
	if err != nil {
		return nil, err
	}
	if card == nil || card.Type != types.EventTypeStructuredOutcomes {
		return nil, apierr.New(http.StatusNotFound, "outcomes_not_found", fmt.Errorf("no outcome card at seq %d", eventSeq))
	}

	var payload struct {
		Options []OutcomeOption `json:"options"`
	}
	if err := json.Unmarshal(card.Payload, &payload); err != nil {
		return nil, fmt.Errorf("outcome card payload: %w", err)
	}
	var chosen *OutcomeOption
	for i := range payload.Options {
		if payload.Options[i].ID == optionID {
			chosen = &payload.Options[i]
			break
		}
	}
	if chosen == nil {
		return nil, apierr.New(http.StatusUnprocessableEntity, "invalid_option", fmt.Errorf("option %q is not on this card", optionID))
	}

	selections, err := s.Events.ListBySessionIDAndType(dbc, session.ID, types.EventTypeOutcomeSelected)
	if err != nil {
		return nil, err
	}
	for _, sel := range selections {
		var selPayload struct {
			EventSeq int64  `json:"event_seq"`
			OptionID string `json:"option_id"`
		}
		if err := json.Unmarshal(sel.Payload, &selPayload); err != nil {
			continue
		}
		if selPayload.EventSeq != eventSeq {
			continue
		}
		if selPayload.OptionID == optionID {
			return sel, nil // same pick, idempotent
		}
		return nil, apierr.New(http.StatusConflict, "outcome_already_selected",
			fmt.Errorf("a different option was already selected for this card"))
	}

	turns, err := s.Turns.ListBySessionID(dbc, session.ID)
	if err != nil {
		return nil, err
	}
	raw, err := sessions.MarshalPayload(map[string]any{
		"event_seq": eventSeq,
		"option_id": chosen.ID,
		"label":     chosen.Label,
	})
	if err != nil {
		return nil, err
	}
	created, err := s.Events.Append(dbc, &types.SessionEvent{
		SessionID:    session.ID,
		UserID:       userID,
		Type:         types.EventTypeOutcomeSelected,
		AfterTurnSeq: lastSeq(turns),
		Payload:      raw,
	})
	if err != nil {
		return nil, err
	}
	s.Notifier.EventsUpdated(userID, session.ID, created)
	return created, nil
}

func (s *sessionService) ResetUser(ctx context.Context, userID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	for _, kind := range []string{types.SessionKindInterview, types.SessionKindModuleOne, types.SessionKindModuleTwo, types.SessionKindModuleThree} {
		session, err := s.Sessions.GetByUserAndKind(dbc, userID, kind)
		if err != nil {
			return err
		}
		if session == nil {
			continue
		}
		if err := s.Turns.DeleteBySessionID(dbc, session.ID); err != nil {
			return err
		}
		if err := s.Events.DeleteBySessionID(dbc, session.ID); err != nil {
			return err
		}
	}
	if err := s.Sessions.DeleteByUserID(dbc, userID); err != nil {
		return err
	}
	if err := s.CoachingPlans.DeleteByUserID(dbc, userID); err != nil {
		return err
	}
	if err := s.Dossiers.DeleteByUserID(dbc, userID); err != nil {
		return err
	}
	if err := s.SeriousPlans.DeleteByUserID(dbc, userID); err != nil {
		return err
	}
	if err := s.PlanInitRuns.DeleteByUserID(dbc, userID); err != nil {
		return err
	}
	if err := s.JourneyStates.Reset(dbc, userID); err != nil {
		return err
	}
	s.log.Info("user coaching data reset", "user_id", userID)
	return nil
}
