package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/haventide/compass-backend/internal/data/repos/sessions"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/apierr"
)

func TestGetStateBootstrapsBlankSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()

	provider := &stubProvider{script: []stubStep{textStep("Welcome in.")}}
	svc := env.sessionService(env.turnService(provider))

	state, err := svc.GetState(context.Background(), user.ID, types.SessionKindInterview)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if len(state.Turns) != 1 || state.Turns[0].Role != types.TurnRoleAssistant {
		t.Fatalf("expected exactly one assistant turn, got %+v", state.Turns)
	}
	if len(state.Events) != 1 || state.Events[0].Type != types.EventTypeTitleCard {
		t.Fatalf("expected a title card event, got %+v", state.Events)
	}

	// Second load must not bootstrap again.
	state2, err := svc.GetState(context.Background(), user.ID, types.SessionKindInterview)
	if err != nil {
		t.Fatalf("GetState again: %v", err)
	}
	if len(state2.Turns) != 1 {
		t.Fatalf("bootstrap ran twice: %d turns", len(state2.Turns))
	}
	if provider.calls != 1 {
		t.Fatalf("expected a single provider call, got %d", provider.calls)
	}
}

func TestGetStateRejectsUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	svc := env.sessionService(env.turnService(&stubProvider{script: []stubStep{textStep("hi")}}))

	_, err := svc.GetState(context.Background(), user.ID, "module9")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_session_kind" {
		t.Fatalf("expected invalid_session_kind, got %v", err)
	}
}

func TestTimelineOrdersEventsByAnchor(t *testing.T) {
	turns := []*types.SessionTurn{
		{Seq: 0, Role: types.TurnRoleAssistant},
		{Seq: 1, Role: types.TurnRoleUser},
	}
	events := []*types.SessionEvent{
		{EventSeq: 0, Type: types.EventTypeTitleCard, AfterTurnSeq: -1},
		{EventSeq: 1, Type: types.EventTypeSectionHeader, AfterTurnSeq: 1},
		{EventSeq: 2, Type: types.EventTypeValueBullets, AfterTurnSeq: 1},
		{EventSeq: 3, Type: types.EventTypeProgress, AfterTurnSeq: 9},
	}

	timeline := buildTimeline(turns, events)
	want := []string{"event", "turn", "turn", "event", "event", "event"}
	if len(timeline) != len(want) {
		t.Fatalf("timeline length = %d, want %d", len(timeline), len(want))
	}
	for i, kind := range want {
		if timeline[i].Kind != kind {
			t.Fatalf("timeline[%d].Kind = %q, want %q", i, timeline[i].Kind, kind)
		}
	}
	if timeline[0].Event.Type != types.EventTypeTitleCard {
		t.Fatalf("title card must render first")
	}
	if timeline[3].Event.EventSeq != 1 || timeline[4].Event.EventSeq != 2 {
		t.Fatalf("events sharing an anchor must keep event_seq order")
	}
	// The orphaned event still renders at the end.
	if timeline[5].Event.AfterTurnSeq != 9 {
		t.Fatalf("orphaned event missing from timeline")
	}
}

func seedOutcomeCard(t *testing.T, env *testEnv, userID, sessionID uuid.UUID) *types.SessionEvent {
	t.Helper()
	raw, err := sessions.MarshalPayload(map[string]any{
		"prompt": "What matters most?",
		"options": []OutcomeOption{
			{ID: "strength", Label: "Get stronger"},
			{ID: "energy", Label: "More energy"},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	ev, err := env.eventRepo.Append(dbctx.Context{Ctx: context.Background()}, &types.SessionEvent{
		SessionID:    sessionID,
		UserID:       userID,
		Type:         types.EventTypeStructuredOutcomes,
		AfterTurnSeq: -1,
		Payload:      raw,
	})
	if err != nil {
		t.Fatalf("seed outcome card: %v", err)
	}
	return ev
}

func TestSelectOutcomeRecordsPick(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)
	card := seedOutcomeCard(t, env, user.ID, session.ID)

	svc := env.sessionService(env.turnService(&stubProvider{script: []stubStep{textStep("hi")}}))

	selected, err := svc.SelectOutcome(context.Background(), user.ID, session.ID, card.EventSeq, "strength")
	if err != nil {
		t.Fatalf("SelectOutcome: %v", err)
	}
	if selected.Type != types.EventTypeOutcomeSelected {
		t.Fatalf("expected outcome_selected event, got %q", selected.Type)
	}

	// Same pick again is idempotent and returns the original event.
	again, err := svc.SelectOutcome(context.Background(), user.ID, session.ID, card.EventSeq, "strength")
	if err != nil {
		t.Fatalf("repeat SelectOutcome: %v", err)
	}
	if again.ID != selected.ID {
		t.Fatalf("repeat pick created a new event")
	}

	// A different pick conflicts.
	_, err = svc.SelectOutcome(context.Background(), user.ID, session.ID, card.EventSeq, "energy")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "outcome_already_selected" {
		t.Fatalf("expected outcome_already_selected, got %v", err)
	}
}

func TestSelectOutcomeRejectsUnknownOption(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)
	card := seedOutcomeCard(t, env, user.ID, session.ID)

	svc := env.sessionService(env.turnService(&stubProvider{script: []stubStep{textStep("hi")}}))

	_, err := svc.SelectOutcome(context.Background(), user.ID, session.ID, card.EventSeq, "sleep")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_option" {
		t.Fatalf("expected invalid_option, got %v", err)
	}
}

func TestSelectOutcomeMissingCard(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	svc := env.sessionService(env.turnService(&stubProvider{script: []stubStep{textStep("hi")}}))

	_, err := svc.SelectOutcome(context.Background(), user.ID, session.ID, 42, "strength")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "outcomes_not_found" {
		t.Fatalf("expected outcomes_not_found, got %v", err)
	}
}

func TestResetUserClearsEverything(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()

	provider := &stubProvider{script: []stubStep{textStep("Welcome in.")}}
	svc := env.sessionService(env.turnService(provider))

	if _, err := svc.GetState(context.Background(), user.ID, types.SessionKindInterview); err != nil {
		t.Fatalf("GetState: %v", err)
	}
	dbc := dbctx.Context{Ctx: context.Background()}
	if err := env.journeyRepo.SetMilestone(dbc, user.ID, "interview_completed"); err != nil {
		t.Fatalf("set milestone: %v", err)
	}

	if err := svc.ResetUser(context.Background(), user.ID); err != nil {
		t.Fatalf("ResetUser: %v", err)
	}

	session, err := env.sessionRepo.GetByUserAndKind(dbc, user.ID, types.SessionKindInterview)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session != nil {
		t.Fatalf("session must be gone after reset")
	}
	state, err := env.journeyRepo.GetOrCreate(dbc, user.ID)
	if err != nil {
		t.Fatalf("journey state: %v", err)
	}
	if state.InterviewCompleted {
		t.Fatalf("journey milestones must reset")
	}
}
