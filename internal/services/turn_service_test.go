package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/llm"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/apierr"
)

func toolCall(name string, args any) llm.ToolCall {
	raw, _ := json.Marshal(args)
	return llm.ToolCall{ID: uuid.NewString(), Name: name, Arguments: raw}
}

func TestRunTurnPersistsUserAndAssistantTurns(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{textStep("Good to meet you.")}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Hello there")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if out.UserTurn == nil || out.UserTurn.Content != "Hello there" {
		t.Fatalf("expected user turn, got %+v", out.UserTurn)
	}
	if out.AssistantTurn == nil || out.AssistantTurn.Content != "Good to meet you." {
		t.Fatalf("expected assistant turn, got %+v", out.AssistantTurn)
	}
	if out.UserTurn.Seq != 0 || out.AssistantTurn.Seq != 1 {
		t.Fatalf("expected seqs 0 and 1, got %d and %d", out.UserTurn.Seq, out.AssistantTurn.Seq)
	}

	turns, err := env.turnRepo.ListBySessionID(dbctx.Context{Ctx: context.Background()}, session.ID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(turns))
	}
}

func TestRunTurnRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	svc := env.turnService(&stubProvider{script: []stubStep{textStep("hi")}})
	_, err := svc.RunTurn(context.Background(), user.ID, session.ID, "   ")

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "empty_message" {
		t.Fatalf("expected empty_message error, got %v", err)
	}
}

func TestRunTurnProviderFailureLeavesNothingPersisted(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{{err: fmt.Errorf("upstream down")}}}
	svc := env.turnService(provider)

	_, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Hello")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("expected provider_error, got %v", err)
	}

	count, err := env.turnRepo.CountBySessionID(dbctx.Context{Ctx: context.Background()}, session.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted turns after provider failure, got %d", count)
	}
}

func TestRunTurnWrongUserIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser()
	other := env.seedUser()
	session := env.seedSession(owner.ID, types.SessionKindInterview)

	svc := env.turnService(&stubProvider{script: []stubStep{textStep("hi")}})
	_, err := svc.RunTurn(context.Background(), other.ID, session.ID, "Hello")

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "session_not_found" {
		t.Fatalf("expected session_not_found, got %v", err)
	}
}

func TestRunTurnToolLoopAppendsEvents(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("append_section_header", map[string]any{"title": "Your goals"})),
		textStep("Let's talk about your goals."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "I want to get stronger")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].Type != types.EventTypeSectionHeader {
		t.Fatalf("expected one section_header event, got %+v", out.Events)
	}
	if out.Events[0].AfterTurnSeq != out.UserTurn.Seq {
		t.Fatalf("event anchored at %d, want user turn seq %d", out.Events[0].AfterTurnSeq, out.UserTurn.Seq)
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", provider.calls)
	}

	// The second request must carry the tool result back to the model.
	last := provider.reqs[len(provider.reqs)-1]
	found := false
	for _, m := range last.Messages {
		if m.Role == llm.RoleTool && strings.Contains(m.Content, "section header") {
			found = true
		}
	}
	if !found {
		t.Fatalf("tool result missing from follow-up request")
	}
}

func TestRunTurnRoundLimitForcesTermination(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	// Every round asks for another tool; the loop must cut it off.
	always := toolStep("Working on it.", toolCall("append_section_header", map[string]any{"title": "More"}))
	provider := &stubProvider{script: []stubStep{always}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Keep going")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !out.Truncated {
		t.Fatalf("expected truncated output")
	}
	if provider.calls != 5 {
		t.Fatalf("expected exactly 5 provider calls, got %d", provider.calls)
	}
	if out.AssistantTurn == nil || out.AssistantTurn.Content == "" {
		t.Fatalf("truncated turn still needs a visible reply, got %+v", out.AssistantTurn)
	}
}

func TestRunTurnEmptyReplyRecovery(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{
		textStep(""),
		textStep("Here is a gentler restart."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Hello?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if out.AssistantTurn.Content != "Here is a gentler restart." {
		t.Fatalf("expected recovery text, got %q", out.AssistantTurn.Content)
	}
	// The recovery request must not offer tools again.
	last := provider.reqs[len(provider.reqs)-1]
	if len(last.Tools) != 0 {
		t.Fatalf("recovery call must disable tools")
	}
}

func TestRunTurnEmptyReplyFallsBackToFixedCopy(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{textStep(""), textStep("")}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Hello?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if out.AssistantTurn.Content != fallbackReply {
		t.Fatalf("expected fallback copy, got %q", out.AssistantTurn.Content)
	}
}

func TestRunTurnConcurrentRequestConflicts(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	svc := env.turnService(&stubProvider{script: []stubStep{textStep("hi")}}).(*turnService)
	if !svc.Locker.TryAcquire(session.ID) {
		t.Fatalf("setup: lock should be free")
	}
	defer svc.Locker.Release(session.ID)

	_, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Hello")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "generation_in_progress" {
		t.Fatalf("expected generation_in_progress, got %v", err)
	}
}

func TestRunTurnExtractsPlanCard(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	reply := "Here is what I suggest.\n```plan\n" +
		`{"title":"Strength Reset","summary":"Twelve weeks.","modules":[{"number":1,"title":"Foundations","description":"Base work"}]}` +
		"\n```\nHow does that sound?"
	provider := &stubProvider{script: []stubStep{textStep(reply)}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Show me the plan")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if strings.Contains(out.AssistantTurn.Content, "```plan") {
		t.Fatalf("plan block leaked into visible text: %q", out.AssistantTurn.Content)
	}

	plan, err := env.planRepo.GetByUserID(dbctx.Context{Ctx: context.Background()}, user.ID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if plan == nil || plan.Title != "Strength Reset" {
		t.Fatalf("expected persisted plan, got %+v", plan)
	}

	if len(out.Events) != 1 || out.Events[0].Type != types.EventTypePlanCard {
		t.Fatalf("expected plan_card event, got %+v", out.Events)
	}
	if out.Events[0].AfterTurnSeq != out.AssistantTurn.Seq {
		t.Fatalf("plan card anchored at %d, want assistant seq %d", out.Events[0].AfterTurnSeq, out.AssistantTurn.Seq)
	}
}

func TestTitleCardToolIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{
		toolStep("",
			toolCall("append_title_card", map[string]any{"title": "Welcome"}),
			toolCall("append_title_card", map[string]any{"title": "Welcome again"}),
		),
		textStep("Let's begin."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	titles := 0
	for _, ev := range out.Events {
		if ev.Type == types.EventTypeTitleCard {
			titles++
		}
	}
	if titles != 1 {
		t.Fatalf("expected exactly one title card, got %d", titles)
	}
}

func TestProvidedNameFirstWriteWins(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("set_provided_name", map[string]any{"name": "Ada"})),
		toolStep("", toolCall("set_provided_name", map[string]any{"name": "Grace"})),
		textStep("Nice to meet you, Ada."),
	}}
	svc := env.turnService(provider)

	if _, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Call me Ada. No wait, Grace."); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	stored, err := env.userRepo.GetByID(dbctx.Context{Ctx: context.Background()}, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.ProvidedName != "Ada" {
		t.Fatalf("expected first name to win, got %q", stored.ProvidedName)
	}

	// Only the write that landed announces itself to the client.
	events, err := env.eventRepo.ListBySessionIDAndType(dbctx.Context{Ctx: context.Background()}, session.ID, types.EventTypeNameSet)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one name_set event, got %d", len(events))
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Name != "Ada" {
		t.Fatalf("name_set payload = %q, want Ada", payload.Name)
	}
}

func TestInvalidToolInputSkipsWithoutAborting(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("append_structured_outcomes", map[string]any{
			"prompt":  "Pick one",
			"options": []map[string]any{},
		})),
		textStep("Moving on."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Options please")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(out.Events) != 0 {
		t.Fatalf("invalid tool input must not append events, got %+v", out.Events)
	}
	last := provider.reqs[len(provider.reqs)-1]
	skipped := false
	for _, m := range last.Messages {
		if m.Role == llm.RoleTool && strings.HasPrefix(m.Content, "skipped:") {
			skipped = true
		}
	}
	if !skipped {
		t.Fatalf("expected skipped tool result in follow-up request")
	}
}

func TestStructuredOutcomesTolerantDecode(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	// No prompt, a single option, and no id: the card still renders with
	// an id filled in.
	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("append_structured_outcomes", map[string]any{
			"options": []map[string]any{{"label": "Strength"}},
		})),
		textStep("Here is your option."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Options please")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].Type != types.EventTypeStructuredOutcomes {
		t.Fatalf("expected one structured_outcomes event, got %+v", out.Events)
	}
	var payload struct {
		Options []OutcomeOption `json:"options"`
	}
	if err := json.Unmarshal(out.Events[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(payload.Options) != 1 || payload.Options[0].ID == "" {
		t.Fatalf("expected an auto-assigned option id, got %+v", payload.Options)
	}
}

func TestValueBulletsTruncateToSix(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	bullets := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("append_value_bullets", map[string]any{"bullets": bullets})),
		textStep("Here is what you get."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "What do I get?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].Type != types.EventTypeValueBullets {
		t.Fatalf("expected one value_bullets event, got %+v", out.Events)
	}
	var payload struct {
		Bullets []string `json:"bullets"`
	}
	if err := json.Unmarshal(out.Events[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(payload.Bullets) != 6 {
		t.Fatalf("expected 6 bullets after truncation, got %d", len(payload.Bullets))
	}
}

func TestFinalizeWithoutPlanIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("finalize_interview", map[string]any{})),
		textStep("We still have a bit to cover."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Finish up")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if out.Finalized {
		t.Fatalf("finalize must be refused without a plan")
	}
	state, err := env.journeyRepo.GetOrCreate(dbctx.Context{Ctx: context.Background()}, user.ID)
	if err != nil {
		t.Fatalf("journey state: %v", err)
	}
	if state.InterviewCompleted {
		t.Fatalf("interview_completed must stay false")
	}
}

func TestFinalizeHappyPathEnqueuesPlanInit(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	modules, _ := json.Marshal([]PlanModule{{Number: 1, Title: "Foundations"}})
	if _, _, err := env.planRepo.CreateIfAbsent(dbctx.Context{Ctx: context.Background()}, &types.CoachingPlan{
		UserID:    user.ID,
		SessionID: session.ID,
		Title:     "Strength Reset",
		Modules:   modules,
	}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("finalize_interview", map[string]any{})),
		textStep("That wraps up our interview."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "I'm ready")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !out.Finalized {
		t.Fatalf("expected finalized output")
	}

	dbc := dbctx.Context{Ctx: context.Background()}
	state, err := env.journeyRepo.GetOrCreate(dbc, user.ID)
	if err != nil {
		t.Fatalf("journey state: %v", err)
	}
	if !state.InterviewCompleted {
		t.Fatalf("interview_completed must be set")
	}
	active, err := env.runRepo.HasActiveForUser(dbc, user.ID)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !active {
		t.Fatalf("expected a queued plan init run")
	}

	// The final card is renderable from the event alone.
	finals, err := env.eventRepo.ListBySessionIDAndType(dbc, session.ID, types.EventTypeInterviewFinalized)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(finals) != 1 {
		t.Fatalf("expected one interview_finalized event, got %d", len(finals))
	}
	var payload struct {
		Title   string       `json:"title"`
		Modules []PlanModule `json:"modules"`
	}
	if err := json.Unmarshal(finals[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(payload.Modules) != 1 || payload.Modules[0].Title != "Foundations" {
		t.Fatalf("expected module list in finalize payload, got %+v", payload.Modules)
	}

	// A second finalize is a no-op; no duplicate run appears.
	provider2 := &stubProvider{script: []stubStep{
		toolStep("", toolCall("finalize_interview", map[string]any{})),
		textStep("Already done."),
	}}
	svc2 := env.turnService(provider2)
	if _, err := svc2.RunTurn(context.Background(), user.ID, session.ID, "Finalize again"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	run, err := env.runRepo.GetLatestByUserID(dbc, user.ID)
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run == nil || run.Status != types.PlanInitStatusQueued {
		t.Fatalf("expected single queued run, got %+v", run)
	}
}

func TestCompleteModuleGuardsKind(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindModuleTwo)

	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("complete_module", map[string]any{"module": 3, "summary": "done"})),
		textStep("Not yet."),
	}}
	svc := env.turnService(provider)

	if _, err := svc.RunTurn(context.Background(), user.ID, session.ID, "Mark module three done"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	state, err := env.journeyRepo.GetOrCreate(dbctx.Context{Ctx: context.Background()}, user.ID)
	if err != nil {
		t.Fatalf("journey state: %v", err)
	}
	if state.ModuleThreeCompleted {
		t.Fatalf("module three must not complete from a module two session")
	}
}

func TestCompleteModuleOneSetsMilestone(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindModuleOne)

	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("complete_module", map[string]any{"module": 1, "summary": "outcome named"})),
		textStep("Module one is done."),
	}}
	svc := env.turnService(provider)

	if _, err := svc.RunTurn(context.Background(), user.ID, session.ID, "I named my outcome"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	state, err := env.journeyRepo.GetOrCreate(dbctx.Context{Ctx: context.Background()}, user.ID)
	if err != nil {
		t.Fatalf("journey state: %v", err)
	}
	if !state.ModuleOneCompleted {
		t.Fatalf("module_one_completed must be set")
	}
}

func TestCompleteModuleSetsMilestone(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindModuleTwo)

	provider := &stubProvider{script: []stubStep{
		toolStep("", toolCall("complete_module", map[string]any{"module": 2, "summary": "strong finish"})),
		textStep("Congratulations on finishing module two."),
	}}
	svc := env.turnService(provider)

	out, err := svc.RunTurn(context.Background(), user.ID, session.ID, "I finished the last exercise")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	state, err := env.journeyRepo.GetOrCreate(dbctx.Context{Ctx: context.Background()}, user.ID)
	if err != nil {
		t.Fatalf("journey state: %v", err)
	}
	if !state.ModuleTwoCompleted {
		t.Fatalf("module_two_completed must be set")
	}
	found := false
	for _, ev := range out.Events {
		if ev.Type == types.EventTypeModuleCompleted {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected module_completed event")
	}
}

func TestBootstrapCreatesGreetingAndTitleCard(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{textStep("Welcome. Let's get started.")}}
	svc := env.turnService(provider)

	out, err := svc.Bootstrap(context.Background(), user.ID, session.ID)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if out.UserTurn != nil {
		t.Fatalf("bootstrap must not persist a user turn")
	}
	if out.AssistantTurn == nil || out.AssistantTurn.Seq != 0 {
		t.Fatalf("expected assistant turn at seq 0, got %+v", out.AssistantTurn)
	}

	events, err := env.eventRepo.ListBySessionIDAndType(dbctx.Context{Ctx: context.Background()}, session.ID, types.EventTypeTitleCard)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].AfterTurnSeq != -1 {
		t.Fatalf("expected one title card before the first turn, got %+v", events)
	}
}

func TestRunTurnStreamEmitsDeltas(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser()
	session := env.seedSession(user.ID, types.SessionKindInterview)

	provider := &stubProvider{script: []stubStep{textStep("Streamed reply.")}}
	svc := env.turnService(provider)

	var got []string
	out, err := svc.RunTurnStream(context.Background(), user.ID, session.ID, "Hello", func(d string) {
		got = append(got, d)
	})
	if err != nil {
		t.Fatalf("RunTurnStream: %v", err)
	}
	if strings.Join(got, "") != "Streamed reply." {
		t.Fatalf("deltas = %q", got)
	}
	if out.AssistantTurn.Content != "Streamed reply." {
		t.Fatalf("assistant turn = %q", out.AssistantTurn.Content)
	}
}
