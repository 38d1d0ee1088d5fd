package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/data/repos/plans"
	"github.com/haventide/compass-backend/internal/data/repos/sessions"
	"github.com/haventide/compass-backend/internal/data/repos/users"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/journey"
	"github.com/haventide/compass-backend/internal/llm"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/apierr"
	"github.com/haventide/compass-backend/internal/platform/envutil"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type TurnOutput struct {
	UserTurn      *types.SessionTurn    `json:"user_turn,omitempty"`
	AssistantTurn *types.SessionTurn    `json:"assistant_turn"`
	Events        []*types.SessionEvent `json:"events"`
	Truncated     bool                  `json:"truncated,omitempty"`
	Finalized     bool                  `json:"finalized,omitempty"`
}

type TurnService interface {
	// RunTurn appends the user's message, runs the bounded tool loop,
	// and appends the assistant's reply.
	RunTurn(ctx context.Context, userID, sessionID uuid.UUID, message string) (*TurnOutput, error)

	// RunTurnStream is RunTurn with text deltas pushed through onDelta
	// as they arrive from the provider.
	RunTurnStream(ctx context.Context, userID, sessionID uuid.UUID, message string, onDelta func(delta string)) (*TurnOutput, error)

	// Bootstrap opens a blank session: one assistant greeting turn and
	// a title card, with no user turn.
	Bootstrap(ctx context.Context, userID, sessionID uuid.UUID) (*TurnOutput, error)
}

type TurnDeps struct {
	DB            *gorm.DB
	Log           *logger.Logger
	Provider      llm.Provider
	Locker        Locker
	Notifier      TurnNotifier
	Sessions      sessions.SessionRepo
	Turns         sessions.SessionTurnRepo
	Events        sessions.SessionEventRepo
	Users         users.UserRepo
	JourneyStates users.JourneyStateRepo
	CoachingPlans plans.CoachingPlanRepo
	SeriousPlans  plans.SeriousPlanRepo
	PlanInitRuns  plans.PlanInitRunRepo
}

type turnService struct {
	TurnDeps
	log           *logger.Logger
	maxRounds     int
	maxMessageLen int
}

func NewTurnService(d TurnDeps) TurnService {
	return &turnService{
		TurnDeps:      d,
		log:           d.Log.With("service", "TurnService"),
		maxRounds:     envutil.Int("TURN_MAX_ROUNDS", 5),
		maxMessageLen: envutil.Int("TURN_MAX_MESSAGE_CHARS", 8000),
	}
}

// turnRuntime carries per-turn state across tool executions.
type turnRuntime struct {
	session   *types.Session
	userID    uuid.UUID
	anchorSeq int64
	events    []*types.SessionEvent
	truncated bool
	finalized bool
}

func (s *turnService) RunTurn(ctx context.Context, userID, sessionID uuid.UUID, message string) (*TurnOutput, error) {
	return s.run(ctx, userID, sessionID, message, false, nil)
}

func (s *turnService) RunTurnStream(ctx context.Context, userID, sessionID uuid.UUID, message string, onDelta func(delta string)) (*TurnOutput, error) {
	return s.run(ctx, userID, sessionID, message, false, onDelta)
}

func (s *turnService) Bootstrap(ctx context.Context, userID, sessionID uuid.UUID) (*TurnOutput, error) {
	return s.run(ctx, userID, sessionID, "", true, nil)
}

func (s *turnService) run(ctx context.Context, userID, sessionID uuid.UUID, message string, bootstrap bool, onDelta func(string)) (*TurnOutput, error) {
	if !bootstrap {
		message = strings.TrimSpace(message)
		if message == "" {
			return nil, apierr.New(http.StatusUnprocessableEntity, "empty_message", fmt.Errorf("message is empty"))
		}
		if len([]rune(message)) > s.maxMessageLen {
			return nil, apierr.New(http.StatusUnprocessableEntity, "message_too_long",
				fmt.Errorf("message exceeds %d characters", s.maxMessageLen))
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	session, err := s.Sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, apierr.New(http.StatusNotFound, "session_not_found", fmt.Errorf("session not found"))
	}

	if !s.Locker.TryAcquire(session.ID) {
		return nil, apierr.New(http.StatusConflict, "generation_in_progress",
			fmt.Errorf("a reply is already being generated for this session"))
	}
	defer s.Locker.Release(session.ID)

	history, err := s.Turns.ListBySessionID(dbc, session.ID)
	if err != nil {
		return nil, err
	}

	rt := &turnRuntime{session: session, userID: userID, anchorSeq: lastSeq(history)}
	req := llm.Request{
		System:   systemPromptForKind(session.Kind),
		Messages: historyMessages(history),
		Tools:    llmToolsForKind(session.Kind),
	}
	if bootstrap {
		req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: bootstrapInstruction})
	} else {
		req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: message})
	}

	out := &TurnOutput{}
	lastText := ""
	userPersisted := bootstrap // bootstrap persists no user turn

	round := 0
	for ; round < s.maxRounds; round++ {
		comp, cErr := s.invoke(ctx, req, onDelta)
		if cErr != nil {
			s.Notifier.TurnError(userID, session.ID, "generation failed")
			return nil, apierr.New(http.StatusBadGateway, "provider_error", cErr)
		}

		// Nothing persists until the first provider call succeeds.
		if !userPersisted {
			userTurn, pErr := s.appendTurn(ctx, rt, types.TurnRoleUser, message, "")
			if pErr != nil {
				return nil, pErr
			}
			out.UserTurn = userTurn
			s.Notifier.TurnCreated(userID, session.ID, userTurn)
			userPersisted = true
		}

		if comp.Text != "" {
			lastText = comp.Text
		}
		if len(comp.ToolCalls) == 0 {
			break
		}

		req.Messages = append(req.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   comp.Text,
			ToolCalls: comp.ToolCalls,
		})
		for _, call := range comp.ToolCalls {
			result := s.executeToolCall(ctx, rt, call)
			req.Messages = append(req.Messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}
	if round == s.maxRounds {
		rt.truncated = true
		s.log.Warn("turn loop hit round limit, forcing termination",
			"session_id", session.ID, "rounds", s.maxRounds)
	}

	visible := lastText
	var card *PlanCard
	if session.Kind == types.SessionKindInterview {
		var perr error
		card, visible, perr = extractPlanCard(lastText)
		if perr != nil {
			s.log.Warn("dropping malformed plan card", "session_id", session.ID, "error", perr)
		}
	}

	if strings.TrimSpace(visible) == "" {
		visible = s.recoverEmptyReply(ctx, req, session, onDelta)
	}

	assistantTurn, err := s.appendTurn(ctx, rt, types.TurnRoleAssistant, visible, "")
	if err != nil {
		s.Notifier.TurnError(userID, session.ID, "failed to save reply")
		return nil, err
	}
	rt.anchorSeq = assistantTurn.Seq

	if card != nil {
		s.persistPlanCard(ctx, rt, card)
	}
	if bootstrap {
		s.ensureTitleCard(ctx, rt)
	}

	_ = s.Sessions.UpdateFields(dbctx.Context{Ctx: ctx}, session.ID, map[string]interface{}{
		"last_turn_at": time.Now(),
	})
	s.Notifier.TurnDone(userID, session.ID, assistantTurn)

	out.AssistantTurn = assistantTurn
	out.Events = rt.events
	out.Truncated = rt.truncated
	out.Finalized = rt.finalized
	return out, nil
}

func (s *turnService) invoke(ctx context.Context, req llm.Request, onDelta func(string)) (*llm.Completion, error) {
	if onDelta == nil {
		return s.Provider.Complete(ctx, req)
	}
	return s.Provider.Stream(ctx, req, llm.StreamHandler{OnTextDelta: onDelta})
}

// recoverEmptyReply makes one tools-disabled retry, then falls back to
// fixed copy. The turn always ends with visible prose.
func (s *turnService) recoverEmptyReply(ctx context.Context, req llm.Request, session *types.Session, onDelta func(string)) string {
	retry := llm.Request{
		System:   req.System,
		Messages: append(append([]llm.Message{}, req.Messages...), llm.Message{Role: llm.RoleUser, Content: emptyReplyNudge}),
	}
	comp, err := s.Provider.Complete(ctx, retry)
	text := ""
	if err != nil {
		s.log.Warn("empty reply recovery call failed", "session_id", session.ID, "error", err)
	} else {
		text = strings.TrimSpace(comp.Text)
	}
	if text == "" {
		s.log.Warn("empty reply after recovery, using fallback", "session_id", session.ID)
		text = fallbackReply
	}
	if onDelta != nil {
		onDelta(text)
	}
	return text
}

func (s *turnService) appendTurn(ctx context.Context, rt *turnRuntime, role, content, model string) (*types.SessionTurn, error) {
	var created *types.SessionTurn
	err := s.DB.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: txx}
		seq, err := s.Sessions.NextTurnSeq(inner, rt.session.ID)
		if err != nil {
			return err
		}
		turn := &types.SessionTurn{
			SessionID: rt.session.ID,
			UserID:    rt.userID,
			Seq:       seq,
			Role:      role,
			Content:   content,
			Model:     model,
		}
		rows, err := s.Turns.Create(inner, []*types.SessionTurn{turn})
		if err != nil {
			return err
		}
		created = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if role == types.TurnRoleUser {
		rt.anchorSeq = created.Seq
	}
	return created, nil
}

func (s *turnService) appendEvent(ctx context.Context, rt *turnRuntime, eventType string, afterTurnSeq int64, payload map[string]any) (*types.SessionEvent, error) {
	raw, err := sessions.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	event := &types.SessionEvent{
		SessionID:    rt.session.ID,
		UserID:       rt.userID,
		Type:         eventType,
		AfterTurnSeq: afterTurnSeq,
		Payload:      raw,
	}
	created, err := s.Events.Append(dbctx.Context{Ctx: ctx}, event)
	if err != nil {
		return nil, err
	}
	rt.events = append(rt.events, created)
	s.Notifier.EventsUpdated(rt.userID, rt.session.ID, created)
	return created, nil
}

func (s *turnService) persistPlanCard(ctx context.Context, rt *turnRuntime, card *PlanCard) {
	dbc := dbctx.Context{Ctx: ctx}
	modules, err := json.Marshal(card.Modules)
	if err != nil {
		s.log.Warn("plan modules marshal failed", "session_id", rt.session.ID, "error", err)
		return
	}
	plan := &types.CoachingPlan{
		UserID:    rt.userID,
		SessionID: rt.session.ID,
		Title:     card.Title,
		Summary:   card.Summary,
		Modules:   modules,
	}
	stored, created, err := s.CoachingPlans.CreateIfAbsent(dbc, plan)
	if err != nil {
		s.log.Error("coaching plan persist failed", "session_id", rt.session.ID, "error", err)
		return
	}
	if !created {
		s.log.Debug("coaching plan already exists, keeping original", "user_id", rt.userID)
	}
	if _, err := s.appendEvent(ctx, rt, types.EventTypePlanCard, rt.anchorSeq, map[string]any{
		"plan_id": stored.ID,
		"title":   stored.Title,
		"summary": stored.Summary,
		"modules": card.Modules,
	}); err != nil {
		s.log.Error("plan card event append failed", "session_id", rt.session.ID, "error", err)
	}
}

// ensureTitleCard guarantees a bootstrapped session renders a title
// card even when the model never called the tool.
func (s *turnService) ensureTitleCard(ctx context.Context, rt *turnRuntime) {
	existing, err := s.Events.ListBySessionIDAndType(dbctx.Context{Ctx: ctx}, rt.session.ID, types.EventTypeTitleCard)
	if err != nil || len(existing) > 0 {
		return
	}
	if _, err := s.appendEvent(ctx, rt, types.EventTypeTitleCard, -1, map[string]any{
		"title": "Your Coaching Session",
	}); err != nil {
		s.log.Warn("default title card append failed", "session_id", rt.session.ID, "error", err)
	}
}

func (s *turnService) executeToolCall(ctx context.Context, rt *turnRuntime, call llm.ToolCall) string {
	in, err := decodeToolInput(call.Name, call.Arguments)
	if err != nil {
		s.log.Warn("skipping tool call", "tool", call.Name, "session_id", rt.session.ID, "reason", err)
		return "skipped: " + err.Error()
	}
	dbc := dbctx.Context{Ctx: ctx}

	switch in := in.(type) {
	case titleCardInput:
		existing, lErr := s.Events.ListBySessionIDAndType(dbc, rt.session.ID, types.EventTypeTitleCard)
		if lErr != nil {
			return "failed: " + lErr.Error()
		}
		if len(existing) > 0 {
			return "skipped: a title card already exists"
		}
		if _, aErr := s.appendEvent(ctx, rt, types.EventTypeTitleCard, -1, map[string]any{
			"title":    in.Title,
			"subtitle": in.Subtitle,
		}); aErr != nil {
			return "failed: " + aErr.Error()
		}
		return "title card rendered"

	case sectionHeaderInput:
		if _, aErr := s.appendEvent(ctx, rt, types.EventTypeSectionHeader, rt.anchorSeq, map[string]any{
			"title": in.Title,
		}); aErr != nil {
			return "failed: " + aErr.Error()
		}
		return "section header rendered"

	case providedNameInput:
		wrote, uErr := s.Users.SetProvidedNameIfEmpty(dbc, rt.userID, in.Name)
		if uErr != nil {
			return "failed: " + uErr.Error()
		}
		if !wrote {
			return "skipped: a name was already recorded, keeping the original"
		}
		if _, aErr := s.appendEvent(ctx, rt, types.EventTypeNameSet, rt.anchorSeq, map[string]any{
			"name": in.Name,
		}); aErr != nil {
			s.log.Error("name event append failed", "session_id", rt.session.ID, "error", aErr)
		}
		return fmt.Sprintf("name %q recorded", in.Name)

	case structuredOutcomesInput:
		if _, aErr := s.appendEvent(ctx, rt, types.EventTypeStructuredOutcomes, rt.anchorSeq, map[string]any{
			"prompt":  in.Prompt,
			"options": in.Options,
		}); aErr != nil {
			return "failed: " + aErr.Error()
		}
		return "outcome options rendered"

	case valueBulletsInput:
		if _, aErr := s.appendEvent(ctx, rt, types.EventTypeValueBullets, rt.anchorSeq, map[string]any{
			"bullets": in.Bullets,
		}); aErr != nil {
			return "failed: " + aErr.Error()
		}
		return "value bullets rendered"

	case socialProofInput:
		if _, aErr := s.appendEvent(ctx, rt, types.EventTypeSocialProof, rt.anchorSeq, map[string]any{
			"quote":       in.Quote,
			"attribution": in.Attribution,
		}); aErr != nil {
			return "failed: " + aErr.Error()
		}
		return "social proof rendered"

	case progressInput:
		if _, aErr := s.appendEvent(ctx, rt, types.EventTypeProgress, rt.anchorSeq, map[string]any{
			"percent": in.Percent,
		}); aErr != nil {
			return "failed: " + aErr.Error()
		}
		return fmt.Sprintf("progress set to %d%%", in.Percent)

	case completeModuleInput:
		return s.completeModule(ctx, rt, in)

	case struct{}: // finalize_interview
		return s.finalizeInterview(ctx, rt)
	}
	return "skipped: unknown tool"
}

func (s *turnService) finalizeInterview(ctx context.Context, rt *turnRuntime) string {
	if rt.session.Kind != types.SessionKindInterview {
		return "skipped: not an interview session"
	}
	dbc := dbctx.Context{Ctx: ctx}

	state, err := s.JourneyStates.GetOrCreate(dbc, rt.userID)
	if err != nil {
		return "failed: " + err.Error()
	}
	if state.InterviewCompleted || rt.finalized {
		return "skipped: the interview is already finalized"
	}

	plan, err := s.CoachingPlans.GetByUserID(dbc, rt.userID)
	if err != nil {
		return "failed: " + err.Error()
	}
	if plan == nil {
		return "skipped: present the plan card before finalizing"
	}
	var modules []PlanModule
	if err := json.Unmarshal(plan.Modules, &modules); err != nil || len(modules) == 0 {
		return "skipped: the plan needs at least one module before finalizing"
	}

	if err := s.JourneyStates.SetMilestone(dbc, rt.userID, "interview_completed"); err != nil {
		return "failed: " + err.Error()
	}
	if _, err := s.appendEvent(ctx, rt, types.EventTypeInterviewFinalized, rt.anchorSeq, map[string]any{
		"plan_id": plan.ID,
		"title":   plan.Title,
		"modules": modules,
	}); err != nil {
		s.log.Error("finalize event append failed", "session_id", rt.session.ID, "error", err)
	}
	s.enqueuePlanInit(ctx, rt, plan)
	rt.finalized = true
	s.Notifier.JourneyMoved(rt.userID, string(journey.PhaseOffer))
	s.log.Info("interview finalized", "session_id", rt.session.ID, "user_id", rt.userID)
	return "interview finalized"
}

func (s *turnService) enqueuePlanInit(ctx context.Context, rt *turnRuntime, plan *types.CoachingPlan) {
	dbc := dbctx.Context{Ctx: ctx}
	done, err := s.SeriousPlans.ExistsByUserID(dbc, rt.userID)
	if err != nil || done {
		return
	}
	active, err := s.PlanInitRuns.HasActiveForUser(dbc, rt.userID)
	if err != nil || active {
		return
	}
	if _, err := s.PlanInitRuns.Create(dbc, &types.PlanInitRun{
		UserID:    rt.userID,
		SessionID: rt.session.ID,
	}); err != nil {
		s.log.Error("plan init enqueue failed", "user_id", rt.userID, "error", err)
	}
}

func (s *turnService) completeModule(ctx context.Context, rt *turnRuntime, in completeModuleInput) string {
	dbc := dbctx.Context{Ctx: ctx}
	var column string
	switch {
	case in.Module == 1 && rt.session.Kind == types.SessionKindModuleOne:
		column = "module_one_completed"
	case in.Module == 2 && rt.session.Kind == types.SessionKindModuleTwo:
		column = "module_two_completed"
	case in.Module == 3 && rt.session.Kind == types.SessionKindModuleThree:
		column = "module_three_completed"
	default:
		return fmt.Sprintf("skipped: module %d does not belong to this session", in.Module)
	}
	state, err := s.JourneyStates.GetOrCreate(dbc, rt.userID)
	if err != nil {
		return "failed: " + err.Error()
	}
	if (column == "module_one_completed" && state.ModuleOneCompleted) ||
		(column == "module_two_completed" && state.ModuleTwoCompleted) ||
		(column == "module_three_completed" && state.ModuleThreeCompleted) {
		return "skipped: this module is already complete"
	}
	if err := s.JourneyStates.SetMilestone(dbc, rt.userID, column); err != nil {
		return "failed: " + err.Error()
	}
	if _, err := s.appendEvent(ctx, rt, types.EventTypeModuleCompleted, rt.anchorSeq, map[string]any{
		"module":  in.Module,
		"summary": in.Summary,
	}); err != nil {
		s.log.Error("module completion event append failed", "session_id", rt.session.ID, "error", err)
	}
	fresh, _ := s.JourneyStates.GetOrCreate(dbc, rt.userID)
	if fresh != nil {
		s.Notifier.JourneyMoved(rt.userID, string(journey.Compute(toJourneyState(fresh)).Phase))
	}
	return fmt.Sprintf("module %d marked complete", in.Module)
}

func historyMessages(turns []*types.SessionTurn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == types.TurnRoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: t.Content})
	}
	return out
}

func lastSeq(turns []*types.SessionTurn) int64 {
	if len(turns) == 0 {
		return -1
	}
	return turns[len(turns)-1].Seq
}
