package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/realtime"
)

// TurnNotifier pushes turn and event updates to the user's SSE channel.
// All methods are fire-and-forget; a slow client never blocks a turn.
type TurnNotifier interface {
	TurnCreated(userID uuid.UUID, sessionID uuid.UUID, turn *types.SessionTurn)
	TurnDelta(userID uuid.UUID, sessionID uuid.UUID, delta string)
	TurnDone(userID uuid.UUID, sessionID uuid.UUID, turn *types.SessionTurn)
	TurnError(userID uuid.UUID, sessionID uuid.UUID, errMsg string)
	EventsUpdated(userID uuid.UUID, sessionID uuid.UUID, event *types.SessionEvent)
	JourneyMoved(userID uuid.UUID, phase string)
	PlanReady(userID uuid.UUID)
}

type turnNotifier struct {
	emit SSEEmitter
}

func NewTurnNotifier(emit SSEEmitter) TurnNotifier {
	return &turnNotifier{emit: emit}
}

func (n *turnNotifier) send(userID uuid.UUID, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   event,
		Data:    data,
	})
}

func (n *turnNotifier) TurnCreated(userID uuid.UUID, sessionID uuid.UUID, turn *types.SessionTurn) {
	n.send(userID, realtime.SSEEventTurnCreated, map[string]any{
		"session_id": sessionID,
		"turn":       turn,
	})
}

func (n *turnNotifier) TurnDelta(userID uuid.UUID, sessionID uuid.UUID, delta string) {
	if delta == "" {
		return
	}
	n.send(userID, realtime.SSEEventTurnDelta, map[string]any{
		"session_id": sessionID,
		"delta":      delta,
	})
}

func (n *turnNotifier) TurnDone(userID uuid.UUID, sessionID uuid.UUID, turn *types.SessionTurn) {
	n.send(userID, realtime.SSEEventTurnDone, map[string]any{
		"session_id": sessionID,
		"turn":       turn,
	})
}

func (n *turnNotifier) TurnError(userID uuid.UUID, sessionID uuid.UUID, errMsg string) {
	n.send(userID, realtime.SSEEventTurnError, map[string]any{
		"session_id": sessionID,
		"error":      errMsg,
	})
}

func (n *turnNotifier) EventsUpdated(userID uuid.UUID, sessionID uuid.UUID, event *types.SessionEvent) {
	n.send(userID, realtime.SSEEventEventsUpdated, map[string]any{
		"session_id": sessionID,
		"event":      event,
	})
}

func (n *turnNotifier) JourneyMoved(userID uuid.UUID, phase string) {
	n.send(userID, realtime.SSEEventJourneyMoved, map[string]any{
		"phase": phase,
	})
}

func (n *turnNotifier) PlanReady(userID uuid.UUID) {
	n.send(userID, realtime.SSEEventPlanReady, nil)
}
