package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/haventide/compass-backend/internal/platform/logger"
	"github.com/haventide/compass-backend/internal/services"
)

type SessionHandler struct {
	log      *logger.Logger
	sessions services.SessionService
}

func NewSessionHandler(log *logger.Logger, sessions services.SessionService) *SessionHandler {
	return &SessionHandler{
		log:      log.With("handler", "SessionHandler"),
		sessions: sessions,
	}
}

// GetState returns the full render state for the user's session of the
// given kind, creating and bootstrapping it on first visit.
func (h *SessionHandler) GetState(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	kind := c.Param("kind")
	state, err := h.sessions.GetState(c.Request.Context(), userID, kind)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, state)
}

type selectOutcomeRequest struct {
	EventSeq int64  `json:"event_seq"`
	OptionID string `json:"option_id" binding:"required"`
}

func (h *SessionHandler) SelectOutcome(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_session_id", fmt.Errorf("invalid session id"))
		return
	}
	var req selectOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_body", err)
		return
	}
	event, err := h.sessions.SelectOutcome(c.Request.Context(), userID, sessionID, req.EventSeq, req.OptionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"event": event})
}

// Reset wipes the user's coaching data. Only routed in dev mode.
func (h *SessionHandler) Reset(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	if err := h.sessions.ResetUser(c.Request.Context(), userID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"reset": true})
}
