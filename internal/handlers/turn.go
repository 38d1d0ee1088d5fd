package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haventide/compass-backend/internal/platform/logger"
	"github.com/haventide/compass-backend/internal/services"
)

type TurnHandler struct {
	log   *logger.Logger
	turns services.TurnService
}

func NewTurnHandler(log *logger.Logger, turns services.TurnService) *TurnHandler {
	return &TurnHandler{
		log:   log.With("handler", "TurnHandler"),
		turns: turns,
	}
}

type createTurnRequest struct {
	Message string `json:"message"`
}

func (h *TurnHandler) Create(c *gin.Context) {
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
	var req createTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_body", err)
		return
	}
	out, err := h.turns.RunTurn(c.Request.Context(), userID, sessionID, req.Message)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, out)
}

// Stream runs the turn and streams text deltas over SSE, ending with a
// done frame carrying the full turn result.
func (h *TurnHandler) Stream(c *gin.Context) {
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
	var req createTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_body", err)
		return
	}

	flusher, canFlush := c.Writer.(http.Flusher)
	if !canFlush {
		RespondError(c, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("streaming unsupported"))
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	deltas := make(chan string, 64)
	var out *services.TurnOutput

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		defer close(deltas)
		result, rErr := h.turns.RunTurnStream(ctx, userID, sessionID, req.Message, func(d string) {
			select {
			case deltas <- d:
			case <-ctx.Done():
			}
		})
		out = result
		return rErr
	})

	for d := range deltas {
		writeSSEFrame(c, "delta", gin.H{"delta": d})
		flusher.Flush()
	}

	if err := g.Wait(); err != nil {
		h.log.Warn("streamed turn failed", "session_id", sessionID, "error", err)
		writeSSEFrame(c, "error", gin.H{"error": err.Error()})
		flusher.Flush()
		return
	}
	writeSSEFrame(c, "done", out)
	flusher.Flush()
}

func writeSSEFrame(c *gin.Context, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, raw)
}
