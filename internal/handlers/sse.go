package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haventide/compass-backend/internal/platform/logger"
	"github.com/haventide/compass-backend/internal/realtime"
)

type SSEHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewSSEHandler(log *logger.Logger, hub *realtime.SSEHub) *SSEHandler {
	return &SSEHandler{
		log: log.With("handler", "SSEHandler"),
		hub: hub,
	}
}

// Stream holds the connection open and forwards every message published
// on the caller's user channel.
func (h *SSEHandler) Stream(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, userID.String())
	defer h.hub.CloseClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
