package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haventide/compass-backend/internal/platform/logger"
	"github.com/haventide/compass-backend/internal/services"
)

type PlanHandler struct {
	log   *logger.Logger
	plans services.PlanService
}

func NewPlanHandler(log *logger.Logger, plans services.PlanService) *PlanHandler {
	return &PlanHandler{
		log:   log.With("handler", "PlanHandler"),
		plans: plans,
	}
}

func (h *PlanHandler) Overview(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	overview, err := h.plans.Overview(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, overview)
}

func (h *PlanHandler) RequestInit(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	run, err := h.plans.RequestInit(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, run)
}
