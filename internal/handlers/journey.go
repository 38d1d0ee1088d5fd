package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haventide/compass-backend/internal/platform/logger"
	"github.com/haventide/compass-backend/internal/services"
)

type JourneyHandler struct {
	log     *logger.Logger
	journey services.JourneyService
}

func NewJourneyHandler(log *logger.Logger, journey services.JourneyService) *JourneyHandler {
	return &JourneyHandler{
		log:     log.With("handler", "JourneyHandler"),
		journey: journey,
	}
}

func (h *JourneyHandler) Routing(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	routing, err := h.journey.Routing(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, routing)
}

func (h *JourneyHandler) Gate(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	path := c.Query("path")
	if path == "" {
		RespondError(c, http.StatusUnprocessableEntity, "missing_path", fmt.Errorf("path query parameter is required"))
		return
	}
	decision, err := h.journey.Gate(c.Request.Context(), userID, path)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, decision)
}

type checkoutRequest struct {
	CheckoutID string `json:"checkout_id" binding:"required"`
}

func (h *JourneyHandler) StartCheckout(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_body", err)
		return
	}
	if err := h.journey.StartCheckout(c.Request.Context(), userID, req.CheckoutID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"checkout_id": req.CheckoutID})
}

func (h *JourneyHandler) CompleteCheckout(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_body", err)
		return
	}
	if err := h.journey.CompleteCheckout(c.Request.Context(), userID, req.CheckoutID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"purchased": true})
}

func (h *JourneyHandler) AbandonCheckout(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	if err := h.journey.AbandonCheckout(c.Request.Context(), userID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"abandoned": true})
}

func (h *JourneyHandler) MarkLetterViewed(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("forbidden"))
		return
	}
	if err := h.journey.MarkCoachLetterViewed(c.Request.Context(), userID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"viewed": true})
}
