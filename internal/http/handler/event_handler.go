package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/calendar-bridge/internal/domain"
	"github.com/smallbiznis/calendar-bridge/internal/http/middleware"
)

// EventService is the event surface the handlers depend on.
type EventService interface {
	CreateEvent(ctx context.Context, identity string, req domain.EventRequest) (json.RawMessage, error)
	UpdateEvent(ctx context.Context, identity, eventID string, req domain.EventRequest) (json.RawMessage, error)
	DeleteEvent(ctx context.Context, identity, eventID string) error
}

// EventHandler forwards calendar event operations for the calling identity.
type EventHandler struct {
	Events EventService
}

// NewEventHandler creates the event handlers.
func NewEventHandler(events EventService) *EventHandler {
	return &EventHandler{Events: events}
}

// Create adds an event and returns the provider's representation of it.
func (h *EventHandler) Create(c *gin.Context) {
	req, ok := bindEventRequest(c)
	if !ok {
		return
	}
	identity, _ := middleware.GetIdentity(c)
	out, err := h.Events.CreateEvent(c.Request.Context(), identity, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// Update patches the event named in the path.
func (h *EventHandler) Update(c *gin.Context) {
	req, ok := bindEventRequest(c)
	if !ok {
		return
	}
	identity, _ := middleware.GetIdentity(c)
	out, err := h.Events.UpdateEvent(c.Request.Context(), identity, c.Param("id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// Delete removes the event named in the path.
func (h *EventHandler) Delete(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	if err := h.Events.DeleteEvent(c.Request.Context(), identity, c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully"})
}

func bindEventRequest(c *gin.Context) (domain.EventRequest, bool) {
	var req domain.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid event payload."})
		return domain.EventRequest{}, false
	}
	return req, true
}
