package handlers

import (
	"net/http"
	"strconv"

	"tiketi/internal/services"
	"tiketi/models"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type EventHandler struct {
	app          *pocketbase.PocketBase
	eventService *services.EventService
}

func NewEventHandler(app *pocketbase.PocketBase, eventService *services.EventService) *EventHandler {
	return &EventHandler{
		app:          app,
		eventService: eventService,
	}
}

// ListEvents - GET /api/v1/events
func (h *EventHandler) ListEvents(e *core.RequestEvent) error {
	q := e.Request.URL.Query()

	filter := models.EventFilter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Location: q.Get("location"),
		Page:     intParam(q.Get("page"), 1),
		Size:     intParam(q.Get("size"), 20),
	}

	// The public catalog only shows published events. Organizers see
	// their drafts through the admin UI, not here.
	published := true
	filter.IsPublished = &published

	events, total, err := h.eventService.ListEvents(e.Request.Context(), filter)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"items": events,
		"total": total,
		"page":  filter.Page,
		"size":  filter.Size,
	})
}

// GetEvent - GET /api/v1/events/{eventId}
func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	event, err := h.eventService.GetEvent(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, event)
}

// Categories - GET /api/v1/events/categories
func (h *EventHandler) Categories(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, map[string]any{"categories": h.eventService.Categories()})
}

// CreateEvent - POST /api/v1/events
func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var event models.Event
	if err := e.BindBody(&event); err != nil {
		return apis.NewBadRequestError("Invalid request body", nil)
	}

	created, err := h.eventService.CreateEvent(e.Request.Context(), e.Auth.Id, &event)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, created)
}

// UpdateEvent - PATCH /api/v1/events/{eventId}
func (h *EventHandler) UpdateEvent(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var event models.Event
	if err := e.BindBody(&event); err != nil {
		return apis.NewBadRequestError("Invalid request body", nil)
	}
	event.ID = e.Request.PathValue("eventId")

	updated, err := h.eventService.UpdateEvent(e.Request.Context(), e.Auth.Id, &event)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, updated)
}

// DeleteEvent - DELETE /api/v1/events/{eventId}
func (h *EventHandler) DeleteEvent(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	if err := h.eventService.DeleteEvent(e.Request.Context(), e.Auth.Id, e.Request.PathValue("eventId")); err != nil {
		return apiError(err)
	}
	return e.NoContent(http.StatusNoContent)
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
