package handlers

import (
	"errors"
	"net/http"

	"tiketi/internal/services"
	"tiketi/internal/status"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TicketHandler struct {
	app           *pocketbase.PocketBase
	ticketService *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, ticketService *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:           app,
		ticketService: ticketService,
	}
}

// MyTickets - GET /api/v1/tickets/my-tickets
func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	q := e.Request.URL.Query()
	page := intParam(q.Get("page"), 1)
	size := intParam(q.Get("size"), 20)

	tickets, total, err := h.ticketService.ListMyTickets(e.Request.Context(), e.Auth.Id, page, size)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"items": tickets,
		"total": total,
		"page":  page,
		"size":  size,
	})
}

// GetTicket - GET /api/v1/tickets/{ticketId}
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticket, err := h.ticketService.GetTicket(e.Request.Context(), e.Auth.Id, e.Request.PathValue("ticketId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, ticket)
}

// CancelTicket - POST /api/v1/tickets/{ticketId}/cancel
func (h *TicketHandler) CancelTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticket, err := h.ticketService.CancelTicket(e.Request.Context(), e.Auth.Id, e.Request.PathValue("ticketId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, ticket)
}

type scanRequest struct {
	Code string `json:"code"`
}

// ValidateTicket - POST /api/v1/tickets/validate
//
// Scanner-side dry run: checks the code without consuming the ticket.
func (h *TicketHandler) ValidateTicket(e *core.RequestEvent) error {
	var req scanRequest
	if err := e.BindBody(&req); err != nil || req.Code == "" {
		return apis.NewBadRequestError("Missing code", nil)
	}

	ticket, err := h.ticketService.ValidateTicket(e.Request.Context(), req.Code)
	if err != nil {
		return scanError(e, ticket, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"valid":  true,
		"ticket": ticket,
	})
}

// CheckIn - POST /api/v1/tickets/check-in
func (h *TicketHandler) CheckIn(e *core.RequestEvent) error {
	var req scanRequest
	if err := e.BindBody(&req); err != nil || req.Code == "" {
		return apis.NewBadRequestError("Missing code", nil)
	}

	ticket, err := h.ticketService.CheckIn(e.Request.Context(), req.Code)
	if err != nil {
		return scanError(e, ticket, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"valid":    true,
		"admitted": true,
		"ticket":   ticket,
	})
}

// scanError keeps the scanner reply shape stable: conflicts (already used,
// cancelled) come back as 200 with valid=false so the gate app can show
// the reason, everything else maps through the usual taxonomy.
func scanError(e *core.RequestEvent, ticket any, err error) error {
	if errors.Is(err, status.ErrConflict) {
		return e.JSON(http.StatusOK, map[string]any{
			"valid":  false,
			"reason": "ticket already used or not admissible",
			"ticket": ticket,
		})
	}
	return apiError(err)
}
