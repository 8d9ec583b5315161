package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tiketi/internal/status"
	"tiketi/models"
)

// TicketStore is the slice of the data layer ticket operations need.
type TicketStore interface {
	FindTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	ListUserTickets(ctx context.Context, userID string, page, size int) ([]models.Ticket, int64, error)
	UpdateTicketStatus(ctx context.Context, id, to string) error
	MarkTicketUsed(ctx context.Context, id string) (bool, error)
	FindEventByID(ctx context.Context, id string) (*models.Event, error)
}

// TicketService answers ticket queries and runs gate-side validation.
type TicketService struct {
	store TicketStore
	qr    *QRService
}

func NewTicketService(store TicketStore, qr *QRService) *TicketService {
	return &TicketService{store: store, qr: qr}
}

// ListMyTickets returns the user's tickets, newest first.
func (s *TicketService) ListMyTickets(ctx context.Context, userID string, page, size int) ([]models.Ticket, int64, error) {
	return s.store.ListUserTickets(ctx, userID, page, size)
}

// GetTicket returns one ticket to its owner or to the event organizer.
func (s *TicketService) GetTicket(ctx context.Context, userID, ticketID string) (*models.Ticket, error) {
	ticket, err := s.store.FindTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID == userID {
		return ticket, nil
	}

	event, err := s.store.FindEventByID(ctx, ticket.EventID)
	if err == nil && event.OrganizerID == userID {
		return ticket, nil
	}
	return nil, fmt.Errorf("%w: ticket belongs to another user", status.ErrForbidden)
}

// CancelTicket voids an unused ticket before the event starts. Inventory is
// not restocked; cancelled seats stay sold.
func (s *TicketService) CancelTicket(ctx context.Context, userID, ticketID string) (*models.Ticket, error) {
	ticket, err := s.store.FindTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, fmt.Errorf("%w: ticket belongs to another user", status.ErrForbidden)
	}
	if ticket.Status != models.TicketStatusPending && ticket.Status != models.TicketStatusPaid {
		return nil, fmt.Errorf("%w: %s ticket cannot be cancelled", status.ErrConflict, ticket.Status)
	}

	event, err := s.store.FindEventByID(ctx, ticket.EventID)
	if err == nil && !event.StartDate.IsZero() && time.Now().After(event.StartDate) {
		return nil, fmt.Errorf("%w: event has already started", status.ErrConflict)
	}

	if err := s.store.UpdateTicketStatus(ctx, ticketID, models.TicketStatusCancelled); err != nil {
		return nil, err
	}
	ticket.Status = models.TicketStatusCancelled

	slog.Info("ticket cancelled", "ticket", ticketID, "user", userID)
	return ticket, nil
}

// ValidateTicket checks a scanned payload without consuming the ticket.
func (s *TicketService) ValidateTicket(ctx context.Context, payload string) (*models.Ticket, error) {
	ticketID, eventID, err := s.qr.Verify(payload)
	if err != nil {
		return nil, err
	}

	ticket, err := s.store.FindTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.EventID != eventID {
		return nil, fmt.Errorf("%w: code was issued for a different event", status.ErrUnauthorized)
	}

	switch ticket.Status {
	case models.TicketStatusPaid:
		return ticket, nil
	case models.TicketStatusUsed:
		return ticket, fmt.Errorf("%w: ticket already used", status.ErrConflict)
	default:
		return ticket, fmt.Errorf("%w: ticket is %s", status.ErrConflict, ticket.Status)
	}
}

// CheckIn validates a scanned payload and consumes the ticket. The flip to
// used is conditional, so two scanners racing on the same code admit once.
func (s *TicketService) CheckIn(ctx context.Context, payload string) (*models.Ticket, error) {
	ticket, err := s.ValidateTicket(ctx, payload)
	if err != nil {
		return ticket, err
	}

	ok, err := s.store.MarkTicketUsed(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return ticket, fmt.Errorf("%w: ticket already used", status.ErrConflict)
	}
	ticket.Status = models.TicketStatusUsed

	slog.Info("ticket checked in", "ticket", ticket.ID, "event", ticket.EventID)
	return ticket, nil
}
