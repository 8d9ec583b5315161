package services

import (
	"context"
	"fmt"
	"log/slog"

	"tiketi/internal/status"
	"tiketi/models"
)

// EventStore is the slice of the data layer the catalog needs.
type EventStore interface {
	FindEventByID(ctx context.Context, id string) (*models.Event, error)
	FindEventWithTicketTypes(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, int64, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	CreateTicketType(ctx context.Context, tier *models.TicketType) error
	UpdateEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id string) error
}

// EventService owns the event catalog.
type EventService struct {
	store EventStore
}

func NewEventService(store EventStore) *EventService {
	return &EventService{store: store}
}

// CreateEvent records a new event with its ticket tiers for the organizer.
func (s *EventService) CreateEvent(ctx context.Context, organizerID string, event *models.Event) (*models.Event, error) {
	if event.Title == "" {
		return nil, fmt.Errorf("%w: title is required", status.ErrInvalidInput)
	}
	if len(event.TicketTypes) == 0 {
		return nil, fmt.Errorf("%w: at least one ticket type is required", status.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(event.TicketTypes))
	for _, tt := range event.TicketTypes {
		if tt.Name == "" {
			return nil, fmt.Errorf("%w: ticket type name is required", status.ErrInvalidInput)
		}
		if seen[tt.Name] {
			return nil, fmt.Errorf("%w: duplicate ticket type %q", status.ErrInvalidInput, tt.Name)
		}
		seen[tt.Name] = true
		if tt.Quantity < 0 || tt.Price.IsNegative() {
			return nil, fmt.Errorf("%w: ticket type %q has negative price or quantity", status.ErrInvalidInput, tt.Name)
		}
	}

	event.OrganizerID = organizerID
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	for i := range event.TicketTypes {
		event.TicketTypes[i].EventID = event.ID
		if err := s.store.CreateTicketType(ctx, &event.TicketTypes[i]); err != nil {
			return nil, err
		}
	}

	slog.Info("event created", "event", event.ID, "organizer", organizerID)
	return event, nil
}

// GetEvent returns one event with its tiers.
func (s *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return s.store.FindEventWithTicketTypes(ctx, id)
}

// ListEvents returns a filtered page of the catalog.
func (s *EventService) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, int64, error) {
	return s.store.ListEvents(ctx, filter)
}

// Categories returns the fixed category list.
func (s *EventService) Categories() []string {
	return models.EventCategories
}

// UpdateEvent applies organizer edits to the event's own fields. Tier
// inventory is only ever touched by issuance.
func (s *EventService) UpdateEvent(ctx context.Context, organizerID string, event *models.Event) (*models.Event, error) {
	existing, err := s.store.FindEventByID(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if existing.OrganizerID != organizerID {
		return nil, fmt.Errorf("%w: event belongs to another organizer", status.ErrForbidden)
	}

	event.OrganizerID = existing.OrganizerID
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// DeleteEvent removes an event that has not sold anything yet.
func (s *EventService) DeleteEvent(ctx context.Context, organizerID, id string) error {
	existing, err := s.store.FindEventByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.OrganizerID != organizerID {
		return fmt.Errorf("%w: event belongs to another organizer", status.ErrForbidden)
	}
	if existing.TotalTicketsSold > 0 {
		return fmt.Errorf("%w: event has sold tickets", status.ErrConflict)
	}
	return s.store.DeleteEvent(ctx, id)
}
