package store

import (
	"context"
	"errors"
	"fmt"

	"tiketi/internal/status"
	"tiketi/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

func eventFromRecord(r *core.Record) *models.Event {
	return &models.Event{
		ID:               r.Id,
		Title:            r.GetString("title"),
		Description:      r.GetString("description"),
		Category:         r.GetString("category"),
		Venue:            r.GetString("venue"),
		Location:         r.GetString("location"),
		StartDate:        r.GetDateTime("start_date").Time(),
		EndDate:          r.GetDateTime("end_date").Time(),
		ImageURL:         r.GetString("image_url"),
		OrganizerID:      r.GetString("organizer"),
		IsPublished:      r.GetBool("is_published"),
		Featured:         r.GetBool("featured"),
		TotalTicketsSold: r.GetInt("total_tickets_sold"),
		TotalRevenue:     decimal.NewFromFloat(r.GetFloat("total_revenue")),
		CreatedAt:        r.GetDateTime("created").Time(),
		UpdatedAt:        r.GetDateTime("updated").Time(),
	}
}

func ticketTypeFromRecord(r *core.Record) *models.TicketType {
	return &models.TicketType{
		ID:          r.Id,
		EventID:     r.GetString("event"),
		Name:        r.GetString("name"),
		Price:       decimal.NewFromFloat(r.GetFloat("price")),
		Quantity:    r.GetInt("quantity"),
		Description: r.GetString("description"),
		IsAvailable: r.GetBool("is_available"),
	}
}

func (s *Store) FindEventByID(_ context.Context, id string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", id)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, status.ErrNotFound)
	}
	return eventFromRecord(record), nil
}

// FindEventWithTicketTypes loads the event plus its tier records.
func (s *Store) FindEventWithTicketTypes(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.FindEventByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tiers, err := s.FindTicketTypes(ctx, id)
	if err != nil {
		return nil, err
	}
	event.TicketTypes = tiers

	return event, nil
}

func (s *Store) FindTicketTypes(_ context.Context, eventID string) ([]models.TicketType, error) {
	records, err := s.app.FindRecordsByFilter(
		"ticket_types",
		"event = {:eventId}",
		"+name",
		0,
		0,
		dbx.Params{"eventId": eventID},
	)
	if err != nil {
		return nil, fmt.Errorf("ticket types for event %s: %w", eventID, err)
	}

	tiers := make([]models.TicketType, 0, len(records))
	for _, r := range records {
		tiers = append(tiers, *ticketTypeFromRecord(r))
	}
	return tiers, nil
}

func (s *Store) FindTicketType(_ context.Context, eventID, name string) (*models.TicketType, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"ticket_types",
		"event = {:eventId} && name = {:name}",
		dbx.Params{"eventId": eventID, "name": name},
	)
	if err != nil {
		return nil, fmt.Errorf("ticket type %q: %w", name, status.ErrNotFound)
	}
	return ticketTypeFromRecord(record), nil
}

// DecrementTicketType takes qty units off the tier's inventory. The update is
// conditional on enough quantity remaining; the boolean result reports whether
// the decrement was applied.
func (s *Store) DecrementTicketType(_ context.Context, id string, qty int) (bool, error) {
	res, err := s.app.DB().NewQuery(
		"UPDATE ticket_types SET quantity = quantity - {:qty}, updated = {:now}" +
			" WHERE id = {:id} AND quantity >= {:qty}",
	).Bind(dbx.Params{"qty": qty, "id": id, "now": now()}).Execute()
	if err != nil {
		return false, fmt.Errorf("decrement ticket type %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordSale bumps the event's aggregate sales counters.
func (s *Store) RecordSale(_ context.Context, eventID string, qty int, revenue decimal.Decimal) error {
	rev, _ := revenue.Float64()
	_, err := s.app.DB().NewQuery(
		"UPDATE events SET total_tickets_sold = total_tickets_sold + {:qty}," +
			" total_revenue = total_revenue + {:rev}, updated = {:now} WHERE id = {:id}",
	).Bind(dbx.Params{"qty": qty, "rev": rev, "id": eventID, "now": now()}).Execute()
	if err != nil {
		return fmt.Errorf("record sale for event %s: %w", eventID, err)
	}
	return nil
}

func (s *Store) CreateEvent(_ context.Context, event *models.Event) error {
	collection, err := s.app.FindCollectionByNameOrId("events")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	applyEvent(record, event)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	event.ID = record.Id
	event.CreatedAt = record.GetDateTime("created").Time()
	event.UpdatedAt = record.GetDateTime("updated").Time()
	return nil
}

func (s *Store) UpdateEvent(_ context.Context, event *models.Event) error {
	record, err := s.app.FindRecordById("events", event.ID)
	if err != nil {
		return fmt.Errorf("event %s: %w", event.ID, status.ErrNotFound)
	}

	applyEvent(record, event)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("update event %s: %w", event.ID, err)
	}
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	record, err := s.app.FindRecordById("events", id)
	if err != nil {
		return fmt.Errorf("event %s: %w", id, status.ErrNotFound)
	}
	if err := s.app.Delete(record); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

func applyEvent(record *core.Record, event *models.Event) {
	record.Set("title", event.Title)
	record.Set("description", event.Description)
	record.Set("category", event.Category)
	record.Set("venue", event.Venue)
	record.Set("location", event.Location)
	record.Set("start_date", event.StartDate)
	record.Set("end_date", event.EndDate)
	record.Set("image_url", event.ImageURL)
	record.Set("organizer", event.OrganizerID)
	record.Set("is_published", event.IsPublished)
	record.Set("featured", event.Featured)
}

func (s *Store) CreateTicketType(_ context.Context, tier *models.TicketType) error {
	collection, err := s.app.FindCollectionByNameOrId("ticket_types")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("event", tier.EventID)
	record.Set("name", tier.Name)
	record.Set("price", tier.Price.InexactFloat64())
	record.Set("quantity", tier.Quantity)
	record.Set("description", tier.Description)
	record.Set("is_available", tier.IsAvailable)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("create ticket type %q: %w", tier.Name, err)
	}

	tier.ID = record.Id
	return nil
}

// ListEvents returns a filtered page of events plus the unpaged total.
func (s *Store) ListEvents(_ context.Context, filter models.EventFilter) ([]models.Event, int64, error) {
	exprs := []dbx.Expression{}
	if filter.Category != "" {
		exprs = append(exprs, dbx.HashExp{"category": filter.Category})
	}
	if filter.IsPublished != nil {
		exprs = append(exprs, dbx.HashExp{"is_published": *filter.IsPublished})
	}
	if filter.Location != "" {
		exprs = append(exprs, dbx.Like("location", filter.Location))
	}
	if filter.Query != "" {
		exprs = append(exprs, dbx.Or(
			dbx.Like("title", filter.Query),
			dbx.Like("description", filter.Query),
		))
	}

	total, err := s.app.CountRecords("events", exprs...)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	page, size := filter.Page, filter.Size
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	query := s.app.RecordQuery("events")
	for _, expr := range exprs {
		query.AndWhere(expr)
	}
	query.OrderBy("start_date ASC").
		Limit(int64(size)).
		Offset(int64((page - 1) * size))

	records := []*core.Record{}
	if err := query.All(&records); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	events := make([]models.Event, 0, len(records))
	for _, r := range records {
		events = append(events, *eventFromRecord(r))
	}
	return events, total, nil
}

// IsNotFound reports whether err carries the store's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, status.ErrNotFound)
}
