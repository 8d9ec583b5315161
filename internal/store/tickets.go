package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tiketi/internal/status"
	"tiketi/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

func ticketFromRecord(r *core.Record) *models.Ticket {
	return &models.Ticket{
		ID:             r.Id,
		UserID:         r.GetString("user"),
		EventID:        r.GetString("event"),
		PaymentID:      r.GetString("payment"),
		TicketTypeName: r.GetString("ticket_type_name"),
		Quantity:       r.GetInt("quantity"),
		TotalPrice:     decimal.NewFromFloat(r.GetFloat("total_price")),
		BuyerName:      r.GetString("buyer_name"),
		BuyerEmail:     r.GetString("buyer_email"),
		BuyerPhone:     r.GetString("buyer_phone"),
		Status:         r.GetString("status"),
		QRCodeURL:      r.GetString("qr_code_url"),
		CreatedAt:      r.GetDateTime("created").Time(),
		UpdatedAt:      r.GetDateTime("updated").Time(),
	}
}

func (s *Store) CreateTicket(_ context.Context, ticket *models.Ticket) error {
	collection, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("user", ticket.UserID)
	record.Set("event", ticket.EventID)
	record.Set("payment", ticket.PaymentID)
	record.Set("ticket_type_name", ticket.TicketTypeName)
	record.Set("quantity", ticket.Quantity)
	record.Set("total_price", ticket.TotalPrice.InexactFloat64())
	record.Set("buyer_name", ticket.BuyerName)
	record.Set("buyer_email", ticket.BuyerEmail)
	record.Set("buyer_phone", ticket.BuyerPhone)
	record.Set("status", ticket.Status)
	record.Set("qr_code_url", ticket.QRCodeURL)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("create ticket %s/%s: %w", ticket.PaymentID, ticket.TicketTypeName, err)
	}

	ticket.ID = record.Id
	ticket.CreatedAt = record.GetDateTime("created").Time()
	ticket.UpdatedAt = record.GetDateTime("updated").Time()
	return nil
}

// FindTicketByPaymentAndType looks up the ticket issued for one line item of
// a payment. A nil ticket with nil error means no ticket was issued yet; a
// broken lookup must not read as "not issued".
func (s *Store) FindTicketByPaymentAndType(_ context.Context, paymentID, typeName string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"tickets",
		"payment = {:paymentId} && ticket_type_name = {:typeName}",
		dbx.Params{"paymentId": paymentID, "typeName": typeName},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find ticket for payment %s type %q: %w", paymentID, typeName, err)
	}
	return ticketFromRecord(record), nil
}

func (s *Store) FindTicketByID(_ context.Context, id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById("tickets", id)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", id, status.ErrNotFound)
	}
	return ticketFromRecord(record), nil
}

func (s *Store) ListUserTickets(_ context.Context, userID string, page, size int) ([]models.Ticket, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	total, err := s.app.CountRecords("tickets", dbx.HashExp{"user": userID})
	if err != nil {
		return nil, 0, fmt.Errorf("count tickets for user %s: %w", userID, err)
	}

	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"user = {:userId}",
		"-created",
		size,
		(page-1)*size,
		dbx.Params{"userId": userID},
	)
	if err != nil {
		return nil, 0, fmt.Errorf("tickets for user %s: %w", userID, err)
	}

	tickets := make([]models.Ticket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, *ticketFromRecord(r))
	}
	return tickets, total, nil
}

func (s *Store) UpdateTicketStatus(_ context.Context, id, to string) error {
	record, err := s.app.FindRecordById("tickets", id)
	if err != nil {
		return fmt.Errorf("ticket %s: %w", id, status.ErrNotFound)
	}

	record.Set("status", to)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("update ticket %s status: %w", id, err)
	}
	return nil
}

func (s *Store) SetTicketQRCode(_ context.Context, id, dataURL string) error {
	record, err := s.app.FindRecordById("tickets", id)
	if err != nil {
		return fmt.Errorf("ticket %s: %w", id, status.ErrNotFound)
	}

	record.Set("qr_code_url", dataURL)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("set ticket %s qr code: %w", id, err)
	}
	return nil
}

// MarkTicketUsed flips a paid ticket to used. The update is conditional so a
// replayed QR scan cannot check the same ticket in twice.
func (s *Store) MarkTicketUsed(_ context.Context, id string) (bool, error) {
	res, err := s.app.DB().NewQuery(
		"UPDATE tickets SET status = {:to}, updated = {:now}" +
			" WHERE id = {:id} AND status = {:from}",
	).Bind(dbx.Params{
		"to":   models.TicketStatusUsed,
		"id":   id,
		"from": models.TicketStatusPaid,
		"now":  now(),
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("mark ticket %s used: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
