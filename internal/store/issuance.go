package store

import (
	"context"
	"fmt"

	"tiketi/internal/status"
	"tiketi/models"
)

// IssueTicket settles one line item of a completed payment. The tier
// decrement, the ticket row, and the event aggregates move together: if
// the unique (payment, ticket_type_name) index rejects a duplicate, the
// decrement rolls back with it.
func (s *Store) IssueTicket(ctx context.Context, payment *models.Payment, tierID string, item models.LineItem) (*models.Ticket, error) {
	var ticket *models.Ticket

	err := s.RunInTransaction(ctx, func(tx *Store) error {
		ok, err := tx.DecrementTicketType(ctx, tierID, item.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %q has fewer than %d left", status.ErrInsufficientInventory, item.Name, item.Quantity)
		}

		t := &models.Ticket{
			UserID:         payment.UserID,
			EventID:        payment.EventID,
			PaymentID:      payment.ID,
			TicketTypeName: item.Name,
			Quantity:       item.Quantity,
			TotalPrice:     item.Total(),
			BuyerName:      payment.BuyerName,
			BuyerEmail:     payment.BuyerEmail,
			BuyerPhone:     payment.BuyerPhone,
			Status:         models.TicketStatusPaid,
		}
		if err := tx.CreateTicket(ctx, t); err != nil {
			return err
		}
		if err := tx.RecordSale(ctx, payment.EventID, item.Quantity, item.Total()); err != nil {
			return err
		}

		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}
