package store

import (
	"context"
	"fmt"
	"time"

	"tiketi/internal/status"
	"tiketi/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

func paymentFromRecord(r *core.Record) (*models.Payment, error) {
	payment := &models.Payment{
		ID:               r.Id,
		UserID:           r.GetString("user"),
		EventID:          r.GetString("event"),
		Amount:           decimal.NewFromFloat(r.GetFloat("amount")),
		Currency:         r.GetString("currency"),
		Status:           r.GetString("status"),
		PaymentMethod:    r.GetString("payment_method"),
		Reference:        r.GetString("reference"),
		AuthorizationURL: r.GetString("authorization_url"),
		BuyerName:        r.GetString("buyer_name"),
		BuyerEmail:       r.GetString("buyer_email"),
		BuyerPhone:       r.GetString("buyer_phone"),
		CreatedAt:        r.GetDateTime("created").Time(),
		UpdatedAt:        r.GetDateTime("updated").Time(),
	}

	if err := r.UnmarshalJSONField("line_items", &payment.LineItems); err != nil {
		return nil, fmt.Errorf("payment %s line_items: %w", r.Id, err)
	}
	return payment, nil
}

func (s *Store) CreatePayment(_ context.Context, payment *models.Payment) error {
	collection, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("user", payment.UserID)
	record.Set("event", payment.EventID)
	record.Set("amount", payment.Amount.InexactFloat64())
	record.Set("currency", payment.Currency)
	record.Set("status", payment.Status)
	record.Set("payment_method", payment.PaymentMethod)
	record.Set("line_items", payment.LineItems)
	record.Set("reference", payment.Reference)
	record.Set("authorization_url", payment.AuthorizationURL)
	record.Set("buyer_name", payment.BuyerName)
	record.Set("buyer_email", payment.BuyerEmail)
	record.Set("buyer_phone", payment.BuyerPhone)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("create payment %s: %w", payment.Reference, err)
	}

	payment.ID = record.Id
	payment.CreatedAt = record.GetDateTime("created").Time()
	payment.UpdatedAt = record.GetDateTime("updated").Time()
	return nil
}

func (s *Store) FindPaymentByID(_ context.Context, id string) (*models.Payment, error) {
	record, err := s.app.FindRecordById("payments", id)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, status.ErrNotFound)
	}
	return paymentFromRecord(record)
}

func (s *Store) FindPaymentByReference(_ context.Context, reference string) (*models.Payment, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"payments",
		"reference = {:reference}",
		dbx.Params{"reference": reference},
	)
	if err != nil {
		return nil, fmt.Errorf("payment reference %s: %w", reference, status.ErrNotFound)
	}
	return paymentFromRecord(record)
}

func (s *Store) ListUserPayments(_ context.Context, userID string, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}

	records, err := s.app.FindRecordsByFilter(
		"payments",
		"user = {:userId}",
		"-created",
		limit,
		0,
		dbx.Params{"userId": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("payments for user %s: %w", userID, err)
	}

	payments := make([]models.Payment, 0, len(records))
	for _, r := range records {
		p, err := paymentFromRecord(r)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, nil
}

// TransitionPayment flips the payment's status from pending to the given
// terminal state. The update is conditional on the current status so a lost
// race is reported, never double-applied.
func (s *Store) TransitionPayment(_ context.Context, id, to string) (bool, error) {
	res, err := s.app.DB().NewQuery(
		"UPDATE payments SET status = {:to}, updated = {:now}" +
			" WHERE id = {:id} AND status = {:from}",
	).Bind(dbx.Params{
		"to":   to,
		"id":   id,
		"from": models.PaymentStatusPending,
		"now":  now(),
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("transition payment %s to %s: %w", id, to, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListStalePayments returns pending payments created before the cutoff.
// The expiry sweeper cancels these so abandoned checkouts do not linger.
func (s *Store) ListStalePayments(_ context.Context, olderThan time.Time) ([]models.Payment, error) {
	records, err := s.app.FindRecordsByFilter(
		"payments",
		"status = 'pending' && created < {:cutoff}",
		"created",
		200,
		0,
		dbx.Params{"cutoff": olderThan.UTC().Format("2006-01-02 15:04:05.000Z")},
	)
	if err != nil {
		return nil, fmt.Errorf("stale payments: %w", err)
	}

	payments := make([]models.Payment, 0, len(records))
	for _, r := range records {
		p, err := paymentFromRecord(r)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, nil
}
