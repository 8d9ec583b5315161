package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TicketStatusPending   = "pending"
	TicketStatusPaid      = "paid"
	TicketStatusCancelled = "cancelled"
	TicketStatusUsed      = "used"
)

type Ticket struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	PaymentID      string          `json:"payment_id"`
	TicketTypeName string          `json:"ticket_type_name"`
	Quantity       int             `json:"quantity"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	BuyerName      string          `json:"buyer_name"`
	BuyerEmail     string          `json:"buyer_email"`
	BuyerPhone     string          `json:"buyer_phone,omitempty"`
	Status         string          `json:"status"`
	QRCodeURL      string          `json:"qr_code_url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Notification job types consumed by the queue worker.
const (
	NotifyTicketEmail = "ticket_email"
	NotifyTicketSMS   = "ticket_sms"
)

// NotificationJob is the unit of work pushed onto the redis queue after a
// successful verification. Attempts is bumped on each redelivery.
type NotificationJob struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TicketID string `json:"ticket_id"`
	EventID  string `json:"event_id"`
	Phone    string `json:"phone,omitempty"`
	Attempts int    `json:"attempts"`
}
