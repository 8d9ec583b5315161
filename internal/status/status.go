package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput          = errors.New("status: invalid input")
	ErrUnauthorized          = errors.New("status: unauthorized")
	ErrForbidden             = errors.New("status: forbidden")
	ErrNotFound              = errors.New("status: not found")
	ErrInsufficientInventory = errors.New("status: not enough tickets available")
	ErrPaymentFailed         = errors.New("status: payment failed")
	ErrPaymentPending        = errors.New("status: payment still pending")
	ErrServiceUnavailable    = errors.New("status: upstream service unavailable")
	ErrConflict              = errors.New("status: conflicting state")
)

// Transaction is a gateway-side confirmation pushed over the event feed.
type Transaction struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Channel   string          `json:"channel"`
	PaidAt    time.Time       `json:"paid_at"`
}

// Retryable reports whether the error is a transient upstream failure
// that callers may safely retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrPaymentPending)
}
