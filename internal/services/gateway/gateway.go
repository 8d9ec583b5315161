package gateway

import (
	"context"
	"time"

	"tiketi/internal/status"

	"github.com/shopspring/decimal"
)

// Provider represents the supported payment providers
type Provider string

const (
	ProviderPaystack Provider = "paystack"
	ProviderMpesa    Provider = "mpesa"
)

// InitializeRequest represents a generic transaction-initialize request
type InitializeRequest struct {
	Email       string          `json:"email"`
	Phone       string          `json:"phone,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reference   string          `json:"reference"`
	CallbackURL string          `json:"callback_url,omitempty"`

	// Metadata travels to the provider and back so that verification can
	// reconstruct intent without re-trusting client input.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// InitializeResult represents a started transaction
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url,omitempty"`
	AccessCode       string `json:"access_code,omitempty"`
	Reference        string `json:"reference"`
	DisplayText      string `json:"display_text,omitempty"` // mobile-money prompt
}

// VerifyStatus is the provider's record of truth for a reference
type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyFailed  VerifyStatus = "failed"
	VerifyPending VerifyStatus = "pending"
)

// VerifyResult represents the outcome of a transaction-verify call
type VerifyResult struct {
	Status           VerifyStatus    `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Channel          string          `json:"channel,omitempty"`
	PaidAt           time.Time       `json:"paid_at,omitempty"`
	ProviderResponse string          `json:"provider_response,omitempty"`
}

// Gateway defines the common interface for all payment providers
type Gateway interface {
	// Provider returns the provider type
	Provider() Provider

	// Initialize starts a transaction for the given amount and reference
	Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error)

	// Verify checks the reference against the provider's record of truth
	Verify(ctx context.Context, reference string) (*VerifyResult, error)

	// SetTransactionChannel sets the channel for receiving async confirmations
	SetTransactionChannel(ch chan *status.Transaction)

	// Close gracefully closes any connections
	Close(ctx context.Context) error
}

// Factory creates gateway instances based on provider type
type Factory interface {
	CreateGateway(ctx context.Context, provider Provider, config interface{}) (Gateway, error)
	GetSupportedProviders() []Provider
}
