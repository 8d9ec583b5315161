package gateway

import (
	"context"
	"fmt"

	"tiketi/internal/services/gateway/paystack"
	"tiketi/internal/status"
)

// PaystackAdapter wraps the Paystack hosted-checkout flow to conform to Gateway
type PaystackAdapter struct {
	client *paystack.Paystack
}

// NewPaystackAdapter creates a new Paystack card adapter
func NewPaystackAdapter(ctx context.Context, config *paystack.Config) (*PaystackAdapter, error) {
	client, err := paystack.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create paystack client: %w", err)
	}

	return &PaystackAdapter{
		client: client,
	}, nil
}

// Provider returns the provider type
func (p *PaystackAdapter) Provider() Provider {
	return ProviderPaystack
}

// Initialize starts a hosted checkout and returns the authorization URL
func (p *PaystackAdapter) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	checkout, err := p.client.InitializeTransaction(ctx, &paystack.CheckoutForm{
		Email:       req.Email,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	return &InitializeResult{
		AuthorizationURL: checkout.AuthorizationURL,
		AccessCode:       checkout.AccessCode,
		Reference:        checkout.Reference,
	}, nil
}

// Verify checks the reference against the transaction-verify endpoint
func (p *PaystackAdapter) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	txn, err := p.client.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	return verifyResultFromTransaction(txn), nil
}

// SetTransactionChannel sets the channel for receiving async confirmations
func (p *PaystackAdapter) SetTransactionChannel(ch chan *status.Transaction) {
	p.client.SetTransactionChannel(ch)
}

// Close gracefully closes any connections
func (p *PaystackAdapter) Close(ctx context.Context) error {
	return p.client.Close(ctx)
}

func verifyResultFromTransaction(txn *status.Transaction) *VerifyResult {
	result := &VerifyResult{
		Amount:   txn.Amount,
		Currency: txn.Currency,
		Channel:  txn.Channel,
		PaidAt:   txn.PaidAt,
	}

	switch txn.Status {
	case "success":
		result.Status = VerifySuccess
	case "failed":
		result.Status = VerifyFailed
	default:
		result.Status = VerifyPending
	}
	return result
}
