package gateway

import (
	"context"
	"fmt"

	"tiketi/internal/services/gateway/paystack"
	"tiketi/internal/status"
)

// MpesaAdapter drives M-Pesa STK-push charges through the Paystack charge API
type MpesaAdapter struct {
	client *paystack.Paystack
}

// NewMpesaAdapter creates a new M-Pesa mobile-money adapter
func NewMpesaAdapter(ctx context.Context, config *paystack.Config) (*MpesaAdapter, error) {
	client, err := paystack.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create paystack client: %w", err)
	}

	return &MpesaAdapter{
		client: client,
	}, nil
}

// Provider returns the provider type
func (m *MpesaAdapter) Provider() Provider {
	return ProviderMpesa
}

// Initialize pushes an STK prompt to the buyer's phone
func (m *MpesaAdapter) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	if req.Phone == "" {
		return nil, fmt.Errorf("%w: phone number is required for mpesa", status.ErrInvalidInput)
	}

	charge, err := m.client.ChargeMobileMoney(ctx, &paystack.ChargeMobileForm{
		Email:     req.Email,
		Phone:     req.Phone,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reference: req.Reference,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	return &InitializeResult{
		Reference:   charge.Reference,
		DisplayText: charge.DisplayText,
	}, nil
}

// Verify checks the charge status; falls back to the verify endpoint once
// the charge has left the pending state.
func (m *MpesaAdapter) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	txn, err := m.client.CheckCharge(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Status != "pending" {
		if settled, err := m.client.VerifyTransaction(ctx, reference); err == nil {
			return verifyResultFromTransaction(settled), nil
		}
	}
	return verifyResultFromTransaction(txn), nil
}

// SetTransactionChannel sets the channel for receiving async confirmations
func (m *MpesaAdapter) SetTransactionChannel(ch chan *status.Transaction) {
	m.client.SetTransactionChannel(ch)
}

// Close gracefully closes any connections
func (m *MpesaAdapter) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}
