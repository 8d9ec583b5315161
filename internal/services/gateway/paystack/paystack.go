// Package paystack integrates the Paystack REST API for card checkouts and
// M-Pesa mobile-money charges, plus the realtime confirmation feed.
package paystack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tiketi/internal/status"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

type Config struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string

	// Confirmation feed. Optional; verification still works by polling
	// the verify endpoint when no feed is configured.
	FeedSubscribeKey string
	FeedChannel      string
	FeedUUID         string
}

type Paystack struct {
	cfg     *Config
	client  *client
	pn      *pubnub.PubNub
	txnChan chan *status.Transaction
	done    chan struct{}
}

// CheckoutForm is the input for a hosted card checkout.
type CheckoutForm struct {
	Email       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

// Checkout is a started hosted checkout the buyer must complete.
type Checkout struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// ChargeMobileForm is the input for an STK-push mobile-money charge.
type ChargeMobileForm struct {
	Email     string
	Phone     string
	Amount    decimal.Decimal
	Currency  string
	Reference string
	Metadata  map[string]any
}

// Charge is a started mobile-money charge awaiting buyer confirmation.
type Charge struct {
	Reference   string
	Status      string
	DisplayText string
}

func New(ctx context.Context, cfg *Config) (*Paystack, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: paystack secret key is required", status.ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}

	p := &Paystack{
		cfg:    cfg,
		client: newClient(cfg.BaseURL, cfg.SecretKey),
		done:   make(chan struct{}),
	}

	if cfg.FeedSubscribeKey != "" && cfg.FeedChannel != "" {
		if err := p.subscribeFeed(); err != nil {
			return nil, fmt.Errorf("subscribe confirmation feed: %w", err)
		}
	}
	return p, nil
}

func (p *Paystack) SetTransactionChannel(ch chan *status.Transaction) {
	p.txnChan = ch
}

func (p *Paystack) InitializeTransaction(ctx context.Context, form *CheckoutForm) (*Checkout, error) {
	data, err := p.client.initializeTransaction(ctx, &initializeForm{
		Email:       form.Email,
		Amount:      toMinorUnits(form.Amount),
		Currency:    form.Currency,
		Reference:   form.Reference,
		CallbackURL: form.CallbackURL,
		Metadata:    form.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &Checkout{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (p *Paystack) ChargeMobileMoney(ctx context.Context, form *ChargeMobileForm) (*Charge, error) {
	data, err := p.client.chargeMobileMoney(ctx, &chargeForm{
		Email:     form.Email,
		Amount:    toMinorUnits(form.Amount),
		Currency:  form.Currency,
		Reference: form.Reference,
		MobileMoney: mobileMoney{
			Phone:    form.Phone,
			Provider: "mpesa",
		},
		Metadata: form.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &Charge{
		Reference:   data.Reference,
		Status:      data.Status,
		DisplayText: data.DisplayText,
	}, nil
}

func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	data, err := p.client.verifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	return toTransaction(data), nil
}

func (p *Paystack) CheckCharge(ctx context.Context, reference string) (*status.Transaction, error) {
	data, err := p.client.checkCharge(ctx, reference)
	if err != nil {
		return nil, err
	}
	return toTransaction(data), nil
}

func (p *Paystack) Close(ctx context.Context) error {
	close(p.done)
	if p.pn != nil {
		p.pn.UnsubscribeAll()
		p.pn.Destroy()
	}
	return nil
}

// subscribeFeed listens on the confirmation channel and forwards settled
// transactions to the registered channel.
func (p *Paystack) subscribeFeed() error {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(p.cfg.FeedUUID))
	pnCfg.SubscribeKey = p.cfg.FeedSubscribeKey

	p.pn = pubnub.NewPubNub(pnCfg)
	listener := pubnub.NewListener()
	p.pn.AddListener(listener)

	go p.processFeed(listener)

	p.pn.Subscribe().Channels([]string{p.cfg.FeedChannel}).Execute()
	return nil
}

func (p *Paystack) processFeed(listener *pubnub.Listener) {
	for {
		select {
		case <-p.done:
			return
		case st := <-listener.Status:
			if st != nil {
				slog.Debug("paystack feed status", "category", st.Category)
			}
		case msg := <-listener.Message:
			if msg == nil {
				continue
			}
			raw, err := json.Marshal(msg.Message)
			if err != nil {
				slog.Error("marshal feed message", "error", err)
				continue
			}

			var payload feedPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				slog.Error("decode feed message", "error", err)
				continue
			}
			if payload.Reference == "" {
				continue
			}

			txn := payload.toTransaction()
			slog.Info("gateway confirmation received",
				"reference", txn.Reference, "status", txn.Status)

			if p.txnChan != nil {
				p.txnChan <- txn
			}
		}
	}
}

// feedPayload mirrors the charge event pushed over the feed.
type feedPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Channel   string `json:"channel"`
		PaidAt    string `json:"paid_at"`
	} `json:"data"`
	Reference string `json:"reference"`
}

func (f *feedPayload) toTransaction() *status.Transaction {
	ref := f.Data.Reference
	if ref == "" {
		ref = f.Reference
	}
	paidAt, _ := time.Parse(time.RFC3339, f.Data.PaidAt)
	return &status.Transaction{
		Reference: ref,
		Status:    normalizeStatus(f.Data.Status),
		Amount:    fromMinorUnits(f.Data.Amount),
		Currency:  f.Data.Currency,
		Channel:   f.Data.Channel,
		PaidAt:    paidAt,
	}
}

func toTransaction(data *transactionData) *status.Transaction {
	paidAt, _ := time.Parse(time.RFC3339, data.PaidAt)
	return &status.Transaction{
		Reference: data.Reference,
		Status:    normalizeStatus(data.Status),
		Amount:    fromMinorUnits(data.Amount),
		Currency:  data.Currency,
		Channel:   data.Channel,
		PaidAt:    paidAt,
	}
}

func normalizeStatus(s string) string {
	switch s {
	case "success":
		return "success"
	case "failed", "abandoned", "reversed":
		return "failed"
	default:
		return "pending"
	}
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100))
}
