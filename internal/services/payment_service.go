package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tiketi/internal/services/gateway"
	"tiketi/internal/status"
	"tiketi/models"
	"tiketi/monitoring"
	"tiketi/utils"

	"github.com/shopspring/decimal"
)

// PaymentStore is the slice of the data layer the payment workflow needs.
type PaymentStore interface {
	FindEventWithTicketTypes(ctx context.Context, id string) (*models.Event, error)
	FindTicketType(ctx context.Context, eventID, name string) (*models.TicketType, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	FindPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	ListUserPayments(ctx context.Context, userID string, limit int) ([]models.Payment, error)
	ListStalePayments(ctx context.Context, olderThan time.Time) ([]models.Payment, error)
	TransitionPayment(ctx context.Context, id, to string) (bool, error)
	FindTicketByPaymentAndType(ctx context.Context, paymentID, typeName string) (*models.Ticket, error)
	IssueTicket(ctx context.Context, payment *models.Payment, tierID string, item models.LineItem) (*models.Ticket, error)
	SetTicketQRCode(ctx context.Context, id, dataURL string) error
}

// Notifier queues post-purchase notifications.
type Notifier interface {
	EnqueueTicketNotifications(ctx context.Context, ticket *models.Ticket) error
}

// PaymentConfig bounds the payment workflow.
type PaymentConfig struct {
	Currency       string
	CallbackURL    string
	GatewayTimeout time.Duration
	PaymentTimeout time.Duration
}

// PaymentService owns the two halves of a purchase: initiation against the
// gateway and verification plus ticket issuance afterwards. Issuance is
// idempotent per line item, so verify may be called any number of times
// from the callback, the webhook, and the event feed.
type PaymentService struct {
	store    PaymentStore
	gateways *gateway.Registry
	qr       *QRService
	notifier Notifier
	realtime *Realtime
	monitor  *monitoring.Monitor
	breaker  *utils.CircuitBreaker
	cfg      PaymentConfig
}

func NewPaymentService(
	store PaymentStore,
	gateways *gateway.Registry,
	qr *QRService,
	notifier Notifier,
	realtime *Realtime,
	monitor *monitoring.Monitor,
	cfg PaymentConfig,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "KES"
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 10 * time.Minute
	}

	return &PaymentService{
		store:    store,
		gateways: gateways,
		qr:       qr,
		notifier: notifier,
		realtime: realtime,
		monitor:  monitor,
		breaker: utils.NewCircuitBreaker("payment-gateway", utils.CircuitBreakerSettings{
			Timeout: 30 * time.Second,
		}),
		cfg: cfg,
	}
}

// ItemSelection is one requested (ticket type, quantity) pair. Prices are
// never accepted from the client; they are resolved from the event.
type ItemSelection struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type InitiatePaymentRequest struct {
	UserID     string
	EventID    string
	Items      []ItemSelection
	Method     string
	BuyerName  string
	BuyerEmail string
	BuyerPhone string
}

// InitiatePayment prices the selection, records a pending payment, and
// starts the gateway transaction. The returned payment carries either the
// authorization URL (card) or nothing beyond the reference (STK push).
func (s *PaymentService) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*models.Payment, error) {
	// An omitted method falls back to the registry's primary provider.
	if req.Method == "" {
		primary, err := s.gateways.Primary()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
		}
		req.Method = string(primary.Provider())
	}

	provider, err := providerForMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no ticket types selected", status.ErrInvalidInput)
	}
	if req.BuyerEmail == "" {
		return nil, fmt.Errorf("%w: buyer email is required", status.ErrInvalidInput)
	}
	if provider == gateway.ProviderMpesa && req.BuyerPhone == "" {
		return nil, fmt.Errorf("%w: phone number is required for mpesa", status.ErrInvalidInput)
	}

	event, err := s.store.FindEventWithTicketTypes(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsPublished {
		return nil, fmt.Errorf("%w: event is not open for sale", status.ErrNotFound)
	}

	items, amount, err := priceSelection(event, req.Items)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		UserID:        req.UserID,
		EventID:       req.EventID,
		Amount:        amount,
		Currency:      s.cfg.Currency,
		Status:        models.PaymentStatusPending,
		PaymentMethod: req.Method,
		LineItems:     items,
		Reference:     utils.GenerateReference(),
		BuyerName:     req.BuyerName,
		BuyerEmail:    req.BuyerEmail,
		BuyerPhone:    req.BuyerPhone,
	}

	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
	}

	// The gateway call comes first: a rejected or unreachable gateway
	// leaves no payment record behind.
	initResult, err := s.initialize(ctx, gw, payment)
	if err != nil {
		return nil, err
	}
	payment.AuthorizationURL = initResult.AuthorizationURL

	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	if s.monitor != nil {
		s.monitor.TrackPaymentInitiated(string(provider))
	}
	slog.Info("payment initiated",
		"payment", payment.ID, "reference", payment.Reference,
		"provider", provider, "amount", amount.String())
	return payment, nil
}

func (s *PaymentService) initialize(ctx context.Context, gw gateway.Gateway, payment *models.Payment) (*gateway.InitializeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	result, err := s.breaker.Execute(callCtx, func() (interface{}, error) {
		return gw.Initialize(callCtx, &gateway.InitializeRequest{
			Email:       payment.BuyerEmail,
			Phone:       payment.BuyerPhone,
			Amount:      payment.Amount,
			Currency:    payment.Currency,
			Reference:   payment.Reference,
			CallbackURL: s.cfg.CallbackURL,
			Metadata: map[string]any{
				"user_id":    payment.UserID,
				"event_id":   payment.EventID,
				"line_items": payment.LineItems,
			},
		})
	})
	if err != nil {
		if errors.Is(err, utils.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
		}
		return nil, err
	}
	return result.(*gateway.InitializeResult), nil
}

// VerifyOutcome bundles what a verification produced for the handler layer.
type VerifyOutcome struct {
	Payment *models.Payment
	Tickets []models.Ticket
}

// VerifyPayment checks the reference against the gateway and, on success,
// settles every line item that has not been settled yet. Re-invocation on
// a completed payment issues whatever a previous run left unissued and
// returns the full set, so a crash between the status flip and issuance is
// repaired by verifying again.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*VerifyOutcome, error) {
	payment, err := s.store.FindPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case models.PaymentStatusCompleted:
		// Tickets created before a failing line item are real; announce
		// them even when this run could not finish.
		tickets, issued, err := s.issueAll(ctx, payment)
		s.notifyIssued(ctx, payment, issued)
		return &VerifyOutcome{Payment: payment, Tickets: tickets}, err
	case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		return &VerifyOutcome{Payment: payment}, fmt.Errorf("%w: payment is %s", status.ErrPaymentFailed, payment.Status)
	}

	provider, err := providerForMethod(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
	}

	result, err := s.verify(ctx, gw, reference)
	if err != nil {
		if errors.Is(err, status.ErrPaymentFailed) {
			s.settleFailure(ctx, payment, provider)
			return &VerifyOutcome{Payment: payment}, err
		}
		return nil, err
	}

	switch result.Status {
	case gateway.VerifyPending:
		return &VerifyOutcome{Payment: payment}, status.ErrPaymentPending

	case gateway.VerifyFailed:
		s.settleFailure(ctx, payment, provider)
		return &VerifyOutcome{Payment: payment}, fmt.Errorf("%w: rejected by provider", status.ErrPaymentFailed)
	}

	if result.Amount.IsPositive() && !result.Amount.Equal(payment.Amount) {
		slog.Error("settled amount mismatch",
			"payment", payment.ID, "expected", payment.Amount.String(), "got", result.Amount.String())
		s.settleFailure(ctx, payment, provider)
		return &VerifyOutcome{Payment: payment}, fmt.Errorf("%w: settled amount does not match", status.ErrPaymentFailed)
	}

	flipped, err := s.store.TransitionPayment(ctx, payment.ID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}
	payment.Status = models.PaymentStatusCompleted
	if flipped && s.monitor != nil {
		s.monitor.TrackPaymentSettled(string(provider), models.PaymentStatusCompleted)
	}

	tickets, issued, err := s.issueAll(ctx, payment)
	s.notifyIssued(ctx, payment, issued)
	return &VerifyOutcome{Payment: payment, Tickets: tickets}, err
}

// VerifyPaymentFor runs VerifyPayment on behalf of the payment's owner.
// Gateway-originated paths (webhook, event feed) carry no user and call
// VerifyPayment directly.
func (s *PaymentService) VerifyPaymentFor(ctx context.Context, userID, reference string) (*VerifyOutcome, error) {
	payment, err := s.store.FindPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, fmt.Errorf("%w: payment belongs to another user", status.ErrForbidden)
	}
	return s.VerifyPayment(ctx, reference)
}

func (s *PaymentService) verify(ctx context.Context, gw gateway.Gateway, reference string) (*gateway.VerifyResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.breaker.Execute(callCtx, func() (interface{}, error) {
		return gw.Verify(callCtx, reference)
	})
	if s.monitor != nil {
		s.monitor.TrackVerifyDuration(string(gw.Provider()), time.Since(started))
	}
	if err != nil {
		if errors.Is(err, utils.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
		}
		return nil, err
	}
	return result.(*gateway.VerifyResult), nil
}

// issueAll settles every unsettled line item. Already-issued items are
// skipped, so a crashed or concurrent verifier leaves nothing duplicated.
// The second return value holds only the tickets created by this run.
func (s *PaymentService) issueAll(ctx context.Context, payment *models.Payment) (tickets, issued []models.Ticket, err error) {
	tickets = make([]models.Ticket, 0, len(payment.LineItems))

	for _, item := range payment.LineItems {
		existing, err := s.store.FindTicketByPaymentAndType(ctx, payment.ID, item.Name)
		if err != nil {
			return tickets, issued, err
		}
		if existing != nil {
			tickets = append(tickets, *existing)
			continue
		}

		tier, err := s.store.FindTicketType(ctx, payment.EventID, item.Name)
		if err != nil {
			// Settled money against a vanished tier is an integrity
			// problem, not a missing resource.
			if errors.Is(err, status.ErrNotFound) {
				return tickets, issued, fmt.Errorf("%w: ticket type %q no longer exists for settled payment %s",
					status.ErrConflict, item.Name, payment.ID)
			}
			return tickets, issued, err
		}

		ticket, err := s.store.IssueTicket(ctx, payment, tier.ID, item)
		if err != nil {
			if errors.Is(err, status.ErrInsufficientInventory) {
				if s.monitor != nil {
					s.monitor.TrackInventoryRejection(payment.EventID)
				}
				return tickets, issued, fmt.Errorf("%w: %q sold out before settlement", status.ErrConflict, item.Name)
			}
			return tickets, issued, err
		}

		dataURL, err := s.qr.GenerateDataURL(ticket.ID, ticket.EventID, ticket.CreatedAt)
		if err != nil {
			slog.Error("generate entry code", "ticket", ticket.ID, "error", err)
		} else if err := s.store.SetTicketQRCode(ctx, ticket.ID, dataURL); err != nil {
			slog.Error("store entry code", "ticket", ticket.ID, "error", err)
		} else {
			ticket.QRCodeURL = dataURL
		}

		if s.monitor != nil {
			s.monitor.TrackTicketsIssued(payment.EventID, ticket.Quantity)
		}
		tickets = append(tickets, *ticket)
		issued = append(issued, *ticket)
	}
	return tickets, issued, nil
}

func (s *PaymentService) settleFailure(ctx context.Context, payment *models.Payment, provider gateway.Provider) {
	flipped, err := s.store.TransitionPayment(ctx, payment.ID, models.PaymentStatusFailed)
	if err != nil {
		slog.Error("mark payment failed", "payment", payment.ID, "error", err)
		return
	}
	payment.Status = models.PaymentStatusFailed
	if flipped && s.monitor != nil {
		s.monitor.TrackPaymentSettled(string(provider), models.PaymentStatusFailed)
	}
}

func (s *PaymentService) notifyIssued(ctx context.Context, payment *models.Payment, tickets []models.Ticket) {
	if len(tickets) == 0 {
		return
	}
	for i := range tickets {
		if s.notifier == nil {
			break
		}
		if err := s.notifier.EnqueueTicketNotifications(ctx, &tickets[i]); err != nil {
			slog.Error("enqueue notifications", "ticket", tickets[i].ID, "error", err)
		}
	}

	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	s.realtime.NotifyUser(payment.UserID, map[string]any{
		"type":       "payment_success",
		"payment_id": payment.ID,
		"tickets":    ids,
	})
}

// GetPayment returns one payment scoped to its owner.
func (s *PaymentService) GetPayment(ctx context.Context, userID, paymentID string) (*models.Payment, error) {
	payment, err := s.store.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, fmt.Errorf("%w: payment belongs to another user", status.ErrForbidden)
	}
	return payment, nil
}

// ListPayments returns the user's payment history, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, userID string, limit int) ([]models.Payment, error) {
	return s.store.ListUserPayments(ctx, userID, limit)
}

// HandleGatewayFeed consumes async confirmations and verifies each one
// server-side. The feed is advisory; the verify call stays authoritative.
func (s *PaymentService) HandleGatewayFeed(ctx context.Context, ch <-chan *status.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case txn, ok := <-ch:
			if !ok {
				return
			}
			if txn == nil || txn.Reference == "" {
				continue
			}
			if _, err := s.VerifyPayment(ctx, txn.Reference); err != nil &&
				!errors.Is(err, status.ErrPaymentPending) {
				slog.Error("feed-triggered verification", "reference", txn.Reference, "error", err)
			}
		}
	}
}

// ExpireStalePayments cancels pending payments older than the payment
// timeout. Run it on a ticker.
func (s *PaymentService) ExpireStalePayments(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.PaymentTimeout)
	stale, err := s.store.ListStalePayments(ctx, cutoff)
	if err != nil {
		slog.Error("list stale payments", "error", err)
		return
	}

	for _, p := range stale {
		ok, err := s.store.TransitionPayment(ctx, p.ID, models.PaymentStatusCancelled)
		if err != nil {
			slog.Error("cancel stale payment", "payment", p.ID, "error", err)
			continue
		}
		if ok {
			slog.Info("stale payment cancelled", "payment", p.ID, "reference", p.Reference)
			if s.monitor != nil {
				s.monitor.TrackPaymentSettled(p.PaymentMethod, models.PaymentStatusCancelled)
			}
		}
	}
}

func providerForMethod(method string) (gateway.Provider, error) {
	switch method {
	case models.PaymentMethodPaystack:
		return gateway.ProviderPaystack, nil
	case models.PaymentMethodMpesa:
		return gateway.ProviderMpesa, nil
	default:
		return "", fmt.Errorf("%w: unsupported payment method %q", status.ErrInvalidInput, method)
	}
}

func priceSelection(event *models.Event, selection []ItemSelection) ([]models.LineItem, decimal.Decimal, error) {
	tiers := make(map[string]models.TicketType, len(event.TicketTypes))
	for _, tt := range event.TicketTypes {
		tiers[tt.Name] = tt
	}

	items := make([]models.LineItem, 0, len(selection))
	total := decimal.Zero
	seen := make(map[string]bool, len(selection))

	for _, sel := range selection {
		if sel.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("%w: quantity for %q must be positive", status.ErrInvalidInput, sel.Name)
		}
		if seen[sel.Name] {
			return nil, decimal.Zero, fmt.Errorf("%w: duplicate ticket type %q", status.ErrInvalidInput, sel.Name)
		}
		seen[sel.Name] = true

		tier, ok := tiers[sel.Name]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: unknown ticket type %q", status.ErrInvalidInput, sel.Name)
		}
		if !tier.IsAvailable {
			return nil, decimal.Zero, fmt.Errorf("%w: %q is not on sale", status.ErrInvalidInput, sel.Name)
		}
		// Advisory check only; the binding guard is the conditional
		// decrement at settlement.
		if tier.Quantity < sel.Quantity {
			return nil, decimal.Zero, fmt.Errorf("%w: only %d of %q left", status.ErrInsufficientInventory, tier.Quantity, sel.Name)
		}

		item := models.LineItem{Name: sel.Name, Price: tier.Price, Quantity: sel.Quantity}
		items = append(items, item)
		total = total.Add(item.Total())
	}
	return items, total, nil
}
