package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tiketi/internal/services/gateway"
	"tiketi/internal/status"
	"tiketi/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePaymentStore is an in-memory PaymentStore with the same conditional
// semantics as the real one: single-winner status transitions and a
// decrement that refuses to go below zero.
type fakePaymentStore struct {
	mu       sync.Mutex
	events   map[string]*models.Event
	payments map[string]*models.Payment
	tickets  []*models.Ticket
	seq      int

	// issueErr, when set, is consulted before each issuance.
	issueErr func(item models.LineItem) error
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{
		events:   make(map[string]*models.Event),
		payments: make(map[string]*models.Payment),
	}
}

func (f *fakePaymentStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakePaymentStore) FindEventWithTicketTypes(_ context.Context, id string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", status.ErrNotFound, id)
	}
	return event, nil
}

func (f *fakePaymentStore) FindTicketType(_ context.Context, eventID, name string) (*models.TicketType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", status.ErrNotFound, eventID)
	}
	for i := range event.TicketTypes {
		if event.TicketTypes[i].Name == name {
			return &event.TicketTypes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: ticket type %s", status.ErrNotFound, name)
}

func (f *fakePaymentStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment.ID = f.nextID("pay")
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	f.payments[payment.ID] = payment
	return nil
}

func (f *fakePaymentStore) FindPaymentByID(_ context.Context, id string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", status.ErrNotFound, id)
	}
	return p, nil
}

func (f *fakePaymentStore) FindPaymentByReference(_ context.Context, reference string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.Reference == reference {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: reference %s", status.ErrNotFound, reference)
}

func (f *fakePaymentStore) ListUserPayments(_ context.Context, userID string, _ int) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Payment{}
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePaymentStore) ListStalePayments(_ context.Context, olderThan time.Time) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Payment{}
	for _, p := range f.payments {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePaymentStore) TransitionPayment(_ context.Context, id, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return false, fmt.Errorf("%w: payment %s", status.ErrNotFound, id)
	}
	if p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (f *fakePaymentStore) FindTicketByPaymentAndType(_ context.Context, paymentID, typeName string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.PaymentID == paymentID && t.TicketTypeName == typeName {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentStore) IssueTicket(_ context.Context, payment *models.Payment, tierID string, item models.LineItem) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.issueErr != nil {
		if err := f.issueErr(item); err != nil {
			return nil, err
		}
	}

	var tier *models.TicketType
	for _, event := range f.events {
		for i := range event.TicketTypes {
			if event.TicketTypes[i].ID == tierID {
				tier = &event.TicketTypes[i]
			}
		}
	}
	if tier == nil {
		return nil, fmt.Errorf("%w: ticket type %s", status.ErrNotFound, tierID)
	}
	if tier.Quantity < item.Quantity {
		return nil, fmt.Errorf("%w: %s", status.ErrInsufficientInventory, item.Name)
	}
	tier.Quantity -= item.Quantity

	event := f.events[payment.EventID]
	event.TotalTicketsSold += item.Quantity
	event.TotalRevenue = event.TotalRevenue.Add(item.Total())

	ticket := &models.Ticket{
		ID:             f.nextID("tkt"),
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
		CreatedAt:      time.Now(),
	}
	f.tickets = append(f.tickets, ticket)
	return ticket, nil
}

func (f *fakePaymentStore) SetTicketQRCode(_ context.Context, id, dataURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.ID == id {
			t.QRCodeURL = dataURL
			return nil
		}
	}
	return fmt.Errorf("%w: ticket %s", status.ErrNotFound, id)
}

func (f *fakePaymentStore) tierQuantity(t *testing.T, eventID, name string) int {
	t.Helper()
	tier, err := f.FindTicketType(context.Background(), eventID, name)
	require.NoError(t, err)
	return tier.Quantity
}

// fakeGateway scripts the provider's answers and counts the calls.
type fakeGateway struct {
	provider     gateway.Provider
	initErr      error
	verifyResult *gateway.VerifyResult
	verifyErr    error

	initCalls   int
	verifyCalls int
}

func (g *fakeGateway) Provider() gateway.Provider { return g.provider }

func (g *fakeGateway) Initialize(_ context.Context, req *gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.InitializeResult{
		AuthorizationURL: "https://checkout.example/" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, _ string) (*gateway.VerifyResult, error) {
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verifyResult, nil
}

func (g *fakeGateway) SetTransactionChannel(chan *status.Transaction) {}

func (g *fakeGateway) Close(context.Context) error { return nil }

type fakeFactory struct {
	gateways map[gateway.Provider]gateway.Gateway
}

func (f *fakeFactory) CreateGateway(_ context.Context, provider gateway.Provider, _ interface{}) (gateway.Gateway, error) {
	gw, ok := f.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("no fake for %s", provider)
	}
	return gw, nil
}

func (f *fakeFactory) GetSupportedProviders() []gateway.Provider {
	return []gateway.Provider{gateway.ProviderPaystack, gateway.ProviderMpesa}
}

type fakeNotifier struct {
	mu      sync.Mutex
	tickets []string
}

func (n *fakeNotifier) EnqueueTicketNotifications(_ context.Context, ticket *models.Ticket) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tickets = append(n.tickets, ticket.ID)
	return nil
}

func newTestRegistry(t *testing.T, gw *fakeGateway) *gateway.Registry {
	t.Helper()
	registry := gateway.NewRegistry(&fakeFactory{
		gateways: map[gateway.Provider]gateway.Gateway{gw.provider: gw},
	})
	require.NoError(t, registry.Register(context.Background(), gw.provider, nil))
	return registry
}

func seedEvent(store *fakePaymentStore) *models.Event {
	event := &models.Event{
		ID:          "evt-conf",
		Title:       "Conf2024",
		IsPublished: true,
		TicketTypes: []models.TicketType{
			{
				ID:          "tier-vip",
				EventID:     "evt-conf",
				Name:        "VIP",
				Price:       decimal.NewFromInt(100),
				Quantity:    5,
				IsAvailable: true,
			},
			{
				ID:          "tier-regular",
				EventID:     "evt-conf",
				Name:        "Regular",
				Price:       decimal.NewFromInt(40),
				Quantity:    100,
				IsAvailable: true,
			},
		},
	}
	store.events[event.ID] = event
	return event
}

func newTestPaymentService(t *testing.T, store *fakePaymentStore, gw *fakeGateway) (*PaymentService, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	svc := NewPaymentService(
		store,
		newTestRegistry(t, gw),
		NewQRService("test-entry-secret"),
		notifier,
		nil,
		nil,
		PaymentConfig{Currency: "KES", CallbackURL: "https://tiketi.test/callback"},
	)
	return svc, notifier
}

func initiateVIP(t *testing.T, svc *PaymentService, quantity int) *models.Payment {
	t.Helper()
	payment, err := svc.InitiatePayment(context.Background(), &InitiatePaymentRequest{
		UserID:     "user-1",
		EventID:    "evt-conf",
		Items:      []ItemSelection{{Name: "VIP", Quantity: quantity}},
		Method:     models.PaymentMethodPaystack,
		BuyerName:  "Amina Odhiambo",
		BuyerEmail: "amina@example.com",
	})
	require.NoError(t, err)
	return payment
}

func TestInitiatePayment_Success(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 2)

	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(200)), "amount %s", payment.Amount)
	assert.NotEmpty(t, payment.Reference)
	assert.Contains(t, payment.AuthorizationURL, payment.Reference)
	require.Len(t, payment.LineItems, 1)
	assert.Equal(t, 2, payment.LineItems[0].Quantity)
	assert.True(t, payment.LineItems[0].Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, gw.initCalls)

	// Inventory is untouched until settlement.
	assert.Equal(t, 5, store.tierQuantity(t, "evt-conf", "VIP"))

	stored, err := store.FindPaymentByReference(context.Background(), payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, stored.ID)
}

func TestInitiatePayment_GatewayRejectionLeavesNoRecord(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{
		provider: gateway.ProviderPaystack,
		initErr:  fmt.Errorf("%w: declined by provider", status.ErrPaymentFailed),
	}
	svc, _ := newTestPaymentService(t, store, gw)

	_, err := svc.InitiatePayment(context.Background(), &InitiatePaymentRequest{
		UserID:     "user-1",
		EventID:    "evt-conf",
		Items:      []ItemSelection{{Name: "VIP", Quantity: 1}},
		Method:     models.PaymentMethodPaystack,
		BuyerEmail: "amina@example.com",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrPaymentFailed)
	assert.Empty(t, store.payments)
}

func TestInitiatePayment_InsufficientInventory(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	_, err := svc.InitiatePayment(context.Background(), &InitiatePaymentRequest{
		UserID:     "user-1",
		EventID:    "evt-conf",
		Items:      []ItemSelection{{Name: "VIP", Quantity: 6}},
		Method:     models.PaymentMethodPaystack,
		BuyerEmail: "amina@example.com",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrInsufficientInventory)
	assert.Zero(t, gw.initCalls, "the gateway must not be contacted for an overdrawn selection")
	assert.Empty(t, store.payments)
}

func TestInitiatePayment_Validation(t *testing.T) {
	store := newFakePaymentStore()
	event := seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderMpesa}
	svc, _ := newTestPaymentService(t, store, gw)

	valid := func() *InitiatePaymentRequest {
		return &InitiatePaymentRequest{
			UserID:     "user-1",
			EventID:    event.ID,
			Items:      []ItemSelection{{Name: "VIP", Quantity: 1}},
			Method:     models.PaymentMethodMpesa,
			BuyerEmail: "amina@example.com",
			BuyerPhone: "+254712345678",
		}
	}

	tests := []struct {
		name   string
		mutate func(*InitiatePaymentRequest)
		want   error
	}{
		{"unsupported method", func(r *InitiatePaymentRequest) { r.Method = "cash" }, status.ErrInvalidInput},
		{"no items", func(r *InitiatePaymentRequest) { r.Items = nil }, status.ErrInvalidInput},
		{"missing email", func(r *InitiatePaymentRequest) { r.BuyerEmail = "" }, status.ErrInvalidInput},
		{"mpesa without phone", func(r *InitiatePaymentRequest) { r.BuyerPhone = "" }, status.ErrInvalidInput},
		{"unknown ticket type", func(r *InitiatePaymentRequest) { r.Items[0].Name = "Backstage" }, status.ErrInvalidInput},
		{"zero quantity", func(r *InitiatePaymentRequest) { r.Items[0].Quantity = 0 }, status.ErrInvalidInput},
		{"duplicate ticket type", func(r *InitiatePaymentRequest) {
			r.Items = append(r.Items, ItemSelection{Name: "VIP", Quantity: 1})
		}, status.ErrInvalidInput},
		{"unknown event", func(r *InitiatePaymentRequest) { r.EventID = "evt-missing" }, status.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			_, err := svc.InitiatePayment(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Zero(t, gw.initCalls)
}

func TestInitiatePayment_UnpublishedEventHidden(t *testing.T) {
	store := newFakePaymentStore()
	event := seedEvent(store)
	event.IsPublished = false
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	_, err := svc.InitiatePayment(context.Background(), &InitiatePaymentRequest{
		UserID:     "user-1",
		EventID:    event.ID,
		Items:      []ItemSelection{{Name: "VIP", Quantity: 1}},
		Method:     models.PaymentMethodPaystack,
		BuyerEmail: "amina@example.com",
	})
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestVerifyPayment_SuccessIssuesTicketsAndDecrements(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, notifier := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 2)
	gw.verifyResult = &gateway.VerifyResult{
		Status:   gateway.VerifySuccess,
		Amount:   decimal.NewFromInt(200),
		Currency: "KES",
		PaidAt:   time.Now(),
	}

	outcome, err := svc.VerifyPayment(context.Background(), payment.Reference)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, outcome.Payment.Status)
	require.Len(t, outcome.Tickets, 1)
	ticket := outcome.Tickets[0]
	assert.Equal(t, "VIP", ticket.TicketTypeName)
	assert.Equal(t, 2, ticket.Quantity)
	assert.True(t, ticket.TotalPrice.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, models.TicketStatusPaid, ticket.Status)
	assert.NotEmpty(t, ticket.QRCodeURL)

	assert.Equal(t, 3, store.tierQuantity(t, "evt-conf", "VIP"))
	assert.Equal(t, 2, store.events["evt-conf"].TotalTicketsSold)
	assert.True(t, store.events["evt-conf"].TotalRevenue.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, []string{ticket.ID}, notifier.tickets)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, notifier := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 2)
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifySuccess, Amount: decimal.NewFromInt(200)}

	first, err := svc.VerifyPayment(context.Background(), payment.Reference)
	require.NoError(t, err)
	require.Len(t, first.Tickets, 1)

	// Callback, webhook, and feed may all land; none of them may issue twice.
	for i := 0; i < 3; i++ {
		again, err := svc.VerifyPayment(context.Background(), payment.Reference)
		require.NoError(t, err)
		require.Len(t, again.Tickets, 1)
		assert.Equal(t, first.Tickets[0].ID, again.Tickets[0].ID)
	}

	assert.Equal(t, 1, gw.verifyCalls, "a completed payment must not hit the gateway again")
	assert.Equal(t, 3, store.tierQuantity(t, "evt-conf", "VIP"))
	assert.Len(t, notifier.tickets, 1)
}

func TestVerifyPayment_ProviderFailureIsTerminal(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 1)
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifyFailed}

	outcome, err := svc.VerifyPayment(context.Background(), payment.Reference)
	assert.ErrorIs(t, err, status.ErrPaymentFailed)
	assert.Equal(t, models.PaymentStatusFailed, outcome.Payment.Status)
	assert.Equal(t, 5, store.tierQuantity(t, "evt-conf", "VIP"))

	// A failed payment never goes back to the gateway, even if the
	// provider would now answer success.
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifySuccess, Amount: decimal.NewFromInt(100)}
	_, err = svc.VerifyPayment(context.Background(), payment.Reference)
	assert.ErrorIs(t, err, status.ErrPaymentFailed)
	assert.Equal(t, 1, gw.verifyCalls)
	assert.Empty(t, store.tickets)
}

func TestVerifyPayment_PendingLeavesPaymentOpen(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 1)
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifyPending}

	outcome, err := svc.VerifyPayment(context.Background(), payment.Reference)
	assert.ErrorIs(t, err, status.ErrPaymentPending)
	assert.Equal(t, models.PaymentStatusPending, outcome.Payment.Status)

	// Once the provider settles, the same reference verifies cleanly.
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifySuccess, Amount: decimal.NewFromInt(100)}
	outcome, err = svc.VerifyPayment(context.Background(), payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, outcome.Payment.Status)
	require.Len(t, outcome.Tickets, 1)
}

func TestVerifyPayment_AmountMismatchFails(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 2)
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifySuccess, Amount: decimal.NewFromInt(50)}

	outcome, err := svc.VerifyPayment(context.Background(), payment.Reference)
	assert.ErrorIs(t, err, status.ErrPaymentFailed)
	assert.Equal(t, models.PaymentStatusFailed, outcome.Payment.Status)
	assert.Empty(t, store.tickets)
	assert.Equal(t, 5, store.tierQuantity(t, "evt-conf", "VIP"))
}

func TestVerifyPayment_SoldOutAtSettlement(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 2)

	// Inventory drained between initiation and settlement.
	tier, err := store.FindTicketType(context.Background(), "evt-conf", "VIP")
	require.NoError(t, err)
	tier.Quantity = 1

	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifySuccess, Amount: decimal.NewFromInt(200)}

	outcome, err := svc.VerifyPayment(context.Background(), payment.Reference)
	assert.ErrorIs(t, err, status.ErrConflict)
	assert.Equal(t, models.PaymentStatusCompleted, outcome.Payment.Status)
	assert.Empty(t, outcome.Tickets)
	assert.Equal(t, 1, store.tierQuantity(t, "evt-conf", "VIP"))
}

func TestVerifyPayment_GatewayErrorDoesNotSettle(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 1)
	gw.verifyErr = fmt.Errorf("%w: provider timeout", status.ErrServiceUnavailable)

	_, err := svc.VerifyPayment(context.Background(), payment.Reference)
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrServiceUnavailable)

	stored, err := store.FindPaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status, "a transport error must not settle the payment")
}

func TestVerifyPayment_UnknownReference(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	_, err := svc.VerifyPayment(context.Background(), "TKT-nope")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestGetPayment_ScopedToOwner(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 1)

	got, err := svc.GetPayment(context.Background(), "user-1", payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	_, err = svc.GetPayment(context.Background(), "user-2", payment.ID)
	assert.ErrorIs(t, err, status.ErrForbidden)
}

func TestExpireStalePayments(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	fresh := initiateVIP(t, svc, 1)
	stale := initiateVIP(t, svc, 1)
	store.payments[stale.ID].CreatedAt = time.Now().Add(-time.Hour)

	svc.ExpireStalePayments(context.Background())

	assert.Equal(t, models.PaymentStatusCancelled, store.payments[stale.ID].Status)
	assert.Equal(t, models.PaymentStatusPending, store.payments[fresh.ID].Status)
}

func TestHandleGatewayFeedVerifiesReferences(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 1)
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifySuccess, Amount: decimal.NewFromInt(100)}

	ch := make(chan *status.Transaction, 2)
	ch <- nil // oddball payloads are skipped
	ch <- &status.Transaction{Reference: payment.Reference, Status: "success"}
	close(ch)

	svc.HandleGatewayFeed(context.Background(), ch)

	stored, err := store.FindPaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	assert.Len(t, store.tickets, 1)
}

func TestProviderForMethod(t *testing.T) {
	p, err := providerForMethod(models.PaymentMethodPaystack)
	require.NoError(t, err)
	assert.Equal(t, gateway.ProviderPaystack, p)

	p, err = providerForMethod(models.PaymentMethodMpesa)
	require.NoError(t, err)
	assert.Equal(t, gateway.ProviderMpesa, p)

	_, err = providerForMethod("bank_transfer")
	assert.True(t, errors.Is(err, status.ErrInvalidInput))
}

func TestVerifyPayment_ReconcilesPartialIssuance(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, notifier := newTestPaymentService(t, store, gw)

	payment, err := svc.InitiatePayment(context.Background(), &InitiatePaymentRequest{
		UserID:  "user-1",
		EventID: "evt-conf",
		Items: []ItemSelection{
			{Name: "VIP", Quantity: 1},
			{Name: "Regular", Quantity: 2},
		},
		Method:     models.PaymentMethodPaystack,
		BuyerEmail: "amina@example.com",
	})
	require.NoError(t, err)
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifySuccess, Amount: decimal.NewFromInt(180)}

	// The second line item fails once, leaving the payment completed with
	// only the VIP ticket written.
	failed := false
	store.issueErr = func(item models.LineItem) error {
		if item.Name == "Regular" && !failed {
			failed = true
			return fmt.Errorf("write ticket: disk full")
		}
		return nil
	}

	outcome, err := svc.VerifyPayment(context.Background(), payment.Reference)
	require.Error(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, outcome.Payment.Status)
	require.Len(t, outcome.Tickets, 1)

	// Verifying again repairs the gap without touching the gateway or
	// re-issuing the VIP line.
	outcome, err = svc.VerifyPayment(context.Background(), payment.Reference)
	require.NoError(t, err)
	require.Len(t, outcome.Tickets, 2)

	names := []string{outcome.Tickets[0].TicketTypeName, outcome.Tickets[1].TicketTypeName}
	assert.ElementsMatch(t, []string{"VIP", "Regular"}, names)
	assert.Equal(t, 1, gw.verifyCalls)
	assert.Equal(t, 4, store.tierQuantity(t, "evt-conf", "VIP"))
	assert.Equal(t, 98, store.tierQuantity(t, "evt-conf", "Regular"))
	assert.Len(t, store.tickets, 2)
	assert.Len(t, notifier.tickets, 2, "each ticket is announced exactly once")
}

func TestVerifyPaymentFor_RejectsForeignPayment(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment := initiateVIP(t, svc, 1)
	gw.verifyResult = &gateway.VerifyResult{Status: gateway.VerifySuccess, Amount: decimal.NewFromInt(100)}

	_, err := svc.VerifyPaymentFor(context.Background(), "user-2", payment.Reference)
	assert.ErrorIs(t, err, status.ErrForbidden)
	assert.Equal(t, 0, gw.verifyCalls)
	assert.Equal(t, models.PaymentStatusPending, store.payments[payment.ID].Status)

	outcome, err := svc.VerifyPaymentFor(context.Background(), "user-1", payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, outcome.Payment.Status)
}

func TestInitiatePayment_DefaultsToPrimaryProvider(t *testing.T) {
	store := newFakePaymentStore()
	seedEvent(store)
	gw := &fakeGateway{provider: gateway.ProviderPaystack}
	svc, _ := newTestPaymentService(t, store, gw)

	payment, err := svc.InitiatePayment(context.Background(), &InitiatePaymentRequest{
		UserID:     "user-1",
		EventID:    "evt-conf",
		Items:      []ItemSelection{{Name: "VIP", Quantity: 1}},
		BuyerEmail: "amina@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodPaystack, payment.PaymentMethod)
	assert.Equal(t, 1, gw.initCalls)
}
