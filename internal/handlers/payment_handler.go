package handlers

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"tiketi/internal/services"
	"tiketi/internal/status"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	webhookKey     string
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, webhookKey string) *PaymentHandler {
	return &PaymentHandler{
		app:            app,
		paymentService: paymentService,
		webhookKey:     webhookKey,
	}
}

type initiatePaymentRequest struct {
	EventID       string                   `json:"event_id"`
	PaymentMethod string                   `json:"payment_method"`
	Items         []services.ItemSelection `json:"items"`
	BuyerName     string                   `json:"buyer_name"`
	Phone         string                   `json:"phone"`
}

// InitiatePayment - POST /api/v1/payments
func (h *PaymentHandler) InitiatePayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req initiatePaymentRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", nil)
	}

	buyerName := req.BuyerName
	if buyerName == "" {
		buyerName = e.Auth.GetString("name")
	}
	phone := req.Phone
	if phone == "" {
		phone = e.Auth.GetString("phone")
	}

	payment, err := h.paymentService.InitiatePayment(e.Request.Context(), &services.InitiatePaymentRequest{
		UserID:     e.Auth.Id,
		EventID:    req.EventID,
		Items:      req.Items,
		Method:     req.PaymentMethod,
		BuyerName:  buyerName,
		BuyerEmail: e.Auth.Email(),
		BuyerPhone: phone,
	})
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"status":  payment.Status,
		"message": "Payment initiated",
		"data":    payment,
	})
}

// VerifyPayment - POST /api/v1/payments/verify/{reference}
func (h *PaymentHandler) VerifyPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	reference := e.Request.PathValue("reference")
	if reference == "" {
		return apis.NewBadRequestError("Missing reference", nil)
	}

	outcome, err := h.paymentService.VerifyPaymentFor(e.Request.Context(), e.Auth.Id, reference)
	if err != nil {
		if errors.Is(err, status.ErrPaymentPending) {
			return e.JSON(http.StatusOK, map[string]any{
				"status":  "pending",
				"message": "Payment not settled yet, try again shortly",
			})
		}
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status":  outcome.Payment.Status,
		"message": "Payment verified",
		"data": map[string]any{
			"payment": outcome.Payment,
			"tickets": outcome.Tickets,
		},
	})
}

// Webhook - POST /api/v1/payments/webhook
//
// Gateway-originated settlement notice. The signature over the raw body is
// checked before anything is parsed; the reference then goes through the
// same verification path as a client call.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Unreadable body", nil)
	}

	signature := e.Request.Header.Get("x-paystack-signature")
	if !h.validSignature(body, signature) {
		slog.Warn("webhook with bad signature", "remote", e.Request.RemoteAddr)
		return apis.NewUnauthorizedError("Invalid signature", nil)
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apis.NewBadRequestError("Invalid payload", nil)
	}
	if payload.Data.Reference == "" {
		return e.JSON(http.StatusOK, map[string]any{"status": "ignored"})
	}

	if _, err := h.paymentService.VerifyPayment(e.Request.Context(), payload.Data.Reference); err != nil &&
		!errors.Is(err, status.ErrPaymentPending) {
		slog.Error("webhook verification", "reference", payload.Data.Reference, "error", err)
	}

	// Always 200: the gateway retries anything else, and verification is
	// idempotent anyway.
	return e.JSON(http.StatusOK, map[string]any{"status": "received"})
}

func (h *PaymentHandler) validSignature(body []byte, signature string) bool {
	if h.webhookKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(h.webhookKey))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// GetPayment - GET /api/v1/payments/{paymentId}
func (h *PaymentHandler) GetPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	payment, err := h.paymentService.GetPayment(e.Request.Context(), e.Auth.Id, e.Request.PathValue("paymentId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, payment)
}

// ListPayments - GET /api/v1/payments
func (h *PaymentHandler) ListPayments(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	payments, err := h.paymentService.ListPayments(e.Request.Context(), e.Auth.Id, 50)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": payments})
}
