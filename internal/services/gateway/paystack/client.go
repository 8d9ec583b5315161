package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"tiketi/internal/status"
)

// client is a thin REST client for the Paystack API. Every call carries the
// secret key as a bearer token and a bounded timeout.
type client struct {
	baseURL   string
	secretKey string
	hc        *http.Client
}

func newClient(baseURL, secretKey string) *client {
	return &client{
		baseURL:   baseURL,
		secretKey: secretKey,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// envelope is the common wrapper around every Paystack reply.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeForm struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"` // minor units
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type mobileMoney struct {
	Phone    string `json:"phone"`
	Provider string `json:"provider"`
}

type chargeForm struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference"`
	MobileMoney mobileMoney    `json:"mobile_money"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type transactionData struct {
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Channel         string `json:"channel"`
	PaidAt          string `json:"paid_at"`
	GatewayResponse string `json:"gateway_response"`
	DisplayText     string `json:"display_text"`
}

func (c *client) initializeTransaction(ctx context.Context, form *initializeForm) (*initializeData, error) {
	env, err := c.post(ctx, "/transaction/initialize", form)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: initialize rejected: %s", status.ErrPaymentFailed, env.Message)
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode initialize data: %w", err)
	}
	return &data, nil
}

func (c *client) verifyTransaction(ctx context.Context, reference string) (*transactionData, error) {
	env, err := c.get(ctx, "/transaction/verify/"+reference)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: verify rejected: %s", status.ErrPaymentFailed, env.Message)
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode verify data: %w", err)
	}
	return &data, nil
}

func (c *client) chargeMobileMoney(ctx context.Context, form *chargeForm) (*transactionData, error) {
	env, err := c.post(ctx, "/charge", form)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: charge rejected: %s", status.ErrPaymentFailed, env.Message)
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode charge data: %w", err)
	}
	return &data, nil
}

func (c *client) checkCharge(ctx context.Context, reference string) (*transactionData, error) {
	env, err := c.get(ctx, "/charge/"+reference)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: check charge rejected: %s", status.ErrPaymentFailed, env.Message)
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode charge data: %w", err)
	}
	return &data, nil
}

func (c *client) post(ctx context.Context, path string, body any) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *client) get(ctx context.Context, path string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *client) do(req *http.Request) (*envelope, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: paystack returned %d", status.ErrServiceUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest && !env.Status {
		return nil, fmt.Errorf("%w: %s", status.ErrPaymentFailed, env.Message)
	}
	return &env, nil
}
