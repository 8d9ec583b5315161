package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tiketi/internal/status"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPaystack(t *testing.T, handler http.HandlerFunc) *Paystack {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := New(context.Background(), &Config{
		BaseURL:   server.URL,
		SecretKey: "sk_test_secret",
	})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresSecretKey(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	assert.ErrorIs(t, err, status.ErrInvalidInput)
}

func TestNew_DefaultBaseURL(t *testing.T) {
	p, err := New(context.Background(), &Config{SecretKey: "sk_test_secret"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.paystack.co", p.cfg.BaseURL)
}

func TestInitializeTransaction(t *testing.T) {
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))

		var form initializeForm
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		assert.Equal(t, "amina@example.com", form.Email)
		assert.EqualValues(t, 20000, form.Amount, "amount must be sent in minor units")
		assert.Equal(t, "TKT-abc", form.Reference)

		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "access-abc",
				"reference":         "TKT-abc",
			},
		})
	})

	checkout, err := p.InitializeTransaction(context.Background(), &CheckoutForm{
		Email:     "amina@example.com",
		Amount:    decimal.NewFromInt(200),
		Currency:  "KES",
		Reference: "TKT-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", checkout.AuthorizationURL)
	assert.Equal(t, "TKT-abc", checkout.Reference)
}

func TestInitializeTransaction_Rejected(t *testing.T) {
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Invalid email address",
		})
	})

	_, err := p.InitializeTransaction(context.Background(), &CheckoutForm{
		Email:     "not-an-email",
		Amount:    decimal.NewFromInt(200),
		Reference: "TKT-abc",
	})
	assert.ErrorIs(t, err, status.ErrPaymentFailed)
}

func TestInitializeTransaction_ServerError(t *testing.T) {
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.InitializeTransaction(context.Background(), &CheckoutForm{
		Email:     "amina@example.com",
		Amount:    decimal.NewFromInt(200),
		Reference: "TKT-abc",
	})
	assert.ErrorIs(t, err, status.ErrServiceUnavailable)
}

func TestInitializeTransaction_Unreachable(t *testing.T) {
	p, err := New(context.Background(), &Config{
		BaseURL:   "http://127.0.0.1:1",
		SecretKey: "sk_test_secret",
	})
	require.NoError(t, err)

	_, err = p.InitializeTransaction(context.Background(), &CheckoutForm{
		Email:     "amina@example.com",
		Amount:    decimal.NewFromInt(200),
		Reference: "TKT-abc",
	})
	assert.ErrorIs(t, err, status.ErrServiceUnavailable)
}

func TestVerifyTransaction(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     string
	}{
		{"success stays success", "success", "success"},
		{"failed maps to failed", "failed", "failed"},
		{"abandoned maps to failed", "abandoned", "failed"},
		{"reversed maps to failed", "reversed", "failed"},
		{"ongoing maps to pending", "ongoing", "pending"},
		{"send_otp maps to pending", "send_otp", "pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/TKT-abc", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]any{
					"status":  true,
					"message": "Verification successful",
					"data": map[string]any{
						"status":    tt.provider,
						"reference": "TKT-abc",
						"amount":    20000,
						"currency":  "KES",
						"channel":   "card",
						"paid_at":   "2024-06-01T12:00:00Z",
					},
				})
			})

			txn, err := p.VerifyTransaction(context.Background(), "TKT-abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, txn.Status)
			assert.Equal(t, "TKT-abc", txn.Reference)
			assert.True(t, txn.Amount.Equal(decimal.NewFromInt(200)), "amount %s", txn.Amount)
		})
	}
}

func TestChargeMobileMoney(t *testing.T) {
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charge", r.URL.Path)

		var form chargeForm
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		assert.Equal(t, "mpesa", form.MobileMoney.Provider)
		assert.Equal(t, "+254712345678", form.MobileMoney.Phone)

		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Charge attempted",
			"data": map[string]any{
				"status":       "pay_offline",
				"reference":    "TKT-abc",
				"display_text": "Enter your PIN on your phone",
			},
		})
	})

	charge, err := p.ChargeMobileMoney(context.Background(), &ChargeMobileForm{
		Email:     "amina@example.com",
		Phone:     "+254712345678",
		Amount:    decimal.NewFromInt(200),
		Reference: "TKT-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "TKT-abc", charge.Reference)
	assert.Equal(t, "Enter your PIN on your phone", charge.DisplayText)
}

func TestMinorUnitConversion(t *testing.T) {
	assert.EqualValues(t, 20000, toMinorUnits(decimal.NewFromInt(200)))
	assert.EqualValues(t, 12550, toMinorUnits(decimal.NewFromFloat(125.50)))
	assert.True(t, fromMinorUnits(20000).Equal(decimal.NewFromInt(200)))
	assert.True(t, fromMinorUnits(12550).Equal(decimal.NewFromFloat(125.50)))
}

func TestFeedPayloadToTransaction(t *testing.T) {
	raw := `{
		"event": "charge.success",
		"data": {
			"reference": "TKT-abc",
			"status": "success",
			"amount": 20000,
			"currency": "KES",
			"channel": "mobile_money",
			"paid_at": "2024-06-01T12:00:00Z"
		}
	}`

	var payload feedPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	txn := payload.toTransaction()
	assert.Equal(t, "TKT-abc", txn.Reference)
	assert.Equal(t, "success", txn.Status)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "mobile_money", txn.Channel)
	assert.Equal(t, 2024, txn.PaidAt.Year())
}
