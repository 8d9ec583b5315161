package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"tiketi/internal/status"
)

// SMSService delivers short messages through the Twilio REST API.
type SMSService struct {
	accountSID string
	authToken  string
	from       string
	hc         *http.Client
}

func NewSMSService(accountSID, authToken, from string) *SMSService {
	return &SMSService{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers one SMS. Numbers without a country prefix are assumed to
// be Kenyan and rewritten to +254.
func (s *SMSService) Send(ctx context.Context, to, body string) error {
	if s.accountSID == "" || s.authToken == "" {
		slog.Warn("sms delivery skipped, twilio not configured", "to", to)
		return nil
	}

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", s.accountSID)
	form := url.Values{}
	form.Set("To", NormalizePhone(to))
	form.Set("From", s.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: twilio returned %s", status.ErrServiceUnavailable, resp.Status)
	}

	slog.Info("sms sent", "to", to)
	return nil
}

// SendTicketConfirmation sends the post-purchase confirmation text.
func (s *SMSService) SendTicketConfirmation(ctx context.Context, to, eventTitle, ticketID string) error {
	body := fmt.Sprintf("Ticket Confirmed: %s\nID: %s\nCheck email for QR code", eventTitle, ticketID)
	return s.Send(ctx, to, body)
}

// NormalizePhone rewrites a local number to E.164 form with the 254 prefix.
func NormalizePhone(number string) string {
	if strings.HasPrefix(number, "+") {
		return number
	}

	var digits strings.Builder
	for _, r := range number {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	n := digits.String()
	if !strings.HasPrefix(n, "254") {
		n = "254" + strings.TrimLeft(n, "0")
	}
	return "+" + n
}
