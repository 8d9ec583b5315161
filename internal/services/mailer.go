package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tiketi/internal/status"
)

const resendAPI = "https://api.resend.com/emails"

// Attachment content must be base64 encoded per the Resend API.
type Attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendEmail struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Html        string       `json:"html"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Mailer delivers transactional email through Resend.
type Mailer struct {
	apiKey string
	from   string
	hc     *http.Client
}

func NewMailer(apiKey, from string) *Mailer {
	return &Mailer{
		apiKey: apiKey,
		from:   from,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers one email. With no API key configured the message is logged
// instead, which keeps local development working without credentials.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody, textBody string, atts ...Attachment) error {
	if m.apiKey == "" {
		slog.Warn("mail delivery skipped, no api key configured",
			"to", to, "subject", subject, "attachments", len(atts))
		return nil
	}

	payload := resendEmail{
		From:        m.from,
		To:          to,
		Subject:     subject,
		Html:        htmlBody,
		Text:        textBody,
		Attachments: atts,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendAPI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: resend returned %s", status.ErrServiceUnavailable, resp.Status)
	}

	slog.Info("email sent", "to", to, "subject", subject)
	return nil
}

// SendTicket emails the buyer their ticket with the PDF attached.
func (m *Mailer) SendTicket(ctx context.Context, to, buyerName, eventTitle string, pdfBytes []byte, qrDataURL string) error {
	html := fmt.Sprintf(`
		<h2>Your ticket for %s</h2>
		<p>Hi %s,</p>
		<p>Your payment was confirmed and your ticket is attached.</p>
		<p>Present the QR code below (or the attached PDF) at the entrance.</p>
		<img src="%s" alt="entry code" width="200" height="200" />
	`, eventTitle, buyerName, qrDataURL)

	att := Attachment{
		Filename: "ticket.pdf",
		Content:  base64.StdEncoding.EncodeToString(pdfBytes),
	}
	return m.Send(ctx, to, "Your ticket for "+eventTitle,
		html, "Your payment was confirmed. Your ticket is attached.", att)
}
