package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tiketi/internal/status"

	qrcode "github.com/skip2/go-qrcode"
)

// QRService signs ticket payloads and renders them as scannable codes.
// The payload format is "ticketID:eventID:issuedAt:signature" where the
// signature covers the first three fields.
type QRService struct {
	secret []byte
}

func NewQRService(secret string) *QRService {
	return &QRService{secret: []byte(secret)}
}

// Sign produces the signed payload for a ticket.
func (s *QRService) Sign(ticketID, eventID string, issuedAt time.Time) string {
	ts := strconv.FormatInt(issuedAt.Unix(), 10)
	data := fmt.Sprintf("%s:%s:%s", ticketID, eventID, ts)
	return data + ":" + s.signature(data)
}

// GenerateDataURL renders the signed payload as a PNG data URL suitable
// for embedding in emails and API replies.
func (s *QRService) GenerateDataURL(ticketID, eventID string, issuedAt time.Time) (string, error) {
	payload := s.Sign(ticketID, eventID, issuedAt)
	return s.EncodePNG(payload)
}

// GeneratePNG renders the signed payload as raw PNG bytes.
func (s *QRService) GeneratePNG(ticketID, eventID string, issuedAt time.Time) ([]byte, error) {
	payload := s.Sign(ticketID, eventID, issuedAt)
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

func (s *QRService) EncodePNG(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Verify checks a scanned payload and returns the ticket and event IDs it
// was issued for. Tampered or malformed payloads are rejected.
func (s *QRService) Verify(payload string) (ticketID, eventID string, err error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 4 {
		return "", "", fmt.Errorf("%w: malformed code", status.ErrInvalidInput)
	}

	data := strings.Join(parts[:3], ":")
	want := s.signature(data)
	if !hmac.Equal([]byte(want), []byte(parts[3])) {
		return "", "", fmt.Errorf("%w: signature mismatch", status.ErrUnauthorized)
	}

	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return "", "", fmt.Errorf("%w: malformed timestamp", status.ErrInvalidInput)
	}
	return parts[0], parts[1], nil
}

func (s *QRService) signature(data string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
