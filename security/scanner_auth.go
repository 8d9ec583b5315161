package security

import (
	"log/slog"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

// ScannerAuth guards gate-scanner endpoints. The scanner presents its API
// key in X-Scanner-Key; only the bcrypt hash of the key is configured on
// the server.
type ScannerAuth struct {
	keyHash string
}

func NewScannerAuth(keyHash string) *ScannerAuth {
	return &ScannerAuth{keyHash: keyHash}
}

func (s *ScannerAuth) Require(next func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if s.keyHash == "" {
			slog.Error("scanner endpoint hit with no key hash configured")
			return apis.NewApiError(503, "Scanner access not configured", nil)
		}

		key := e.Request.Header.Get("X-Scanner-Key")
		if key == "" {
			return apis.NewUnauthorizedError("Missing scanner key", nil)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.keyHash), []byte(key)); err != nil {
			return apis.NewUnauthorizedError("Invalid scanner key", nil)
		}

		return next(e)
	}
}
