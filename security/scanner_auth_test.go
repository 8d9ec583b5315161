package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func scannerEvent(key string) *core.RequestEvent {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/check-in", nil)
	if key != "" {
		req.Header.Set("X-Scanner-Key", key)
	}

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func TestScannerAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gate-key-1"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewScannerAuth(string(hash))
	called := false
	handler := auth.Require(func(e *core.RequestEvent) error {
		called = true
		return nil
	})

	require.NoError(t, handler(scannerEvent("gate-key-1")))
	assert.True(t, called)
}

func TestScannerAuth_RejectsBadKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gate-key-1"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewScannerAuth(string(hash))
	handler := auth.Require(func(e *core.RequestEvent) error {
		t.Fatal("handler must not run")
		return nil
	})

	for name, key := range map[string]string{
		"missing key": "",
		"wrong key":   "not-the-key",
	} {
		t.Run(name, func(t *testing.T) {
			err := handler(scannerEvent(key))
			require.Error(t, err)

			var apiErr *router.ApiError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
		})
	}
}

func TestScannerAuth_UnconfiguredRefusesAll(t *testing.T) {
	auth := NewScannerAuth("")
	handler := auth.Require(func(e *core.RequestEvent) error {
		t.Fatal("handler must not run")
		return nil
	})

	err := handler(scannerEvent("any-key"))
	require.Error(t, err)

	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}
