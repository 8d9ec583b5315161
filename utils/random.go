package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateReference builds a globally unique payment reference. Gateways
// treat the reference as the transaction key, so it must never repeat.
func GenerateReference() string {
	return "TKT-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
