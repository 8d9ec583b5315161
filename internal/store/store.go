package store

import (
	"context"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Store wraps the PocketBase app with typed access to the ticketing
// collections. All cross-record invariants (inventory decrements, payment
// status flips) are expressed as conditional single-row updates so that
// concurrent verifications cannot double-apply them.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

// RunInTransaction executes fn against a transactional copy of the store.
// Partial work inside fn is rolled back when fn returns an error.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx *Store) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(New(txApp))
	})
}

func now() string {
	return types.NowDateTime().String()
}
