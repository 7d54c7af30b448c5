package ports

import (
	"context"

	"github.com/aretw0/autotron/pkg/domain"
)

// LastActiveName is the reserved document name that mirrors the most recently
// saved graph. It is loaded at startup for continuity across restarts.
const LastActiveName = ".last_active"

// GraphStore defines the interface for persisting graph documents.
type GraphStore interface {
	// Save persists the document under the given name.
	Save(ctx context.Context, name string, doc *domain.Document) error

	// Load retrieves the document with the given name.
	// Returns domain.ErrGraphNotFound if the document does not exist.
	Load(ctx context.Context, name string) (*domain.Document, error)

	// Delete removes the document with the given name.
	Delete(ctx context.Context, name string) error

	// List returns the names of the stored documents, excluding LastActiveName.
	List(ctx context.Context) ([]string, error)
}

// Wrapper is implemented by store decorators so callers can reach the
// capabilities (Watchable, Locker) of the store underneath.
type Wrapper interface {
	Unwrap() GraphStore
}

// Capability returns the first store in the decorator chain that implements T.
func Capability[T any](store GraphStore) (T, bool) {
	for store != nil {
		if c, ok := store.(T); ok {
			return c, true
		}
		w, ok := store.(Wrapper)
		if !ok {
			break
		}
		store = w.Unwrap()
	}
	var zero T
	return zero, false
}
