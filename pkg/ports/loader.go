package ports

import "context"

// Watchable defines an interface for stores that can notify about backend changes.
// This is used to hot-reload the active graph when its document is edited on disk.
type Watchable interface {
	// Watch returns a channel that receives the name of a changed document.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan string, error)
}
