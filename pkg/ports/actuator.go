package ports

import (
	"context"

	"github.com/aretw0/autotron/pkg/domain"
)

// Actuator is the boundary to real devices.
// Concrete protocol clients (Home Assistant, Hue, ...) live behind it.
type Actuator interface {
	// Actuate asks the device to reach the command's desired state.
	// It returns once the request was handed over; confirmation arrives later as a StateUpdate.
	Actuate(ctx context.Context, cmd domain.Command) error

	// Query returns the currently reported attributes of an entity.
	// Implementations should wrap domain.ErrActuationUnreachable when the device cannot answer.
	Query(ctx context.Context, entityID string) (domain.Attributes, error)
}

// StateSubscriber streams inbound state updates.
type StateSubscriber interface {
	// Subscribe returns a channel of state updates, closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan domain.StateUpdate, error)
}
