package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/pkg/domain"
)

const subscriberBuffer = 64

// Devices simulates a set of devices behind the actuation boundary.
// It implements ports.Actuator and ports.StateSubscriber.
type Devices struct {
	mu          sync.Mutex
	states      map[string]domain.Attributes
	unreachable map[string]bool
	ignored     map[string]bool
	subs        map[chan domain.StateUpdate]struct{}
	sent        []domain.Command

	latency time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// DeviceOption configures Devices.
type DeviceOption func(*Devices)

// WithLatency delays the state update that follows a command.
func WithLatency(d time.Duration) DeviceOption {
	return func(s *Devices) {
		s.latency = d
	}
}

// WithDeviceClock sets the clock used to stamp state updates.
func WithDeviceClock(now func() time.Time) DeviceOption {
	return func(s *Devices) {
		s.now = now
	}
}

// WithDeviceLogger configures the simulator logger.
func WithDeviceLogger(logger *slog.Logger) DeviceOption {
	return func(s *Devices) {
		s.logger = logger
	}
}

// NewDevices creates an empty simulator.
func NewDevices(opts ...DeviceOption) *Devices {
	d := &Devices{
		states:      make(map[string]domain.Attributes),
		unreachable: make(map[string]bool),
		ignored:     make(map[string]bool),
		subs:        make(map[chan domain.StateUpdate]struct{}),
		now:         time.Now,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Set changes an entity's state from outside the runtime, as a manual
// switch or another controller would, and publishes the update.
func (d *Devices) Set(entityID string, attrs domain.Attributes) {
	d.mu.Lock()
	state := d.merge(entityID, attrs)
	d.publishLocked(domain.StateUpdate{EntityID: entityID, Attributes: state, Timestamp: d.now()})
	d.mu.Unlock()
}

// SetUnreachable makes Actuate and Query fail for the entity.
func (d *Devices) SetUnreachable(entityID string, unreachable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unreachable[entityID] = unreachable
}

// Ignore makes the entity accept commands without acting on them.
func (d *Devices) Ignore(entityID string, ignore bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ignored[entityID] = ignore
}

// State returns a copy of the entity's current state.
func (d *Devices) State(entityID string) (domain.Attributes, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[entityID]
	return s.Clone(), ok
}

// Sent returns every command accepted so far, in order.
func (d *Devices) Sent() []domain.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Command, len(d.sent))
	copy(out, d.sent)
	return out
}

// Actuate applies the command and publishes the resulting state.
func (d *Devices) Actuate(ctx context.Context, cmd domain.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.unreachable[cmd.EntityID] {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrActuationUnreachable, cmd.EntityID)
	}
	d.sent = append(d.sent, cmd)
	if d.ignored[cmd.EntityID] {
		d.mu.Unlock()
		d.logger.Debug("Simulated device ignored command", "entity_id", cmd.EntityID, "action", cmd.Action)
		return nil
	}

	attrs := cmd.Desired.Clone()
	if attrs == nil {
		attrs = domain.Attributes{}
	}
	switch cmd.Action {
	case domain.ActionTurnOn:
		attrs[domain.AttrOn] = true
	case domain.ActionTurnOff:
		attrs[domain.AttrOn] = false
	}
	state := d.merge(cmd.EntityID, attrs)
	d.mu.Unlock()

	update := domain.StateUpdate{EntityID: cmd.EntityID, Attributes: state}
	if d.latency <= 0 {
		d.publish(update)
		return nil
	}
	time.AfterFunc(d.latency, func() { d.publish(update) })
	return nil
}

// Query returns the entity's reported state.
func (d *Devices) Query(ctx context.Context, entityID string) (domain.Attributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unreachable[entityID] {
		return nil, fmt.Errorf("%w: %s", domain.ErrActuationUnreachable, entityID)
	}
	state, ok := d.states[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity %s", domain.ErrActuationUnreachable, entityID)
	}
	return state.Clone(), nil
}

// Subscribe streams state updates until ctx is done.
// A subscriber that falls behind loses updates rather than blocking devices.
func (d *Devices) Subscribe(ctx context.Context) (<-chan domain.StateUpdate, error) {
	ch := make(chan domain.StateUpdate, subscriberBuffer)
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		delete(d.subs, ch)
		close(ch)
		d.mu.Unlock()
	}()
	return ch, nil
}

func (d *Devices) merge(entityID string, attrs domain.Attributes) domain.Attributes {
	state := d.states[entityID]
	if state == nil {
		state = domain.Attributes{}
	}
	for k, v := range attrs {
		state[k] = v
	}
	d.states[entityID] = state
	return state.Clone()
}

func (d *Devices) publish(update domain.StateUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	update.Timestamp = d.now()
	d.publishLocked(update)
}

func (d *Devices) publishLocked(update domain.StateUpdate) {
	for ch := range d.subs {
		select {
		case ch <- domain.StateUpdate{EntityID: update.EntityID, Attributes: update.Attributes.Clone(), Timestamp: update.Timestamp}:
		default:
			d.logger.Warn("Dropping state update for slow subscriber", "entity_id", update.EntityID)
		}
	}
}
