package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/autotron/internal/logging"
)

const (
	// DefaultVerifyDelay is how long to wait for a confirmation before resending.
	DefaultVerifyDelay = 5 * time.Second
	// DefaultMaxAttempts is how many times a command is resent before giving up.
	DefaultMaxAttempts = 2
)

// ResendFunc redelivers a command. The resend stays on the original ledger
// entry, so the next state update for the entity confirms it.
type ResendFunc func(ctx context.Context) error

// Verifier is the single retry/verify primitive for device commands:
// issue, wait, re-check the ledger, resend up to a bound.
// Watches are keyed by the original command id and can be cancelled by id,
// by source node (on reload/destroy) or all at once.
type Verifier struct {
	tracker     *Tracker
	delay       time.Duration
	maxAttempts int
	logger      *slog.Logger

	mu      sync.Mutex
	watches map[string]*watch
	closed  bool
	wg      sync.WaitGroup
}

type watch struct {
	source string
	cancel context.CancelFunc
}

// VerifierOption configures the Verifier.
type VerifierOption func(*Verifier)

// WithVerifyDelay sets the wait between checks.
func WithVerifyDelay(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.delay = d
		}
	}
}

// WithMaxAttempts sets how many resends are allowed. Zero disables resending
// (the command is still checked once and reported if unverified).
func WithMaxAttempts(n int) VerifierOption {
	return func(v *Verifier) {
		if n >= 0 {
			v.maxAttempts = n
		}
	}
}

// WithVerifierLogger configures the verifier logger.
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// NewVerifier creates a verifier reading confirmations from t.
func NewVerifier(t *Tracker, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		tracker:     t,
		delay:       DefaultVerifyDelay,
		maxAttempts: DefaultMaxAttempts,
		logger:      logging.NewNop(),
		watches:     make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Watch starts verifying a command. It returns false if the verifier is closed
// or the command is already watched.
func (v *Verifier) Watch(commandID, sourceNodeID string, resend ResendFunc) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false
	}
	if _, exists := v.watches[commandID]; exists {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	v.watches[commandID] = &watch{source: sourceNodeID, cancel: cancel}
	v.wg.Add(1)
	go v.run(ctx, commandID, resend)
	return true
}

func (v *Verifier) run(ctx context.Context, commandID string, resend ResendFunc) {
	defer v.wg.Done()
	defer v.forget(commandID)

	timer := time.NewTimer(v.delay)
	defer timer.Stop()

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		cmd, ok := v.tracker.Get(commandID)
		if !ok {
			return // trimmed from the ledger
		}
		if cmd.Verified() {
			return
		}
		if latest, ok := v.tracker.Latest(cmd.EntityID); ok && latest.ID != commandID {
			v.logger.Debug("Command superseded, verification stopped",
				"command_id", commandID, "entity_id", cmd.EntityID)
			return
		}
		if attempt >= v.maxAttempts {
			v.logger.Warn("Command could not be verified",
				"command_id", commandID,
				"entity_id", cmd.EntityID,
				"attempts", attempt,
				"confirmed", cmd.Confirmed(),
				"mismatch", cmd.Mismatch,
			)
			return
		}

		v.tracker.markAttempt(commandID)
		if err := resend(ctx); err != nil {
			v.logger.Warn("Command resend failed",
				"command_id", commandID, "entity_id", cmd.EntityID, "attempt", attempt+1, "err", err)
		}
		timer.Reset(v.delay)
	}
}

func (v *Verifier) forget(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if w, ok := v.watches[id]; ok {
		w.cancel()
		delete(v.watches, id)
	}
}

// Cancel stops verifying a command.
func (v *Verifier) Cancel(commandID string) {
	v.forget(commandID)
}

// CancelSource stops every watch started for commands of a node.
func (v *Verifier) CancelSource(sourceNodeID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, w := range v.watches {
		if w.source == sourceNodeID {
			w.cancel()
			delete(v.watches, id)
		}
	}
}

// Active returns the number of running watches.
func (v *Verifier) Active() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.watches)
}

// Close cancels every watch and waits for them to exit.
func (v *Verifier) Close() {
	v.mu.Lock()
	v.closed = true
	for id, w := range v.watches {
		w.cancel()
		delete(v.watches, id)
	}
	v.mu.Unlock()
	v.wg.Wait()
}
