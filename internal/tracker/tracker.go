package tracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/google/uuid"
)

const (
	// DefaultMaxHistory bounds the ledger; older entries are trimmed first.
	DefaultMaxHistory = 1000
	// DefaultGrace is how old an unconfirmed command must be before it counts as pending.
	DefaultGrace = 2 * time.Second
)

// Tracker is the ledger of outbound device commands and their confirmations.
// It is the source of "expected" state for the device audit.
// Safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	commands []*domain.TrackedCommand
	byID     map[string]*domain.TrackedCommand

	maxSize int
	grace   time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithMaxHistory sets the maximum ledger size.
func WithMaxHistory(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxSize = n
		}
	}
}

// WithGrace sets the minimum age of a pending command.
func WithGrace(d time.Duration) Option {
	return func(t *Tracker) {
		t.grace = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger configures the tracker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		byID:    make(map[string]*domain.TrackedCommand),
		maxSize: DefaultMaxHistory,
		grace:   DefaultGrace,
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends a new command to the ledger and returns its id.
func (t *Tracker) Record(entityID, action string, desired domain.Attributes, sourceNodeID string) string {
	cmd := &domain.TrackedCommand{
		ID:           uuid.NewString(),
		EntityID:     entityID,
		Action:       action,
		DesiredState: desired.Clone(),
		IssuedAt:     t.now(),
		SourceNodeID: sourceNodeID,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.commands = append(t.commands, cmd)
	t.byID[cmd.ID] = cmd
	t.trimLocked()

	t.logger.Debug("Command recorded",
		"command_id", cmd.ID,
		"entity_id", entityID,
		"action", action,
		"source_node_id", sourceNodeID,
	)
	return cmd.ID
}

func (t *Tracker) trimLocked() {
	excess := len(t.commands) - t.maxSize
	if excess <= 0 {
		return
	}
	for _, old := range t.commands[:excess] {
		delete(t.byID, old.ID)
	}
	// Copy so the trimmed prefix can be collected.
	t.commands = append([]*domain.TrackedCommand(nil), t.commands[excess:]...)
}

// Confirm matches an inbound state update to the most recent unconfirmed command
// for the entity issued at or before ts. A report that disagrees with the desired
// state is still confirmed (a response was observed) but flagged as a mismatch.
// It returns the matched command id, or false when nothing was pending.
func (t *Tracker) Confirm(entityID string, reported domain.Attributes, ts time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.commands) - 1; i >= 0; i-- {
		cmd := t.commands[i]
		if cmd.EntityID != entityID || cmd.Confirmed() || cmd.IssuedAt.After(ts) {
			continue
		}

		at := ts
		cmd.ConfirmedAt = &at
		cmd.ConfirmedState = reported.Clone()
		cmd.Mismatch = !cmd.DesiredState.Matches(reported)

		if cmd.Mismatch {
			t.logger.Warn("Command confirmed with unexpected state",
				"command_id", cmd.ID,
				"entity_id", entityID,
				"desired", cmd.DesiredState,
				"reported", reported,
			)
		} else {
			t.logger.Debug("Command confirmed", "command_id", cmd.ID, "entity_id", entityID)
		}
		return cmd.ID, true
	}
	return "", false
}

// Pending returns unconfirmed commands older than the grace period, oldest first.
func (t *Tracker) Pending() []domain.TrackedCommand {
	return t.PendingFor("")
}

// PendingFor is Pending filtered by entity ("" means all).
func (t *Tracker) PendingFor(entityID string) []domain.TrackedCommand {
	cutoff := t.now().Add(-t.grace)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []domain.TrackedCommand
	for _, cmd := range t.commands {
		if cmd.Confirmed() || cmd.IssuedAt.After(cutoff) {
			continue
		}
		if entityID != "" && cmd.EntityID != entityID {
			continue
		}
		out = append(out, copyCommand(cmd))
	}
	return out
}

// History returns commands newest first, optionally filtered by entity and capped
// at limit (limit <= 0 means no cap).
func (t *Tracker) History(entityID string, limit int) []domain.TrackedCommand {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []domain.TrackedCommand
	for i := len(t.commands) - 1; i >= 0; i-- {
		cmd := t.commands[i]
		if entityID != "" && cmd.EntityID != entityID {
			continue
		}
		out = append(out, copyCommand(cmd))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Get returns a copy of the command with the given id.
func (t *Tracker) Get(id string) (domain.TrackedCommand, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cmd, ok := t.byID[id]
	if !ok {
		return domain.TrackedCommand{}, false
	}
	return copyCommand(cmd), true
}

// Expectation returns the command that defines the expected state of an entity:
// the most recent confirmed command, else the most recent pending one.
func (t *Tracker) Expectation(entityID string) (domain.TrackedCommand, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var pending *domain.TrackedCommand
	for i := len(t.commands) - 1; i >= 0; i-- {
		cmd := t.commands[i]
		if cmd.EntityID != entityID {
			continue
		}
		if cmd.Confirmed() {
			return copyCommand(cmd), true
		}
		if pending == nil {
			pending = cmd
		}
	}
	if pending != nil {
		return copyCommand(pending), true
	}
	return domain.TrackedCommand{}, false
}

// Latest returns the most recent command for an entity, confirmed or not.
func (t *Tracker) Latest(entityID string) (domain.TrackedCommand, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.commands) - 1; i >= 0; i-- {
		if t.commands[i].EntityID == entityID {
			return copyCommand(t.commands[i]), true
		}
	}
	return domain.TrackedCommand{}, false
}

// Entities returns every entity with at least one command in the ledger.
func (t *Tracker) Entities() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, cmd := range t.commands {
		if _, ok := seen[cmd.EntityID]; ok {
			continue
		}
		seen[cmd.EntityID] = struct{}{}
		out = append(out, cmd.EntityID)
	}
	return out
}

// Len returns the current ledger size.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.commands)
}

// markAttempt counts a resend of id. A mismatched confirmation is reopened so
// the report answering the resend can confirm the same entry.
func (t *Tracker) markAttempt(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cmd, ok := t.byID[id]
	if !ok {
		return 0
	}
	cmd.Attempts++
	if cmd.Mismatch {
		cmd.ConfirmedAt = nil
		cmd.ConfirmedState = nil
		cmd.Mismatch = false
	}
	return cmd.Attempts
}

func copyCommand(cmd *domain.TrackedCommand) domain.TrackedCommand {
	out := *cmd
	out.DesiredState = cmd.DesiredState.Clone()
	out.ConfirmedState = cmd.ConfirmedState.Clone()
	if cmd.ConfirmedAt != nil {
		at := *cmd.ConfirmedAt
		out.ConfirmedAt = &at
	}
	return out
}
