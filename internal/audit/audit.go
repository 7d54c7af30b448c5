// Package audit reconciles what the runtime believes devices look like with
// what the devices report.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/internal/tracker"
	"github.com/aretw0/autotron/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of device queries in flight.
const DefaultConcurrency = 8

// Querier reads the actual state of an entity.
type Querier interface {
	Query(ctx context.Context, entityID string) (domain.Attributes, error)
}

// ExpectationSource publishes the runtime's own view of its devices.
// The engine implements it with snapshots refreshed every tick.
type ExpectationSource interface {
	Expectations() map[string]domain.Expectation
	Overrides() map[string]string
}

// Auditor periodically compares expected and actual device state.
type Auditor struct {
	tracker     *tracker.Tracker
	querier     Querier
	source      ExpectationSource
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	now         func() time.Time
	concurrency int

	mu   sync.RWMutex
	last map[string]domain.AuditRecord

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// Option configures the Auditor.
type Option func(*Auditor)

// WithLogger configures the audit logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

// WithExpectationSource adds node-reported expectations and override modes.
func WithExpectationSource(src ExpectationSource) Option {
	return func(a *Auditor) {
		a.source = src
	}
}

// WithLifecycleHooks registers the OnAudit callback.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Auditor) {
		a.hooks = a.hooks.Merge(hooks)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		a.now = now
	}
}

// WithConcurrency bounds parallel device queries.
func WithConcurrency(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// New creates an auditor reading commands from t and actual state from q.
func New(t *tracker.Tracker, q Querier, opts ...Option) *Auditor {
	a := &Auditor{
		tracker:     t,
		querier:     q,
		logger:      logging.NewNop(),
		now:         time.Now,
		concurrency: DefaultConcurrency,
		last:        make(map[string]domain.AuditRecord),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AuditAndLog checks every known entity once and logs the drift it finds.
// A failing query marks its entity as unknown and never aborts the pass.
func (a *Auditor) AuditAndLog(ctx context.Context) domain.AuditReport {
	started := a.now()
	expectations := a.expectations()

	records := make([]domain.AuditRecord, len(expectations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, exp := range expectations {
		i, exp := i, exp
		g.Go(func() error {
			records[i] = a.check(gctx, exp)
			return nil
		})
	}
	_ = g.Wait()

	report := domain.AuditReport{
		Checked:   len(records),
		Details:   records,
		StartedAt: started,
		Duration:  a.now().Sub(started),
	}
	for _, r := range records {
		switch {
		case r.Unknown:
			report.Unknown++
			a.logger.WarnContext(ctx, "Device state unknown", "entity_id", r.EntityID, "err", r.Error)
		case r.Mismatch:
			report.Mismatched++
			a.logger.WarnContext(ctx, "Device state drift",
				"entity_id", r.EntityID,
				"keys", strings.Join(r.MismatchKeys, ","),
				"expected", r.ExpectedState,
				"actual", r.ActualState,
				"source", r.Source,
			)
		}
	}

	last := make(map[string]domain.AuditRecord, len(records))
	for _, r := range records {
		last[r.EntityID] = r
	}
	a.mu.Lock()
	a.last = last
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "Device audit complete",
		"checked", report.Checked,
		"mismatched", report.Mismatched,
		"unknown", report.Unknown,
	)
	if a.hooks.OnAudit != nil {
		a.hooks.OnAudit(ctx, &domain.AuditEvent{
			EventBase: domain.EventBase{Timestamp: a.now(), Type: domain.EventAudit},
			Report:    report,
		})
	}
	return report
}

// expectations resolves the expected state of every entity: the owning node's
// own state first, else the latest confirmed command, else the latest pending one.
func (a *Auditor) expectations() []domain.Expectation {
	var fromNodes map[string]domain.Expectation
	var overrides map[string]string
	if a.source != nil {
		fromNodes = a.source.Expectations()
		overrides = a.source.Overrides()
	}

	byEntity := make(map[string]domain.Expectation, len(fromNodes))
	for entity, exp := range fromNodes {
		byEntity[entity] = exp
	}
	for _, entity := range a.tracker.Entities() {
		if _, ok := byEntity[entity]; ok {
			continue
		}
		cmd, ok := a.tracker.Expectation(entity)
		if !ok {
			continue
		}
		byEntity[entity] = domain.Expectation{
			EntityID: entity,
			State:    cmd.DesiredState,
			Source:   "command:" + cmd.ID,
		}
	}

	out := make([]domain.Expectation, 0, len(byEntity))
	for entity, exp := range byEntity {
		if mode, ok := overrides[entity]; ok {
			exp.Override = mode
		}
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func (a *Auditor) check(ctx context.Context, exp domain.Expectation) domain.AuditRecord {
	rec := domain.AuditRecord{
		EntityID:      exp.EntityID,
		ExpectedState: exp.State,
		Source:        exp.Source,
		Override:      exp.Override,
		LastCheckedAt: a.now(),
	}

	actual, err := a.query(ctx, exp.EntityID)
	if err != nil {
		rec.Unknown = true
		rec.Error = fmt.Errorf("%w: %w", domain.ErrActuationUnreachable, err).Error()
		return rec
	}
	compare(&rec, actual)
	return rec
}

// compare fills in the drift between rec's expected state and actual.
func compare(rec *domain.AuditRecord, actual domain.Attributes) {
	rec.ActualState = actual

	// An entity under an override mode is expected to move its color away
	// from the static state; on/off is still checked.
	var skip map[string]struct{}
	if rec.Override != "" {
		skip = domain.ColorKeys
	}
	rec.MismatchKeys = rec.ExpectedState.Diff(actual, skip)
	rec.Mismatch = len(rec.MismatchKeys) > 0
}

func (a *Auditor) query(ctx context.Context, entityID string) (attrs domain.Attributes, err error) {
	if a.querier == nil {
		return nil, fmt.Errorf("no device boundary configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query panicked: %v", r)
		}
	}()
	return a.querier.Query(ctx, entityID)
}

// TrackedDevices returns the expected state of every entity the runtime
// currently tracks, sorted by id. Entities checked by the last audit pass
// carry their actual state from it; the rest are reported unchecked.
func (a *Auditor) TrackedDevices() []domain.AuditRecord {
	expectations := a.expectations()

	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.AuditRecord, 0, len(expectations))
	for _, exp := range expectations {
		rec := domain.AuditRecord{
			EntityID:      exp.EntityID,
			ExpectedState: exp.State,
			Source:        exp.Source,
			Override:      exp.Override,
		}
		if prev, ok := a.last[exp.EntityID]; ok {
			rec.LastCheckedAt = prev.LastCheckedAt
			rec.Unknown = prev.Unknown
			rec.Error = prev.Error
			if !prev.Unknown {
				compare(&rec, prev.ActualState)
			}
		}
		out = append(out, rec)
	}
	return out
}

// StartPeriodic runs AuditAndLog every interval until StopPeriodic.
// Calling it while already running is a no-op.
func (a *Auditor) StartPeriodic(interval time.Duration) {
	if interval <= 0 {
		return
	}

	a.loopMu.Lock()
	defer a.loopMu.Unlock()
	if a.loopCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.loopCancel = cancel
	a.loopDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.AuditAndLog(ctx)
			}
		}
	}()
	a.logger.Info("Periodic device audit started", "interval", interval)
}

// StopPeriodic stops the periodic audit and waits for an in-flight pass.
func (a *Auditor) StopPeriodic() {
	a.loopMu.Lock()
	defer a.loopMu.Unlock()
	if a.loopCancel == nil {
		return
	}
	a.loopCancel()
	<-a.loopDone
	a.loopCancel = nil
	a.loopDone = nil
}

// Running reports whether the periodic audit is active.
func (a *Auditor) Running() bool {
	a.loopMu.Lock()
	defer a.loopMu.Unlock()
	return a.loopCancel != nil
}
