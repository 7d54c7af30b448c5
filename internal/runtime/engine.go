package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/autotron/internal/graph"
	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/internal/tracker"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
	"github.com/aretw0/autotron/pkg/ports"
	"github.com/aretw0/autotron/pkg/registry"
	"golang.org/x/time/rate"
)

const (
	DefaultTickInterval     = 500 * time.Millisecond
	DefaultFrontendTimeout  = 30 * time.Second
	DefaultActuationTimeout = 10 * time.Second
)

// Engine is the graph runtime: it owns the active model and its node instances,
// ticks them in topological order and arbitrates device actuation.
type Engine struct {
	registry *registry.Registry
	tracker  *tracker.Tracker
	verifier *tracker.Verifier
	actuator ports.Actuator
	limiter  *rate.Limiter
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
	onChange func()

	tickInterval     time.Duration
	frontendTimeout  time.Duration
	actuationTimeout time.Duration

	// tickMu serializes ticks with loads and reloads.
	tickMu    sync.Mutex
	model     *graph.Model
	instances map[string]*instance
	dirty     atomic.Bool

	cacheMu sync.RWMutex
	cache   map[string]node.Outputs
	failed  []string

	chanMu    sync.Mutex
	staged    map[string]any
	committed map[string]any

	// snapMu guards the snapshots read by the audit and the control surface.
	snapMu       sync.RWMutex
	overrides    map[string]override
	expectations map[string]domain.Expectation

	stateMu          sync.RWMutex
	state            domain.RuntimeState
	doc              *domain.Document
	nodeCount        int
	connCount        int
	droppedCount     int
	skipped          []string
	tickCount        uint64
	lastTick         time.Time
	startedAt        time.Time
	frontendActive   bool
	frontendLastSeen time.Time

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	actCtx    context.Context
	actCancel context.CancelFunc
	actWG     sync.WaitGroup
}

type instance struct {
	spec     domain.NodeSpec
	node     node.Node
	actuator bool
}

type override struct {
	mode   string
	nodeID string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracker sets the command ledger shared with the audit.
func WithTracker(t *tracker.Tracker) Option {
	return func(e *Engine) {
		e.tracker = t
	}
}

// WithVerifier enables retry/verify of issued commands.
func WithVerifier(v *tracker.Verifier) Option {
	return func(e *Engine) {
		e.verifier = v
	}
}

// WithActuator sets the device boundary commands are sent to.
func WithActuator(a ports.Actuator) Option {
	return func(e *Engine) {
		e.actuator = a
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithClock overrides the time source seen by nodes and the frontend window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTickInterval sets the scheduler cadence.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithFrontendTimeout sets the frontend liveness window.
func WithFrontendTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.frontendTimeout = d
		}
	}
}

// WithActuationTimeout bounds every device call.
func WithActuationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.actuationTimeout = d
		}
	}
}

// WithActuationRate limits device calls to r per second with the given burst.
func WithActuationRate(r float64, burst int) Option {
	return func(e *Engine) {
		if r > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(r), max(burst, 1))
		}
	}
}

// WithChangeHandler is called after a tick in which a node reported a property
// change outside of a reload.
func WithChangeHandler(fn func()) Option {
	return func(e *Engine) {
		e.onChange = fn
	}
}

// NewEngine creates a stopped engine with no graph.
func NewEngine(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:         reg,
		logger:           logging.NewNop(),
		now:              time.Now,
		tickInterval:     DefaultTickInterval,
		frontendTimeout:  DefaultFrontendTimeout,
		actuationTimeout: DefaultActuationTimeout,
		limiter:          rate.NewLimiter(rate.Inf, 0),
		instances:        make(map[string]*instance),
		cache:            make(map[string]node.Outputs),
		staged:           make(map[string]any),
		committed:        make(map[string]any),
		overrides:        make(map[string]override),
		expectations:     make(map[string]domain.Expectation),
		state:            domain.StateStopped,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = tracker.New(tracker.WithLogger(e.logger))
	}
	e.actCtx, e.actCancel = context.WithCancel(context.Background())
	return e
}

// Tracker returns the command ledger the engine records into.
func (e *Engine) Tracker() *tracker.Tracker {
	return e.tracker
}

// Status returns a read-only snapshot of the runtime.
func (e *Engine) Status() domain.Status {
	now := e.now()

	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	st := domain.Status{
		State:              e.state,
		Running:            e.state == domain.StateRunning,
		NodeCount:          e.nodeCount,
		ConnectionCount:    e.connCount,
		DroppedConnections: e.droppedCount,
		TickCount:          e.tickCount,
		FrontendActive:     e.frontendLiveLocked(now),
	}
	if !e.lastTick.IsZero() {
		t := e.lastTick
		st.LastTickTime = &t
	}
	if st.Running {
		t := e.startedAt
		st.StartedAt = &t
		st.Uptime = now.Sub(e.startedAt)
	}
	if !e.frontendLastSeen.IsZero() {
		t := e.frontendLastSeen
		st.FrontendLastSeen = &t
	}
	return st
}

// Document returns the document the active graph was loaded from, or nil.
func (e *Engine) Document() *domain.Document {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.doc
}

// Report describes the active graph model.
func (e *Engine) Report() (domain.GraphReport, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if e.model == nil {
		return domain.GraphReport{}, domain.ErrNoGraphLoaded
	}

	e.stateMu.RLock()
	skipped := slices.Clone(e.skipped)
	e.stateMu.RUnlock()

	return domain.GraphReport{
		Order:     e.model.Order(),
		Skipped:   skipped,
		Dropped:   e.model.Dropped(),
		BackEdges: e.model.BackEdges(),
	}, nil
}

// CurrentDocument rebuilds the active document with every node's live properties,
// as returned by Serialize.
func (e *Engine) CurrentDocument() (*domain.Document, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.stateMu.RLock()
	src := e.doc
	e.stateMu.RUnlock()
	if src == nil {
		return nil, domain.ErrNoGraphLoaded
	}

	doc, err := src.Clone()
	if err != nil {
		return nil, err
	}
	for i, spec := range doc.Nodes {
		inst, ok := e.instances[spec.ID]
		if !ok {
			continue // unknown types keep their stored properties
		}
		props, err := inst.node.Serialize()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize node %s: %w", spec.ID, err)
		}
		doc.Nodes[i].Data.Properties = props
	}
	return doc, nil
}

// Outputs dumps the output cache of the most recent tick.
func (e *Engine) Outputs() map[string]node.Outputs {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()

	out := make(map[string]node.Outputs, len(e.cache))
	for id, outputs := range e.cache {
		cp := make(node.Outputs, len(outputs))
		for k, v := range outputs {
			cp[k] = v
		}
		out[id] = cp
	}
	return out
}

// Failed returns the ids of the nodes whose compute failed in the most recent tick.
func (e *Engine) Failed() []string {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	return slices.Clone(e.failed)
}

// Overrides returns the entities currently under an exclusive override mode.
func (e *Engine) Overrides() map[string]string {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()

	out := make(map[string]string, len(e.overrides))
	for entity, o := range e.overrides {
		out[entity] = o.mode
	}
	return out
}

// Expectations returns the per-entity state reported by actuator nodes on the
// last tick, annotated with the active override mode.
func (e *Engine) Expectations() map[string]domain.Expectation {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()

	out := make(map[string]domain.Expectation, len(e.expectations))
	for entity, exp := range e.expectations {
		exp.State = exp.State.Clone()
		if o, ok := e.overrides[entity]; ok {
			exp.Override = o.mode
		}
		out[entity] = exp
	}
	return out
}

func (e *Engine) setOverride(nodeID, entityID, mode string) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	if prev, ok := e.overrides[entityID]; !ok || prev.mode != mode || prev.nodeID != nodeID {
		e.logger.Info("Override mode set", "entity_id", entityID, "mode", mode, "node_id", nodeID)
	}
	e.overrides[entityID] = override{mode: mode, nodeID: nodeID}
}

func (e *Engine) clearOverride(nodeID, entityID string) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	if o, ok := e.overrides[entityID]; ok && o.nodeID == nodeID {
		delete(e.overrides, entityID)
		e.logger.Info("Override mode cleared", "entity_id", entityID, "mode", o.mode, "node_id", nodeID)
	}
}

func (e *Engine) clearOverridesOf(nodeID string) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	for entity, o := range e.overrides {
		if o.nodeID == nodeID {
			delete(e.overrides, entity)
		}
	}
}
