package autotron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/autotron/internal/audit"
	"github.com/aretw0/autotron/internal/config"
	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/internal/metrics"
	"github.com/aretw0/autotron/internal/runtime"
	"github.com/aretw0/autotron/internal/tracker"
	"github.com/aretw0/autotron/pkg/adapters/file"
	"github.com/aretw0/autotron/pkg/adapters/memory"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
	"github.com/aretw0/autotron/pkg/nodes"
	"github.com/aretw0/autotron/pkg/ports"
	"github.com/aretw0/autotron/pkg/registry"
)

// Version is the release of the runtime.
const Version = "0.1.0"

// saveLockTTL bounds how long a crashed writer can block others on a shared store.
const saveLockTTL = 10 * time.Second

// Service is the high-level entry point: it wires the registry, the graph
// runtime, the command tracker and the device audit around a graph store and
// an actuation boundary.
type Service struct {
	cfg        config.Config
	store      ports.GraphStore
	actuator   ports.Actuator
	subscriber ports.StateSubscriber
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	now        func() time.Time
	registry   *registry.Registry

	tracker  *tracker.Tracker
	verifier *tracker.Verifier
	engine   *runtime.Engine
	auditor  *audit.Auditor
	metrics  *metrics.Metrics
	streams  *StreamManager
	locks    *memory.Locker

	mu     sync.Mutex
	active string

	runMu     sync.Mutex
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

// Option defines a functional option for configuring the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithStore sets the graph store. The default is an in-memory store.
func WithStore(store ports.GraphStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithActuator sets the actuation boundary. If it also streams state updates,
// it becomes the state subscriber unless one was set explicitly.
func WithActuator(a ports.Actuator) Option {
	return func(s *Service) {
		s.actuator = a
	}
}

// WithStateSubscriber sets the source of inbound state updates.
func WithStateSubscriber(sub ports.StateSubscriber) Option {
	return func(s *Service) {
		s.subscriber = sub
	}
}

// WithLifecycleHooks registers observability hooks next to the built-in metrics.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Service) {
		s.hooks = s.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithNodeType registers an extra node type next to the built-ins.
func WithNodeType(name string, desc node.Descriptor) Option {
	return func(s *Service) {
		s.registry.Register(name, desc)
	}
}

// New wires a Service. Nothing runs until Start.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		cfg:     config.Default(),
		logger:  logging.NewNop(),
		now:     time.Now,
		streams: NewStreamManager(),
		locks:   memory.NewLocker(),
	}
	s.registry = registry.NewRegistry()
	nodes.RegisterAll(s.registry)

	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if s.store == nil {
		s.store = memory.NewStore()
	}
	if s.subscriber == nil {
		if sub, ok := s.actuator.(ports.StateSubscriber); ok {
			s.subscriber = sub
		}
	}

	s.metrics = metrics.New()
	hooks := s.metrics.Hooks().Merge(s.hooks)

	s.tracker = tracker.New(
		tracker.WithMaxHistory(s.cfg.MaxHistory),
		tracker.WithGrace(s.cfg.CommandGrace),
		tracker.WithClock(s.now),
		tracker.WithLogger(s.logger.With("component", "tracker")),
	)
	s.verifier = tracker.NewVerifier(s.tracker,
		tracker.WithVerifyDelay(s.cfg.VerifyDelay),
		tracker.WithMaxAttempts(s.cfg.MaxAttempts),
		tracker.WithVerifierLogger(s.logger.With("component", "verifier")),
	)

	engineOpts := []runtime.Option{
		runtime.WithLogger(s.logger.With("component", "runtime")),
		runtime.WithTracker(s.tracker),
		runtime.WithVerifier(s.verifier),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithClock(s.now),
		runtime.WithTickInterval(s.cfg.TickInterval),
		runtime.WithFrontendTimeout(s.cfg.FrontendTimeout),
		runtime.WithActuationTimeout(s.cfg.ActuationTimeout),
		runtime.WithActuationRate(s.cfg.ActuationRate, s.cfg.ActuationBurst),
		runtime.WithChangeHandler(s.broadcast),
	}
	var querier audit.Querier
	if s.actuator != nil {
		engineOpts = append(engineOpts, runtime.WithActuator(s.actuator))
		querier = s.actuator
	}
	s.engine = runtime.NewEngine(s.registry, engineOpts...)

	s.auditor = audit.New(s.tracker, querier,
		audit.WithExpectationSource(s.engine),
		audit.WithLifecycleHooks(hooks),
		audit.WithClock(s.now),
		audit.WithLogger(s.logger.With("component", "audit")),
	)
	return s, nil
}

// NodeTypes lists the registered node type names.
func (s *Service) NodeTypes() []string {
	return s.registry.List()
}

// Load replaces the active graph with doc.
func (s *Service) Load(ctx context.Context, doc *domain.Document) error {
	if err := s.engine.LoadGraph(ctx, doc); err != nil {
		return err
	}
	s.setActive("")
	s.broadcast()
	return nil
}

// LoadPath loads a graph document from a file.
func (s *Service) LoadPath(ctx context.Context, path string) error {
	doc, err := file.LoadPath(path)
	if err != nil {
		return err
	}
	return s.Load(ctx, doc)
}

// LoadNamed loads a stored graph and makes it the active one, so later
// changes to it in the store are hot reloaded.
func (s *Service) LoadNamed(ctx context.Context, name string) error {
	doc, err := s.store.Load(ctx, name)
	if err != nil {
		return err
	}
	if err := s.engine.LoadGraph(ctx, doc); err != nil {
		return err
	}
	s.setActive(name)
	s.broadcast()
	return nil
}

// HotReload applies doc to the live graph, keeping unchanged nodes.
func (s *Service) HotReload(ctx context.Context, doc *domain.Document) (*domain.DocumentDiff, error) {
	diff, err := s.engine.HotReload(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.broadcast()
	return diff, nil
}

// Reload re-reads the active stored graph and hot reloads it.
func (s *Service) Reload(ctx context.Context) (*domain.DocumentDiff, error) {
	name := s.Active()
	if name == "" {
		return nil, fmt.Errorf("%w: no stored graph is active", domain.ErrGraphNotFound)
	}
	doc, err := s.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.HotReload(ctx, doc)
}

// Save stores the live graph, with current node properties, under name and
// mirrors it as the last active graph.
func (s *Service) Save(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	doc, err := s.engine.CurrentDocument()
	if err != nil {
		return err
	}

	unlock, err := s.lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.persist(ctx, name, doc); err != nil {
		return err
	}
	s.setActive(name)
	s.logger.InfoContext(ctx, "Graph saved", "graph", name, "nodes", len(doc.Nodes))
	return nil
}

// Restore loads the last active graph, if any. It reports whether one was found.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	doc, err := s.store.Load(ctx, ports.LastActiveName)
	if errors.Is(err, domain.ErrGraphNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.engine.LoadGraph(ctx, doc); err != nil {
		return false, err
	}
	name := s.storedNameOf(ctx, doc)
	s.setActive(name)
	s.logger.InfoContext(ctx, "Restored last active graph", "graph", name, "nodes", len(doc.Nodes))
	s.broadcast()
	return true, nil
}

// storedNameOf finds the stored graph that the last active mirror was saved
// from, so hot reload keeps following it. It returns "" when none matches.
func (s *Service) storedNameOf(ctx context.Context, doc *domain.Document) string {
	names, err := s.store.List(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Stored graphs could not be listed", "err", err)
		return ""
	}
	for _, name := range names {
		stored, err := s.store.Load(ctx, name)
		if err != nil {
			continue
		}
		if domain.EqualJSON(stored, doc) {
			return name
		}
	}
	return ""
}

// Graphs lists the stored graph names.
func (s *Service) Graphs(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// PutGraph validates and stores doc under name. When name is the active
// graph, the live graph is hot reloaded.
func (s *Service) PutGraph(ctx context.Context, name string, doc *domain.Document) (*domain.DocumentDiff, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, name)
	if err != nil {
		return nil, err
	}
	err = s.persist(ctx, name, doc)
	unlock()
	if err != nil {
		return nil, err
	}

	if name != s.Active() {
		return nil, nil
	}
	return s.HotReload(ctx, doc)
}

// persist writes doc under name and mirrors it as the last active graph.
// Callers hold the graph lock.
func (s *Service) persist(ctx context.Context, name string, doc *domain.Document) error {
	if err := s.store.Save(ctx, name, doc); err != nil {
		return fmt.Errorf("failed to save graph %s: %w", name, err)
	}
	if err := s.store.Save(ctx, ports.LastActiveName, doc); err != nil {
		return fmt.Errorf("failed to save last active graph: %w", err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == ports.LastActiveName {
		return fmt.Errorf("%w: %q", domain.ErrInvalidGraphName, name)
	}
	return nil
}

// Active returns the name of the stored graph currently loaded, or "".
func (s *Service) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Service) setActive(name string) {
	s.mu.Lock()
	s.active = name
	s.mu.Unlock()
}

// lock serializes writers of one graph: always within the process and,
// when the store can do it, across every instance sharing the store.
func (s *Service) lock(ctx context.Context, name string) (func(), error) {
	key := "save:" + name
	local, err := s.locks.Lock(ctx, key, saveLockTTL)
	if err != nil {
		return nil, err
	}

	locker, ok := ports.Capability[ports.Locker](s.store)
	if !ok {
		return func() { _ = local(ctx) }, nil
	}
	shared, err := locker.Lock(ctx, key, saveLockTTL)
	if err != nil {
		_ = local(ctx)
		return nil, fmt.Errorf("failed to acquire graph lock: %w", err)
	}
	return func() {
		if err := shared(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release graph lock (will expire via TTL)", "graph", name, "err", err)
		}
		_ = local(ctx)
	}, nil
}

// Start runs the graph, the periodic audit, the state-update feed and, for
// watchable stores, hot reload of the active graph. Starting twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return err
	}
	s.auditor.StartPeriodic(s.cfg.AuditInterval)

	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.runCancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCancel = cancel

	if s.subscriber != nil {
		updates, err := s.subscriber.Subscribe(runCtx)
		if err != nil {
			s.logger.WarnContext(ctx, "State updates unavailable", "err", err)
		} else {
			s.runWG.Add(1)
			go s.consumeUpdates(updates)
		}
	}
	if w, ok := ports.Capability[ports.Watchable](s.store); ok {
		changes, err := w.Watch(runCtx)
		if err != nil {
			s.logger.WarnContext(ctx, "Graph store watch unavailable", "err", err)
		} else {
			s.runWG.Add(1)
			go s.followChanges(runCtx, changes)
		}
	}
	s.broadcast()
	return nil
}

// consumeUpdates confirms tracked commands from inbound device state.
func (s *Service) consumeUpdates(updates <-chan domain.StateUpdate) {
	defer s.runWG.Done()
	for u := range updates {
		s.Ingest(u)
	}
}

// Ingest matches an inbound device state update against the pending commands
// of its entity. It is how push-style boundaries (webhooks, bridges) report
// state, and reports whether a command was confirmed.
func (s *Service) Ingest(u domain.StateUpdate) bool {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	id, ok := s.tracker.Confirm(u.EntityID, u.Attributes, ts)
	if ok {
		s.logger.Debug("Command confirmed", "command_id", id, "entity_id", u.EntityID)
	}
	return ok
}

// followChanges hot reloads the active graph when its stored document changes.
func (s *Service) followChanges(ctx context.Context, changes <-chan string) {
	defer s.runWG.Done()
	for name := range changes {
		if name != s.Active() {
			continue
		}
		doc, err := s.store.Load(ctx, name)
		if err != nil {
			s.logger.Warn("Changed graph could not be read", "graph", name, "err", err)
			continue
		}
		if live := s.engine.Document(); live != nil && domain.EqualJSON(live, doc) {
			continue
		}
		diff, err := s.HotReload(ctx, doc)
		if err != nil {
			s.logger.Warn("Hot reload rejected, keeping previous graph", "graph", name, "err", err)
			continue
		}
		s.logger.Info("Graph hot reloaded", "graph", name,
			"added", len(diff.Added), "removed", len(diff.Removed),
			"retyped", len(diff.Retyped), "reconfigured", len(diff.Reconfigured))
	}
}

// Stop halts ticking, the periodic audit and the background feeds.
// The loaded graph is kept.
func (s *Service) Stop() {
	s.engine.Stop()
	s.auditor.StopPeriodic()

	s.runMu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.runMu.Unlock()
	if cancel != nil {
		cancel()
		s.runWG.Wait()
	}
	s.broadcast()
}

// Close stops everything, destroys node instances and closes the store.
func (s *Service) Close() error {
	s.Stop()
	s.engine.Shutdown()
	s.streams.Close()
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Tick forces one evaluation pass, even when stopped.
func (s *Service) Tick(ctx context.Context) error {
	return s.engine.Tick(ctx, true)
}

// Status returns a runtime snapshot.
func (s *Service) Status() domain.Status {
	return s.engine.Status()
}

// Document returns the loaded graph as it was applied.
func (s *Service) Document() *domain.Document {
	return s.engine.Document()
}

// CurrentDocument returns the loaded graph with live node properties.
func (s *Service) CurrentDocument() (*domain.Document, error) {
	return s.engine.CurrentDocument()
}

// Report describes how the loaded document became the running graph.
func (s *Service) Report() (domain.GraphReport, error) {
	return s.engine.Report()
}

// Outputs returns the output cache of the last tick.
func (s *Service) Outputs() map[string]node.Outputs {
	return s.engine.Outputs()
}

// Failed returns the nodes whose compute failed in the last tick.
func (s *Service) Failed() []string {
	return s.engine.Failed()
}

// Commands returns the command history for entityID ("" for all), newest first.
func (s *Service) Commands(entityID string, limit int) []domain.TrackedCommand {
	return s.tracker.History(entityID, limit)
}

// Pending returns unconfirmed commands past the grace period.
func (s *Service) Pending(entityID string) []domain.TrackedCommand {
	if entityID == "" {
		return s.tracker.Pending()
	}
	return s.tracker.PendingFor(entityID)
}

// Expectations returns what the runtime expects each tracked entity to be.
func (s *Service) Expectations() map[string]domain.Expectation {
	return s.engine.Expectations()
}

// Audit runs one reconciliation pass now.
func (s *Service) Audit(ctx context.Context) domain.AuditReport {
	return s.auditor.AuditAndLog(ctx)
}

// Devices returns the last audit record per entity.
func (s *Service) Devices() []domain.AuditRecord {
	return s.auditor.TrackedDevices()
}

// Heartbeat marks the interactive frontend as present.
func (s *Service) Heartbeat() {
	s.engine.Heartbeat()
	s.broadcast()
}

// ReleaseFrontend hands device control back to the graph.
func (s *Service) ReleaseFrontend() {
	s.engine.ReleaseFrontend()
	s.broadcast()
}

// MetricsHandler serves the Prometheus collectors of this service.
func (s *Service) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// Subscribe streams status snapshots on every observable change.
func (s *Service) Subscribe() (<-chan domain.Status, func()) {
	return s.streams.Subscribe()
}

func (s *Service) broadcast() {
	s.streams.Broadcast(s.engine.Status())
}
