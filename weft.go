package weft

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	fileadapter "github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/session"
)

// Engine is the high-level entry point for the weft library. It owns
// the compiled flow registry and mints sessions that execute against
// it.
type Engine struct {
	registry  *registry.Registry
	loader    ports.FlowLoader
	store     ports.StateStore
	locker    ports.DistributedLocker
	sessions  *session.Manager
	handlers  map[string]ports.ActionHandler
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	metrics   *runtime.Metrics
	debug     bool
	maxCycles int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithLoader injects a custom FlowLoader, bypassing the default
// directory loader.
func WithLoader(l ports.FlowLoader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithStore enables session persistence.
func WithStore(store ports.StateStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithLocker enables distributed session locking across replicas.
// Only meaningful together with WithStore.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics registers engine metrics with the given Prometheus
// registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = runtime.NewMetrics(reg) }
}

// WithDebug enables development checks, notably detection of
// conflicting context writes from parallel flows.
func WithDebug(debug bool) Option {
	return func(e *Engine) { e.debug = debug }
}

// WithMaxCycles overrides the internal cycle budget per external event.
func WithMaxCycles(n int) Option {
	return func(e *Engine) { e.maxCycles = n }
}

// WithActionHandler registers a host-side executor for an action name,
// used by ProcessAll to complete actions in-process.
func WithActionHandler(action string, h ports.ActionHandler) Option {
	return func(e *Engine) { e.handlers[action] = h }
}

// New initializes an Engine from a directory of YAML flow files. If
// WithLoader is provided, flowDir may be empty.
func New(flowDir string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		registry: registry.New(),
		handlers: map[string]ports.ActionHandler{},
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.loader == nil {
		if flowDir == "" {
			return nil, fmt.Errorf("flowDir is required when no custom loader is provided")
		}
		eng.loader = fileadapter.NewLoader(flowDir)
	}
	if eng.store != nil {
		sessionOpts := []session.Option{session.WithLogger(eng.logger)}
		if eng.locker != nil {
			sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
		}
		eng.sessions = session.NewManager(eng.store, sessionOpts...)
	}

	if err := eng.Reload(); err != nil {
		return nil, err
	}
	return eng, nil
}

// NewFromDefinitions initializes an Engine from already compiled flow
// definitions, for hosts that build programs programmatically.
func NewFromDefinitions(defs []*domain.FlowDefinition, opts ...Option) (*Engine, error) {
	eng := &Engine{
		registry: registry.New(),
		handlers: map[string]ports.ActionHandler{},
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.store != nil {
		sessionOpts := []session.Option{session.WithLogger(eng.logger)}
		if eng.locker != nil {
			sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
		}
		eng.sessions = session.NewManager(eng.store, sessionOpts...)
	}
	if err := eng.registry.AddFlows(defs...); err != nil {
		return nil, err
	}
	return eng, nil
}

// Reload recompiles every flow source from the loader and replaces the
// registry contents. Sessions pick up the new definitions on their next
// flow start.
func (e *Engine) Reload() error {
	if e.loader == nil {
		return fmt.Errorf("engine has no flow loader")
	}
	sources, err := e.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load flows: %w", err)
	}
	defs, err := compiler.New().CompileSources(sources)
	if err != nil {
		return err
	}
	return e.registry.AddFlows(defs...)
}

// Registry exposes the flow registry for runtime flow management.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Sessions returns the session manager, or nil when the engine was
// built without a store.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Session is one conversation: a set of flow instances over a shared
// context, processing events one at a time.
type Session struct {
	id     string
	engine *Engine
	rt     *runtime.Runtime

	mu sync.Mutex
}

// NewSession starts a fresh session, bootstrapping every activated
// flow. It returns the session along with the externally visible events
// the bootstrap produced (e.g. greeting actions). An empty id gets a
// generated UUID.
func (e *Engine) NewSession(ctx context.Context, id string) (*Session, []domain.Event, error) {
	if id == "" {
		id = uuid.NewString()
	}
	rt := runtime.New(e.registry, runtime.Options{
		Logger:    e.logger.With("session_id", id),
		Hooks:     e.hooks,
		Metrics:   e.metrics,
		Debug:     e.debug,
		MaxCycles: e.maxCycles,
	})
	events, err := rt.Bootstrap(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &Session{id: id, engine: e, rt: rt}, events, nil
}

// LoadSession restores a session from the configured store.
func (e *Engine) LoadSession(ctx context.Context, id string) (*Session, error) {
	if e.sessions == nil {
		return nil, fmt.Errorf("engine has no state store")
	}
	snap, err := e.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	rt := runtime.New(e.registry, runtime.Options{
		Logger:    e.logger.With("session_id", id),
		Hooks:     e.hooks,
		Metrics:   e.metrics,
		Debug:     e.debug,
		MaxCycles: e.maxCycles,
	})
	if err := rt.Restore(snap); err != nil {
		return nil, err
	}
	return &Session{id: id, engine: e, rt: rt}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Process admits one external event and returns the externally visible
// events it produced, in order. Calls are serialized per session.
func (s *Session) Process(ctx context.Context, ev domain.Event) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt.ProcessEvent(ctx, ev)
}

// ProcessAll admits an event and dispatches resulting action Start
// events to the engine's registered handlers, feeding synchronous
// Finished completions back in until no handler produces more work.
// Events for actions without a handler are returned to the caller.
func (s *Session) ProcessAll(ctx context.Context, ev domain.Event) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emitted, err := s.rt.ProcessEvent(ctx, ev)
	if err != nil {
		return emitted, err
	}
	return s.settle(ctx, emitted)
}

// Settle dispatches already-emitted action Start events to the
// engine's registered handlers, feeding synchronous completions back
// in until no handler produces more work. Use it on bootstrap events;
// ProcessAll applies it automatically.
func (s *Session) Settle(ctx context.Context, events []domain.Event) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settle(ctx, events)
}

func (s *Session) settle(ctx context.Context, emitted []domain.Event) ([]domain.Event, error) {
	var out []domain.Event
	queue := emitted
	for len(queue) > 0 {
		var completions []domain.Event
		for _, e := range queue {
			out = append(out, e)

			name, isStart := domain.ActionNameFromStart(e.Type)
			if !isStart {
				// Stop events are forwarded to the handler for
				// cancellation; no completion comes back.
				if stopName, isStop := domain.ActionNameFromStop(e.Type); isStop {
					if h := s.engine.handlers[stopName]; h != nil {
						if _, err := h.Handle(ctx, e); err != nil {
							return out, fmt.Errorf("action %q handler: %w", stopName, err)
						}
					}
				}
				continue
			}
			handler := s.engine.handlers[name]
			if handler == nil {
				continue
			}
			completion, err := handler.Handle(ctx, e)
			if err != nil {
				return out, fmt.Errorf("action %q handler: %w", name, err)
			}
			if completion != nil {
				completions = append(completions, *completion)
			}
		}

		queue = nil
		for _, comp := range completions {
			more, err := s.rt.ProcessEvent(ctx, comp)
			if err != nil {
				return out, err
			}
			queue = append(queue, more...)
		}
	}
	return out, nil
}

// Context returns a snapshot of the conversation context.
func (s *Session) Context() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt.Context().Snapshot()
}

// Activate marks a flow for auto-restart and starts it if no live
// instance exists, returning any events the start produced.
func (s *Session) Activate(ctx context.Context, flowID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt.Activate(ctx, flowID)
}

// Deactivate clears a flow's auto-restart mark.
func (s *Session) Deactivate(flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rt.Deactivate(flowID)
}

// Instances returns the session's live flow instances in creation
// order.
func (s *Session) Instances() []*domain.FlowInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt.Instances()
}

// Snapshot captures the session state for persistence.
func (s *Session) Snapshot() *domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt.Snapshot(s.id)
}

// Save persists the session snapshot to the engine's store.
func (s *Session) Save(ctx context.Context) error {
	if s.engine.sessions == nil {
		return fmt.Errorf("engine has no state store")
	}
	return s.engine.sessions.Save(ctx, s.id, s.Snapshot())
}
