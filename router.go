package behave

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Submitter accepts commands for one aggregate kind. *Runtime satisfies it;
// tests substitute fakes.
type Submitter interface {
	// Kind returns the aggregate kind this submitter decides for.
	Kind() string

	// Submit routes one command to the aggregate with the given ID.
	Submit(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error)
}

// Submission pairs a command with the aggregate it targets, for batch submits.
type Submission struct {
	AggregateID string
	Command     any
}

// Router dispatches commands to runtimes by command type. Each command type
// is claimed by exactly one submitter, so a process hosting several behaviors
// exposes a single Submit entry point.
type Router struct {
	mu         sync.RWMutex
	routes     map[reflect.Type]Submitter
	kinds      map[string]Submitter
	middleware []Middleware
	logger     Logger
	closed     atomic.Bool
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger used by the router.
func WithRouterLogger(logger Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRouterMiddleware adds middleware around every routed submission.
// Middleware executes in the order it was added, outside the target
// runtime's own middleware.
func WithRouterMiddleware(middleware ...Middleware) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// NewRouter creates a router with no routes.
func NewRouter(opts ...RouterOption) *Router {
	router := &Router{
		routes: make(map[reflect.Type]Submitter),
		kinds:  make(map[string]Submitter),
		logger: nopLogger{},
	}

	for _, opt := range opts {
		opt(router)
	}

	return router
}

// Register claims the given command types for s. Registration is
// all-or-nothing: a kind owned by another submitter or a command type
// already claimed elsewhere fails the whole call. Registering further
// command types for an already registered submitter is allowed.
func (r *Router) Register(s Submitter, commands ...any) error {
	if s == nil {
		return fmt.Errorf("behave: cannot register a nil submitter")
	}
	kind := s.Kind()
	if kind == "" {
		return fmt.Errorf("behave: cannot register a submitter with an empty kind")
	}
	if len(commands) == 0 {
		return fmt.Errorf("behave: no command types given for kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.kinds[kind]; ok && existing != s {
		return NewKindAlreadyRegisteredError(kind)
	}

	keys := make([]reflect.Type, 0, len(commands))
	for _, cmd := range commands {
		key, err := routeKey(cmd)
		if err != nil {
			return err
		}
		if owner, ok := r.routes[key]; ok && owner != s {
			return fmt.Errorf("behave: command type %s already routed to kind %q", key, owner.Kind())
		}
		keys = append(keys, key)
	}

	for _, key := range keys {
		r.routes[key] = s
	}
	r.kinds[kind] = s

	r.logger.Debug("registered command routes",
		"kind", kind,
		"commands", len(keys),
	)

	return nil
}

// MustRegister is like Register but panics on error. Intended for wiring at
// startup where a routing conflict is a programming mistake.
func (r *Router) MustRegister(s Submitter, commands ...any) {
	if err := r.Register(s, commands...); err != nil {
		panic(err)
	}
}

// Use adds middleware around every routed submission.
func (r *Router) Use(middleware ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// Submit routes the command to the submitter registered for its type.
func (r *Router) Submit(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
	if r.closed.Load() {
		return SubmitResult{}, ErrRuntimeClosed
	}
	if cmd == nil {
		return SubmitResult{}, ErrNilCommand
	}

	r.mu.RLock()
	middleware := make([]Middleware, len(r.middleware))
	copy(middleware, r.middleware)
	r.mu.RUnlock()

	return ChainMiddleware(r.route, middleware...)(ctx, aggregateID, cmd)
}

// route is the innermost SubmitFunc: it resolves the target and delegates.
func (r *Router) route(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
	key, err := routeKey(cmd)
	if err != nil {
		return SubmitResult{}, err
	}

	r.mu.RLock()
	target := r.routes[key]
	r.mu.RUnlock()

	if target == nil {
		return SubmitResult{}, NewNoRouteError(CommandName(cmd))
	}
	return target.Submit(ctx, aggregateID, cmd)
}

// SubmitAsync routes the command in a goroutine and returns a buffered
// channel that receives the single result and is then closed.
func (r *Router) SubmitAsync(ctx context.Context, aggregateID string, cmd any) <-chan AsyncSubmitResult {
	out := make(chan AsyncSubmitResult, 1)

	go func() {
		defer close(out)
		result, err := r.Submit(ctx, aggregateID, cmd)
		out <- AsyncSubmitResult{Result: result, Err: err}
	}()

	return out
}

// SubmitAll routes multiple submissions sequentially in order. Per-command
// failures are reported in the returned slice; a cancelled context stops the
// batch and returns the results decided so far.
func (r *Router) SubmitAll(ctx context.Context, submissions ...Submission) ([]AsyncSubmitResult, error) {
	results := make([]AsyncSubmitResult, len(submissions))

	for i, sub := range submissions {
		result, err := r.Submit(ctx, sub.AggregateID, sub.Command)
		results[i] = AsyncSubmitResult{Result: result, Err: err}

		if ctx.Err() != nil {
			return results[:i+1], ctx.Err()
		}
	}

	return results, nil
}

// HasRoute returns true if a submitter is registered for the command's type.
func (r *Router) HasRoute(cmd any) bool {
	_, ok := r.KindFor(cmd)
	return ok
}

// KindFor returns the aggregate kind the command's type routes to.
func (r *Router) KindFor(cmd any) (string, bool) {
	key, err := routeKey(cmd)
	if err != nil {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.routes[key]
	if !ok {
		return "", false
	}
	return target.Kind(), true
}

// RouteCount returns the number of routed command types.
func (r *Router) RouteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Kinds returns the registered aggregate kinds in sorted order.
func (r *Router) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Close stops the router. Registered submitters are not closed, they may be
// shared with other routers or used directly.
func (r *Router) Close() error {
	r.closed.Store(true)
	return nil
}

// IsClosed returns true if the router has been closed.
func (r *Router) IsClosed() bool {
	return r.closed.Load()
}

// routeKey normalizes a command to its route key. Value and pointer commands
// of the same type route to the same submitter.
func routeKey(cmd any) (reflect.Type, error) {
	if cmd == nil {
		return nil, ErrNilCommand
	}
	t := reflect.TypeOf(cmd)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t, nil
}
