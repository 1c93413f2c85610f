// Package guard gates role-specific views. Each mounted guard resolves the
// current user, enforces onboarding and role requirements, verifies the
// freelancer profile where required, and either renders the wrapped view
// or redirects.
//
// The machine is loading -> ready | redirect. Re-mounting restarts from
// loading; a superseded run discards its result instead of overwriting the
// newer one. Every ambiguous failure redirects rather than rendering a
// protected view: the guard fails closed.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/craftwork/sessioncore/pkg/api"
	"github.com/craftwork/sessioncore/pkg/bootstrap"
	"github.com/craftwork/sessioncore/pkg/metrics"
	"github.com/craftwork/sessioncore/pkg/nav"
	"github.com/craftwork/sessioncore/pkg/resolve"
	"github.com/craftwork/sessioncore/pkg/session"
)

// Status is the guard's externally visible state.
type Status int

const (
	StatusLoading  Status = iota // resolution in progress
	StatusReady                  // render the wrapped view
	StatusRedirect               // navigation issued, render nothing
)

// String returns the status name for logs and metrics labels.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusRedirect:
		return "redirect"
	default:
		return "invalid"
	}
}

// Outcome is the guard's decision for the current mount. Transient, never
// persisted.
type Outcome struct {
	Status   Status
	Redirect string // target route when Status == StatusRedirect
}

// View renders the protected content. The return value is opaque to the
// guard; hosts decide what a rendered view is.
type View func() any

// Placeholder is rendered while the guard is still deciding.
var Placeholder any = "Checking permissions…"

// Guard drives access control for one protected view.
type Guard struct {
	state     *session.State
	resolver  *resolve.Resolver
	client    *api.Client
	navigator nav.Navigator
	role      string
	view      View
	log       *slog.Logger
	metrics   *metrics.Metrics
	onChange  func(Outcome)

	mu      sync.Mutex
	runID   uint64
	cancel  context.CancelFunc
	outcome Outcome
}

// Option configures a Guard.
type Option func(*Guard)

// WithRole requires the resolved user to hold the given role. The empty
// default admits any authenticated, onboarded user.
func WithRole(role string) Option {
	return func(g *Guard) {
		g.role = session.NormalizeRole(role)
	}
}

// WithView sets the protected view rendered when the guard is ready.
func WithView(view View) Option {
	return func(g *Guard) {
		g.view = view
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(g *Guard) {
		if log != nil {
			g.log = log
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithOnChange registers a callback fired after each applied outcome.
func WithOnChange(fn func(Outcome)) Option {
	return func(g *Guard) {
		g.onChange = fn
	}
}

// New creates a Guard.
func New(state *session.State, resolver *resolve.Resolver, client *api.Client, navigator nav.Navigator, opts ...Option) *Guard {
	g := &Guard{
		state:     state,
		resolver:  resolver,
		client:    client,
		navigator: navigator,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mount starts (or restarts) the guard. Any run still in flight is
// cancelled and its eventual result discarded.
func (g *Guard) Mount() {
	g.mu.Lock()
	g.runID++
	id := g.runID
	if g.cancel != nil {
		g.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.outcome = Outcome{Status: StatusLoading}
	g.mu.Unlock()

	go g.run(ctx, id)
}

// Unmount cancels the current run, if any.
func (g *Guard) Unmount() {
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.mu.Unlock()
}

// Outcome returns the decision of the latest mount.
func (g *Guard) Outcome() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcome
}

// Render returns the placeholder while loading, the wrapped view when
// ready, and nil during a redirect (the navigation sink owns the
// transition).
func (g *Guard) Render() any {
	switch g.Outcome().Status {
	case StatusLoading:
		return Placeholder
	case StatusReady:
		if g.view != nil {
			return g.view()
		}
		return nil
	default:
		return nil
	}
}

// Check runs the guard decision synchronously, commits its side effects
// (navigation, metrics), and returns the outcome. Hosts that drive the
// guard themselves use this instead of Mount. A cancelled check returns
// the loading outcome without side effects.
func (g *Guard) Check(ctx context.Context) Outcome {
	o, err := g.decide(ctx)
	if err != nil {
		return Outcome{Status: StatusLoading}
	}
	g.commit(o)
	return o
}

func (g *Guard) run(ctx context.Context, id uint64) {
	o, err := g.decide(ctx)
	if err != nil {
		// Superseded by a newer mount. Discard silently.
		return
	}
	g.apply(id, o)
}

// decide computes the outcome without side effects. The only error it
// returns wraps resolve.ErrCancelled.
func (g *Guard) decide(ctx context.Context) (Outcome, error) {
	u, err := g.resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, resolve.ErrCancelled) {
			return Outcome{}, err
		}
		// No session, or an unexpected resolution failure. Fail closed.
		// On ErrNoSession the resolver has already navigated to login;
		// committing this outcome navigates again, which is harmless since
		// both are replace navigations to the same route.
		if !errors.Is(err, resolve.ErrNoSession) {
			g.log.Warn("resolution failed, redirecting to login", "error", err)
		}
		return redirect(nav.RouteLogin), nil
	}

	// Unfinished onboarding pins the destination regardless of role.
	if !u.OnboardingComplete {
		return redirect(nav.RouteOnboarding), nil
	}

	if g.role != "" && u.Role != g.role {
		return redirect(nav.HomeRoute(u.Role)), nil
	}

	if g.role == session.RoleFreelancer {
		status := bootstrap.Verify(ctx, g.client, g.state)
		if cerr := ctx.Err(); cerr != nil {
			return Outcome{}, resolve.ErrCancelled
		}
		switch status {
		case session.ProfileReady:
			// Fall through to ready.
		case session.ProfileUnauthorized, session.ProfileUnknown:
			return redirect(nav.RouteLogin), nil
		default:
			// Missing profile or a verification failure both route to
			// the setup flow, not login.
			return redirect(nav.RouteFreelancerSetup), nil
		}
	}

	return Outcome{Status: StatusReady}, nil
}

// apply records the outcome and commits its side effects, unless a newer
// mount has superseded this run.
func (g *Guard) apply(id uint64, o Outcome) {
	g.mu.Lock()
	if id != g.runID {
		g.mu.Unlock()
		return
	}
	g.outcome = o
	g.mu.Unlock()

	g.commit(o)
}

func (g *Guard) commit(o Outcome) {
	role := g.role
	if role == "" {
		role = "any"
	}
	g.metrics.ObserveGuard(role, o.Status.String())

	if o.Status == StatusRedirect {
		g.navigator.Navigate(o.Redirect, nav.WithReplace())
	}
	if g.onChange != nil {
		g.onChange(o)
	}
}

func redirect(route string) Outcome {
	return Outcome{Status: StatusRedirect, Redirect: route}
}
