// Package resolve answers "who is the current user". Resolution follows a
// strict priority order, each step short-circuiting: the in-memory session
// user, the persisted local cache, the network with the current token, and
// finally a token refresh followed by one retry. When every step is
// exhausted the user is sent to login and the resolution ends with
// ErrNoSession.
//
// The cache step deliberately trusts a stored user without revalidating
// against the server. That keeps reloads instant and offline-friendly at
// the cost of staleness until the next full resolution.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/craftwork/sessioncore/pkg/api"
	"github.com/craftwork/sessioncore/pkg/cache"
	"github.com/craftwork/sessioncore/pkg/metrics"
	"github.com/craftwork/sessioncore/pkg/nav"
	"github.com/craftwork/sessioncore/pkg/payload"
	"github.com/craftwork/sessioncore/pkg/session"
)

// ErrCancelled signals that a newer resolution superseded this one. It is
// control flow, not failure: callers swallow it without user-visible
// effect.
var ErrCancelled = errors.New("resolve: cancelled")

// ErrNoSession is the terminal "no recoverable session" outcome. The
// resolver has already redirected to login when it returns this.
var ErrNoSession = errors.New("resolve: no recoverable session")

// errUnrecognizedUser reports a 2xx /users/me response without a user
// payload in any known shape.
var errUnrecognizedUser = errors.New("resolve: unrecognizable user payload")

// Resolver resolves the current user. Safe for concurrent use; overlapping
// resolutions are expected and cooperate via context cancellation.
type Resolver struct {
	state     *session.State
	client    *api.Client
	refresher api.Refresher
	store     cache.Store
	navigator nav.Navigator
	log       *slog.Logger
	metrics   *metrics.Metrics
	cacheTTL  time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache sets the persisted local cache consulted at step two and
// written on every adoption. Without it the resolver is network-only.
func WithCache(store cache.Store) Option {
	return func(r *Resolver) {
		r.store = store
	}
}

// WithCacheTTL bounds how long a cached user is trusted. Zero (the
// default) trusts it indefinitely.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cacheTTL = ttl
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// New creates a Resolver.
func New(state *session.State, client *api.Client, refresher api.Refresher, navigator nav.Navigator, opts ...Option) *Resolver {
	r := &Resolver{
		state:     state,
		client:    client,
		refresher: refresher,
		navigator: navigator,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the current user. The context doubles as the
// cancellation token: the owner of a resolution cancels it when a newer
// one supersedes it, and every step re-checks before proceeding so a stale
// resolution never clobbers newer state.
func (r *Resolver) Resolve(ctx context.Context) (*session.User, error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveResolve(time.Since(start))
	}()

	// Step 1: already resolved in memory.
	if u := r.state.User(); u != nil {
		return u, nil
	}

	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	// Step 2: persisted cache, trusted without revalidation.
	if r.store != nil {
		cached, err := cache.LoadUser(r.store)
		if err != nil {
			r.log.Warn("cache read failed, continuing to network", "error", err)
		}
		if cached != nil {
			if err := cancelled(ctx); err != nil {
				return nil, err
			}
			r.state.SetUser(cached)
			r.log.Debug("resolved user from cache", "user_id", cached.ID, "role", cached.Role)
			return r.state.User(), nil
		}
	}

	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	// Step 3: network, with the token we already hold.
	if r.state.Token() != "" {
		u, err := r.fetchMe(ctx)
		if err == nil {
			return r.adopt(ctx, u)
		}
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		r.log.Debug("current-user fetch failed, trying refresh", "error", err)
	}

	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	// Step 4: refresh the token, then retry the fetch once.
	result, err := r.refresher.Refresh(ctx)
	if err != nil || result == nil || result.AccessToken == "" {
		if err != nil {
			r.log.Warn("refresh failed during resolution", "error", err)
		}
		return nil, r.abandon()
	}

	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	r.state.SetToken(result.AccessToken)

	u, err := r.fetchMe(ctx)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		r.log.Debug("current-user fetch failed after refresh", "error", err)
		return nil, r.abandon()
	}
	return r.adopt(ctx, u)
}

// fetchMe calls GET /users/me with refresh disabled; the resolver owns the
// refresh decision itself.
func (r *Resolver) fetchMe(ctx context.Context) (*session.User, error) {
	body, err := r.client.DoJSON(ctx, "/users/me", api.Options{Method: http.MethodGet}, api.WithoutRefresh())
	if err != nil {
		if cerr := cancelled(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	u, ok := payload.User(body)
	if !ok {
		return nil, errUnrecognizedUser
	}
	return u, nil
}

// adopt writes the resolved user into state and the cache, unless this
// resolution has been superseded.
func (r *Resolver) adopt(ctx context.Context, u *session.User) (*session.User, error) {
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	r.state.SetUser(u)
	adopted := r.state.User()
	if r.store != nil {
		if err := cache.SaveUser(r.store, adopted, r.cacheTTL); err != nil {
			r.log.Warn("failed to persist resolved user", "error", err)
		}
	}
	return adopted, nil
}

// abandon is the terminal no-session outcome: redirect to login and report
// ErrNoSession. Session state is left untouched. Callers that also react
// to ErrNoSession with a login redirect issue a duplicate replace
// navigation to the same route, which is idempotent.
func (r *Resolver) abandon() error {
	r.navigator.Navigate(nav.RouteLogin, nav.WithReplace())
	return ErrNoSession
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}
