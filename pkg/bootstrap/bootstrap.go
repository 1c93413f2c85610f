package bootstrap

import (
	"context"
	"log/slog"
	"sync"

	"github.com/craftwork/sessioncore/pkg/api"
	"github.com/craftwork/sessioncore/pkg/session"
)

// Bootstrapper watches the session state and fetches the freelancer
// profile whenever the current user is a freelancer whose profile status
// is unknown. It is independent of any guard instance: a freelancer who
// logs in on an unguarded page still gets their profile hydrated.
//
// A fetch already in flight is never duplicated.
type Bootstrapper struct {
	state  *session.State
	client *api.Client
	log    *slog.Logger

	mu          sync.Mutex
	inFlight    bool
	cancel      context.CancelFunc
	unsubscribe func()
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(b *Bootstrapper) {
		if log != nil {
			b.log = log
		}
	}
}

// New creates a Bootstrapper. Call Start to begin watching.
func New(state *session.State, client *api.Client, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		state:  state,
		client: client,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start subscribes to session state changes and immediately evaluates the
// current snapshot. Calling Start twice is a no-op until Stop.
func (b *Bootstrapper) Start() {
	b.mu.Lock()
	if b.unsubscribe != nil {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.unsubscribe = b.state.Subscribe(func(snap session.Snapshot) {
		b.maybeFetch(ctx, snap)
	})
	b.mu.Unlock()

	b.maybeFetch(ctx, b.state.Snapshot())
}

// Stop cancels any in-flight fetch and detaches from the state.
func (b *Bootstrapper) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// maybeFetch starts a profile fetch if the snapshot calls for one and none
// is already running.
func (b *Bootstrapper) maybeFetch(ctx context.Context, snap session.Snapshot) {
	if snap.User == nil || snap.User.Role != session.RoleFreelancer {
		return
	}
	if snap.ProfileStatus != session.ProfileUnknown && snap.ProfileStatus != session.ProfileLoading {
		return
	}

	b.mu.Lock()
	if b.inFlight {
		b.mu.Unlock()
		return
	}
	b.inFlight = true
	b.mu.Unlock()

	go b.fetch(ctx)
}

func (b *Bootstrapper) fetch(ctx context.Context) {
	defer func() {
		b.mu.Lock()
		b.inFlight = false
		b.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return
	}

	b.state.SetProfileStatus(session.ProfileLoading)
	status := Verify(ctx, b.client, b.state)
	b.log.Debug("profile bootstrap finished", "status", status.String())
}
