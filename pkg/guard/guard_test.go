package guard

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/craftwork/sessioncore/pkg/api"
	"github.com/craftwork/sessioncore/pkg/nav"
	"github.com/craftwork/sessioncore/pkg/resolve"
	"github.com/craftwork/sessioncore/pkg/session"
	"github.com/craftwork/sessioncore/pkg/token"
	"github.com/craftwork/sessioncore/pkg/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	calls   int
	handler func(call int, req *transport.Request) (*transport.Response, error)
}

func (f *fakeTransport) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	return f.handler(call, req)
}

type fakeRefresher struct {
	result *token.Result
	err    error
}

func (f *fakeRefresher) Refresh(ctx context.Context) (*token.Result, error) {
	return f.result, f.err
}

func respond(status int, body string) (*transport.Response, error) {
	return &transport.Response{Status: status, Body: []byte(body)}, nil
}

type harness struct {
	state    *session.State
	recorder *nav.Recorder
	guard    *Guard
}

func newHarness(handler func(int, *transport.Request) (*transport.Response, error), opts ...Option) *harness {
	state := session.NewState()
	recorder := &nav.Recorder{}
	tr := &fakeTransport{handler: handler}
	refresher := &fakeRefresher{}
	client := api.NewClient(state, tr, refresher, recorder)
	resolver := resolve.New(state, client, refresher, recorder)
	return &harness{
		state:    state,
		recorder: recorder,
		guard:    New(state, resolver, client, recorder, opts...),
	}
}

func noNetwork(t *testing.T) func(int, *transport.Request) (*transport.Response, error) {
	return func(_ int, req *transport.Request) (*transport.Response, error) {
		t.Errorf("unexpected network call to %s", req.Path)
		return respond(500, `{}`)
	}
}

func checkRedirect(t *testing.T, h *harness, want string) {
	t.Helper()
	o := h.guard.Check(context.Background())
	if o.Status != StatusRedirect || o.Redirect != want {
		t.Fatalf("outcome %+v, want redirect to %s", o, want)
	}
	last := h.recorder.Last()
	if last.Route != want || !last.Options.Replace {
		t.Errorf("navigation %+v, want replace to %s", last, want)
	}
}

func TestGuardReady(t *testing.T) {
	h := newHarness(noNetwork(t), WithRole(session.RoleCustomer), WithView(func() any { return "dashboard" }))
	h.state.SetUser(&session.User{ID: 1, Role: session.RoleCustomer, OnboardingComplete: true})

	o := h.guard.Check(context.Background())
	if o.Status != StatusReady {
		t.Fatalf("outcome %+v, want ready", o)
	}
	if h.recorder.Last().Route != "" {
		t.Errorf("ready guard navigated to %q", h.recorder.Last().Route)
	}
}

func TestGuardNoSession(t *testing.T) {
	h := newHarness(noNetwork(t), WithRole(session.RoleCustomer))
	checkRedirect(t, h, nav.RouteLogin)

	// Both the resolver and the guard send the user to login; the
	// duplicate is idempotent because every entry replaces history.
	for _, entry := range h.recorder.All() {
		if entry.Route != nav.RouteLogin || !entry.Options.Replace {
			t.Errorf("navigation %+v, want replace to login", entry)
		}
	}
}

// TestGuardOnboardingFirst verifies unfinished onboarding wins over the
// role mismatch redirect.
func TestGuardOnboardingFirst(t *testing.T) {
	h := newHarness(noNetwork(t), WithRole(session.RoleFreelancer))
	h.state.SetUser(&session.User{ID: 1, Role: session.RoleCustomer, OnboardingComplete: false})
	checkRedirect(t, h, nav.RouteOnboarding)
}

// TestGuardRoleMismatch verifies the wrong-role redirect targets the
// user's own dashboard, never login.
func TestGuardRoleMismatch(t *testing.T) {
	t.Run("CustomerOnFreelancerGuard", func(t *testing.T) {
		h := newHarness(noNetwork(t), WithRole(session.RoleFreelancer))
		h.state.SetUser(&session.User{ID: 1, Role: session.RoleCustomer, OnboardingComplete: true})
		checkRedirect(t, h, nav.RouteCustomerHome)
	})

	t.Run("FreelancerOnCustomerGuard", func(t *testing.T) {
		h := newHarness(noNetwork(t), WithRole(session.RoleCustomer))
		h.state.SetUser(&session.User{ID: 2, Role: session.RoleFreelancer, OnboardingComplete: true})
		checkRedirect(t, h, nav.RouteFreelancerHome)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		h := newHarness(noNetwork(t), WithRole(session.RoleCustomer))
		h.state.SetUser(&session.User{ID: 3, Role: "admin", OnboardingComplete: true})
		checkRedirect(t, h, nav.RouteLogin)
	})
}

// TestGuardFreelancerProfile covers the extra verification step a
// freelancer guard performs, and where each failure mode routes.
func TestGuardFreelancerProfile(t *testing.T) {
	freelancer := &session.User{ID: 5, Role: session.RoleFreelancer, OnboardingComplete: true}

	profileHandler := func(status int, body string) func(int, *transport.Request) (*transport.Response, error) {
		return func(_ int, req *transport.Request) (*transport.Response, error) {
			if req.Path != "/users/me/freelancer/" {
				return respond(500, `{}`)
			}
			return respond(status, body)
		}
	}

	t.Run("Ready", func(t *testing.T) {
		h := newHarness(profileHandler(200, `{"freelancer": {"id": 50, "is_accepting_orders": true}}`), WithRole(session.RoleFreelancer))
		h.state.SetToken("T1")
		h.state.SetUser(freelancer)

		o := h.guard.Check(context.Background())
		if o.Status != StatusReady {
			t.Fatalf("outcome %+v, want ready", o)
		}
		snap := h.state.Snapshot()
		if snap.Profile == nil || snap.Profile.ID != 50 {
			t.Errorf("profile not adopted: %+v", snap.Profile)
		}
		if snap.ProfileStatus != session.ProfileReady {
			t.Errorf("profile status %s, want ready", snap.ProfileStatus)
		}
	})

	t.Run("MissingGoesToSetup", func(t *testing.T) {
		h := newHarness(profileHandler(404, `{"error": "no profile"}`), WithRole(session.RoleFreelancer))
		h.state.SetToken("T1")
		h.state.SetUser(freelancer)
		checkRedirect(t, h, nav.RouteFreelancerSetup)
		if got := h.state.Snapshot().ProfileStatus; got != session.ProfileMissing {
			t.Errorf("profile status %s, want missing", got)
		}
	})

	t.Run("ForbiddenGoesToLogin", func(t *testing.T) {
		h := newHarness(profileHandler(403, `{}`), WithRole(session.RoleFreelancer))
		h.state.SetToken("T1")
		h.state.SetUser(freelancer)
		checkRedirect(t, h, nav.RouteLogin)
	})

	t.Run("UnauthorizedGoesToLogin", func(t *testing.T) {
		h := newHarness(profileHandler(401, `{}`), WithRole(session.RoleFreelancer))
		h.state.SetToken("T1")
		h.state.SetUser(freelancer)
		checkRedirect(t, h, nav.RouteLogin)
	})

	t.Run("ServerErrorFailsClosed", func(t *testing.T) {
		h := newHarness(profileHandler(500, `{}`), WithRole(session.RoleFreelancer))
		h.state.SetToken("T1")
		h.state.SetUser(freelancer)
		checkRedirect(t, h, nav.RouteFreelancerSetup)
	})

	t.Run("TransportErrorFailsClosed", func(t *testing.T) {
		h := newHarness(func(int, *transport.Request) (*transport.Response, error) {
			return nil, errors.New("connection refused")
		}, WithRole(session.RoleFreelancer))
		h.state.SetToken("T1")
		h.state.SetUser(freelancer)
		checkRedirect(t, h, nav.RouteFreelancerSetup)
	})
}

// TestGuardAnyRole verifies the empty role admits any onboarded user
// without profile verification.
func TestGuardAnyRole(t *testing.T) {
	h := newHarness(noNetwork(t))
	h.state.SetUser(&session.User{ID: 1, Role: session.RoleFreelancer, OnboardingComplete: true})

	if o := h.guard.Check(context.Background()); o.Status != StatusReady {
		t.Fatalf("outcome %+v, want ready", o)
	}
}

// TestGuardStaleRunDiscarded verifies a re-mount supersedes the previous
// run: the slow first resolution never applies its outcome.
func TestGuardStaleRunDiscarded(t *testing.T) {
	release := make(chan struct{})
	outcomes := make(chan Outcome, 4)

	handler := func(call int, req *transport.Request) (*transport.Response, error) {
		if call == 0 {
			<-release
		}
		return respond(200, `{"user": {"id": 1, "role": "customer", "onboarding_complete": true}}`)
	}

	h := newHarness(handler, WithRole(session.RoleCustomer), WithOnChange(func(o Outcome) {
		outcomes <- o
	}))
	h.state.SetToken("T1")

	h.guard.Mount()
	// Let the first run reach the blocked fetch before superseding it.
	time.Sleep(20 * time.Millisecond)
	h.guard.Mount()

	select {
	case o := <-outcomes:
		if o.Status != StatusReady {
			t.Fatalf("second run outcome %+v, want ready", o)
		}
	case <-time.After(time.Second):
		t.Fatal("second run never applied")
	}

	close(release)
	select {
	case o := <-outcomes:
		t.Fatalf("stale run applied outcome %+v", o)
	case <-time.After(50 * time.Millisecond):
	}

	if got := h.guard.Outcome(); got.Status != StatusReady {
		t.Errorf("final outcome %+v, want ready", got)
	}
	h.guard.Unmount()
}

func TestGuardRender(t *testing.T) {
	t.Run("LoadingShowsPlaceholder", func(t *testing.T) {
		h := newHarness(noNetwork(t), WithView(func() any { return "view" }))
		if got := h.guard.Render(); got != Placeholder {
			t.Errorf("Render() = %v, want placeholder", got)
		}
	})

	t.Run("ReadyShowsView", func(t *testing.T) {
		done := make(chan Outcome, 1)
		h := newHarness(noNetwork(t),
			WithRole(session.RoleCustomer),
			WithView(func() any { return "view" }),
			WithOnChange(func(o Outcome) { done <- o }))
		h.state.SetUser(&session.User{ID: 1, Role: session.RoleCustomer, OnboardingComplete: true})

		h.guard.Mount()
		select {
		case o := <-done:
			if o.Status != StatusReady {
				t.Fatalf("outcome %+v, want ready", o)
			}
		case <-time.After(time.Second):
			t.Fatal("guard never decided")
		}
		if got := h.guard.Render(); got != "view" {
			t.Errorf("Render() = %v, want the wrapped view", got)
		}
	})

	t.Run("RedirectShowsNothing", func(t *testing.T) {
		done := make(chan Outcome, 1)
		h := newHarness(noNetwork(t),
			WithRole(session.RoleCustomer),
			WithView(func() any { return "view" }),
			WithOnChange(func(o Outcome) { done <- o }))

		h.guard.Mount()
		select {
		case o := <-done:
			if o.Status != StatusRedirect {
				t.Fatalf("outcome %+v, want redirect", o)
			}
		case <-time.After(time.Second):
			t.Fatal("guard never decided")
		}
		if got := h.guard.Render(); got != nil {
			t.Errorf("Render() = %v, want nil during redirect", got)
		}
	})
}

// TestGuardCheckCancelled verifies a cancelled synchronous check reports
// loading and commits nothing.
func TestGuardCheckCancelled(t *testing.T) {
	h := newHarness(noNetwork(t), WithRole(session.RoleCustomer))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := h.guard.Check(ctx)
	if o.Status != StatusLoading {
		t.Errorf("outcome %+v, want loading", o)
	}
	if h.recorder.Last().Route != "" {
		t.Errorf("cancelled check navigated to %q", h.recorder.Last().Route)
	}
}

// TestGuardExpiredTokenRecovers verifies the guard still admits a user
// whose token needs a refresh during resolution.
func TestGuardExpiredTokenRecovers(t *testing.T) {
	state := session.NewState()
	state.SetToken("stale")
	recorder := &nav.Recorder{}
	tr := &fakeTransport{handler: func(call int, req *transport.Request) (*transport.Response, error) {
		if call == 0 {
			return respond(http.StatusUnauthorized, `{}`)
		}
		return respond(http.StatusOK, `{"user": {"id": 2, "role": "customer", "onboarding_complete": true}}`)
	}}
	refresher := &fakeRefresher{result: &token.Result{AccessToken: "fresh"}}
	client := api.NewClient(state, tr, refresher, recorder)
	resolver := resolve.New(state, client, refresher, recorder)
	g := New(state, resolver, client, recorder, WithRole(session.RoleCustomer))

	o := g.Check(context.Background())
	if o.Status != StatusReady {
		t.Fatalf("outcome %+v, want ready", o)
	}
	if state.Token() != "fresh" {
		t.Errorf("token %q, want fresh", state.Token())
	}
}
