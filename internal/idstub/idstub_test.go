package idstub_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/craftwork/sessioncore/internal/idstub"
	"github.com/craftwork/sessioncore/pkg/api"
	"github.com/craftwork/sessioncore/pkg/guard"
	"github.com/craftwork/sessioncore/pkg/metrics"
	"github.com/craftwork/sessioncore/pkg/nav"
	"github.com/craftwork/sessioncore/pkg/resolve"
	"github.com/craftwork/sessioncore/pkg/session"
	"github.com/craftwork/sessioncore/pkg/token"
	"github.com/craftwork/sessioncore/pkg/transport"
)

// world wires the full client stack against a stub provider over real
// HTTP, with the refresh cookie optionally seeded in the jar.
type world struct {
	stub     *idstub.Server
	state    *session.State
	recorder *nav.Recorder
	client   *api.Client
	resolver *resolve.Resolver
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newWorld(t *testing.T, fixture idstub.Fixture, withCookie bool) *world {
	t.Helper()

	stub := idstub.New(fixture, nil)
	server := httptest.NewServer(stub.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	if withCookie {
		base, err := url.Parse(server.URL)
		if err != nil {
			t.Fatalf("parse server URL: %v", err)
		}
		jar.SetCookies(base, []*http.Cookie{{Name: idstub.CookieName, Value: fixture.RefreshCookie}})
	}

	tr, err := transport.NewHTTP(server.URL, transport.WithHTTPClient(&http.Client{Jar: jar}))
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}

	state := session.NewState()
	recorder := &nav.Recorder{}
	registry := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(registry), metrics.WithNamespace("integration"))
	coordinator := token.NewCoordinator(tr)
	client := api.NewClient(state, tr, coordinator, recorder,
		api.WithMetrics(m), api.WithTracer("sessioncore-test"))
	resolver := resolve.New(state, client, coordinator, recorder, resolve.WithMetrics(m))

	return &world{
		stub:     stub,
		state:    state,
		recorder: recorder,
		client:   client,
		resolver: resolver,
		registry: registry,
		metrics:  m,
	}
}

// counterTotal sums a counter family across its label sets.
func (w *world) counterTotal(t *testing.T, name string) float64 {
	t.Helper()
	families, err := w.registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

// TestColdStartResolution walks the whole recovery path over the wire: no
// token, no cache, only the refresh cookie. The resolver must mint a
// token, fetch the user, and adopt it.
func TestColdStartResolution(t *testing.T) {
	w := newWorld(t, idstub.DefaultFixture(), true)

	u, err := w.resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if u == nil || u.ID != 1 || u.Role != session.RoleFreelancer {
		t.Fatalf("resolved %+v", u)
	}
	if w.state.Token() != "stub-token-1" {
		t.Errorf("token %q, want the minted stub token", w.state.Token())
	}
	if got := w.counterTotal(t, "integration_requests_total"); got == 0 {
		t.Error("no requests recorded in the registry")
	}
}

// TestColdStartWithoutCookie verifies the no-credential path ends at
// login with no recoverable session.
func TestColdStartWithoutCookie(t *testing.T) {
	w := newWorld(t, idstub.DefaultFixture(), false)

	_, err := w.resolver.Resolve(context.Background())
	if !errors.Is(err, resolve.ErrNoSession) {
		t.Fatalf("got %v, want ErrNoSession", err)
	}
	last := w.recorder.Last()
	if last.Route != nav.RouteLogin || !last.Options.Replace {
		t.Errorf("navigation %+v, want replace to login", last)
	}
}

// TestGuardOverTheWire runs a freelancer guard against the stub in each
// profile mode.
func TestGuardOverTheWire(t *testing.T) {
	cases := []struct {
		name string
		mode idstub.ProfileMode
		want guard.Outcome
	}{
		{"profile ok", idstub.ProfileOK, guard.Outcome{Status: guard.StatusReady}},
		{"profile missing", idstub.ProfileNotFound, guard.Outcome{Status: guard.StatusRedirect, Redirect: nav.RouteFreelancerSetup}},
		{"profile fails", idstub.ProfileFail, guard.Outcome{Status: guard.StatusRedirect, Redirect: nav.RouteFreelancerSetup}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := idstub.DefaultFixture()
			fixture.ProfileMode = tc.mode
			w := newWorld(t, fixture, true)

			g := guard.New(w.state, w.resolver, w.client, w.recorder,
				guard.WithRole(session.RoleFreelancer), guard.WithMetrics(w.metrics))
			if got := g.Check(context.Background()); got != tc.want {
				t.Errorf("outcome %+v, want %+v", got, tc.want)
			}
			if got := w.counterTotal(t, "integration_guard_outcomes_total"); got != 1 {
				t.Errorf("guard outcomes recorded: got %v, want 1", got)
			}
		})
	}
}

// TestStaleTokenRecovery verifies a wrong bearer token heals through the
// 401-refresh-retry path using the cookie.
func TestStaleTokenRecovery(t *testing.T) {
	w := newWorld(t, idstub.DefaultFixture(), true)
	w.state.SetToken("expired-token")

	u, err := w.resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if u == nil || u.ID != 1 {
		t.Fatalf("resolved %+v", u)
	}
	if w.state.Token() != "stub-token-1" {
		t.Errorf("token %q not replaced by the refreshed one", w.state.Token())
	}
}

// TestVerifyProbe exercises the token validity probe end to end.
func TestVerifyProbe(t *testing.T) {
	w := newWorld(t, idstub.DefaultFixture(), true)
	w.state.SetToken("stub-token-1")

	if err := w.client.Verify(context.Background()); err != nil {
		t.Errorf("Verify with a valid token failed: %v", err)
	}
}

// TestLogoutTearsDownSession verifies logout over the wire clears local
// state and lands on login.
func TestLogoutTearsDownSession(t *testing.T) {
	w := newWorld(t, idstub.DefaultFixture(), true)
	w.state.SetToken("stub-token-1")
	w.state.SetUser(&session.User{ID: 1, Role: session.RoleFreelancer, OnboardingComplete: true})

	if err := w.client.Logout(context.Background(), nil); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if w.state.Token() != "" || w.state.User() != nil {
		t.Error("session survived logout")
	}
	if w.recorder.Last().Route != nav.RouteLogin {
		t.Errorf("navigation %q, want login", w.recorder.Last().Route)
	}
}
