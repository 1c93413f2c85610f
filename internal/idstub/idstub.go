// Package idstub is a stub identity provider for local development and
// integration testing. It serves the endpoints the session core consumes
// with configurable fixtures: a refresh endpoint gated on a cookie, the
// current-user endpoint gated on the bearer token, and a freelancer
// profile endpoint that can be told to succeed, 404, or reject.
package idstub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CookieName is the ambient credential the refresh endpoint expects.
const CookieName = "refresh_session"

// ProfileMode controls what the freelancer profile endpoint returns.
type ProfileMode string

const (
	ProfileOK           ProfileMode = "ok"           // 200 with the fixture profile
	ProfileNotFound     ProfileMode = "not_found"    // 404
	ProfileUnauthorized ProfileMode = "unauthorized" // 401
	ProfileFail         ProfileMode = "fail"         // 500
)

// Fixture is the provider's mutable world state.
type Fixture struct {
	// AccessToken is the token minted by refresh and accepted as bearer.
	AccessToken string

	// RefreshCookie is the cookie value refresh requires. Empty accepts
	// any cookie presence.
	RefreshCookie string

	// User is the current-user payload, nested under "user" like the
	// real provider.
	User map[string]any

	// Profile is the freelancer profile payload, nested under
	// "freelancer".
	Profile map[string]any

	// ProfileMode selects the profile endpoint behavior.
	ProfileMode ProfileMode
}

// DefaultFixture returns a freelancer who finished onboarding and has a
// profile.
func DefaultFixture() Fixture {
	return Fixture{
		AccessToken:   "stub-token-1",
		RefreshCookie: "stub-refresh",
		User: map[string]any{
			"id":                  1,
			"role":                "freelancer",
			"onboarding_complete": true,
			"name":                "Dev Freelancer",
		},
		Profile: map[string]any{
			"id":                  10,
			"is_accepting_orders": true,
			"is_public":           true,
			"headline":            "Stub profile",
		},
		ProfileMode: ProfileOK,
	}
}

// Server is the stub provider.
type Server struct {
	mu      sync.RWMutex
	fixture Fixture
	log     *slog.Logger
}

// New creates a stub provider with the given fixture.
func New(fixture Fixture, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{fixture: fixture, log: log}
}

// SetFixture swaps the world state.
func (s *Server) SetFixture(f Fixture) {
	s.mu.Lock()
	s.fixture = f
	s.mu.Unlock()
}

// Handler returns the chi router serving the provider endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/sessions/refresh", s.handleRefresh)
	r.Post("/sessions/logout", s.handleLogout)
	r.Get("/users/me", s.handleMe)
	r.Get("/users/me/freelancer/", s.handleProfile)
	r.Get("/users/me/freelancer", s.handleProfile)
	r.Get("/auth/verify", s.handleVerify)

	return r
}

func (s *Server) snapshot() Fixture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fixture
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f := s.snapshot()

	cookie, err := r.Cookie(CookieName)
	if err != nil || (f.RefreshCookie != "" && cookie.Value != f.RefreshCookie) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "no session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": f.AccessToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", MaxAge: -1, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	f := s.snapshot()
	if !s.bearerOK(r, f) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": f.User})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	f := s.snapshot()
	if !s.bearerOK(r, f) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	switch f.ProfileMode {
	case ProfileNotFound:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no profile"})
	case ProfileUnauthorized:
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
	case ProfileFail:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "boom"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"freelancer": f.Profile})
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	f := s.snapshot()
	if !s.bearerOK(r, f) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) bearerOK(r *http.Request, f Fixture) bool {
	header := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(header, "Bearer ")
	return ok && tok == f.AccessToken
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
