// Package nav defines the navigation sink the session core drives. The
// guard and executor only ever name a route and say whether the history
// entry should be replaced; the host application owns the actual
// transition.
package nav

import "sync"

// Route names the session core redirects to.
const (
	RouteLogin           = "/login"
	RouteOnboarding      = "/onboarding"
	RouteCustomerHome    = "/dashboard/customer"
	RouteFreelancerHome  = "/dashboard/freelancer"
	RouteFreelancerSetup = "/freelancer/setup"
)

// HomeRoute returns the dashboard route for a role, falling back to the
// login route for roles the client does not recognize.
func HomeRoute(role string) string {
	switch role {
	case "customer":
		return RouteCustomerHome
	case "freelancer":
		return RouteFreelancerHome
	default:
		return RouteLogin
	}
}

// Options configures a navigation.
type Options struct {
	// Replace replaces the current history entry instead of pushing, so
	// guard and loading steps never appear in back-history.
	Replace bool
}

// Option is a functional option for Navigate.
type Option func(*Options)

// WithReplace replaces the current history entry instead of pushing.
func WithReplace() Option {
	return func(o *Options) {
		o.Replace = true
	}
}

// Navigator receives redirect requests. Implementations must be safe for
// concurrent use.
type Navigator interface {
	Navigate(route string, opts ...Option)
}

// Func adapts a function to the Navigator interface.
type Func func(route string, opts Options)

// Navigate implements Navigator.
func (f Func) Navigate(route string, opts ...Option) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	f(route, options)
}

// Recorder is a Navigator that remembers every redirect it receives.
// Intended for tests and diagnostics.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Entry is one recorded navigation.
type Entry struct {
	Route   string
	Options Options
}

// Navigate implements Navigator.
func (r *Recorder) Navigate(route string, opts ...Option) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Route: route, Options: options})
	r.mu.Unlock()
}

// Last returns the most recent navigation, or a zero Entry.
func (r *Recorder) Last() Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return Entry{}
	}
	return r.entries[len(r.entries)-1]
}

// All returns a copy of every recorded navigation.
func (r *Recorder) All() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Reset forgets all recorded navigations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}
