// Package session holds the client's model of the authenticated session:
// the bearer access token, the resolved user, and the freelancer profile
// with its verification status.
//
// State is an explicit object, constructed once per application instance
// and passed to the components that mutate it (the request executor, the
// resolver, the guard, the bootstrapper). It is never package-global, so
// tests can instantiate isolated instances.
//
// Every mutation bumps a generation counter and notifies subscribers with
// an immutable snapshot. Long-running operations capture the generation at
// start and discard their result if a newer mutation has landed in the
// meantime, so a slow superseded fetch never clobbers fresher state.
package session
