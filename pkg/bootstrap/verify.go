// Package bootstrap owns freelancer profile verification: a one-shot
// Verify used by route guards, and a standing Bootstrapper that lazily
// fetches the profile whenever the session enters an unknown status for
// it. Both paths converge on the same session fields, so a guard and the
// bootstrapper can race without divergence.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/craftwork/sessioncore/pkg/api"
	"github.com/craftwork/sessioncore/pkg/payload"
	"github.com/craftwork/sessioncore/pkg/session"
)

// ProfileEndpoint is the freelancer profile resource.
const ProfileEndpoint = "/users/me/freelancer/"

// verifyTimeout bounds a verification call so guards never hang on a
// silent provider.
const verifyTimeout = 10 * time.Second

// Verify fetches the freelancer profile and records the outcome on the
// session state:
//
//	2xx with a recognizable profile -> ProfileReady (profile adopted)
//	401/403                         -> ProfileUnauthorized
//	404                             -> ProfileMissing
//	anything else                   -> ProfileError
//
// The outcome is written to the session only while the current user is
// still a freelancer; a late response never resurrects profile state the
// session has moved away from. The computed status is returned either way
// so the caller can act on it.
func Verify(ctx context.Context, client *api.Client, state *session.State) session.ProfileStatus {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	body, err := client.DoJSON(ctx, ProfileEndpoint, api.Options{Method: http.MethodGet})

	status := session.ProfileReady
	var profile *session.Profile
	switch {
	case err == nil:
		p, ok := payload.Profile(body)
		if !ok {
			status = session.ProfileError
		} else {
			profile = p
		}
	default:
		var se *api.StatusError
		if errors.As(err, &se) {
			switch se.Status {
			case http.StatusUnauthorized, http.StatusForbidden:
				status = session.ProfileUnauthorized
			case http.StatusNotFound:
				status = session.ProfileMissing
			default:
				status = session.ProfileError
			}
		} else {
			// Transport failure or timeout. Fail closed.
			status = session.ProfileError
		}
	}

	if u := state.User(); u != nil && u.Role == session.RoleFreelancer {
		if profile != nil {
			state.SetProfile(profile)
		} else {
			state.SetProfileStatus(status)
		}
	}
	return status
}
