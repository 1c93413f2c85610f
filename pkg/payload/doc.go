// Package payload normalizes the identity provider's loosely shaped JSON
// responses. The provider nests users under "user", profiles under
// "freelancer", "data.freelancer" or "profile" (or returns the bare
// object), and names the refreshed token any of "access_token",
// "accessToken" or "token".
//
// Each extractor is an ordered list of strategies tried in sequence; the
// first structural match wins. Adding a new provider shape means adding a
// strategy, not scattering shape checks through callers.
package payload
