package payload

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/craftwork/sessioncore/pkg/session"
)

// Decode parses a response body as JSON. If direct parsing fails it falls
// back to treating the body as a JSON-encoded string containing JSON, which
// some proxies produce. Returns (nil, false) when nothing parses.
func Decode(body []byte) (any, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}

	// Double-encoded payload: a JSON string whose content is itself JSON.
	if s, ok := v.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner, true
		}
	}
	return v, true
}

// tokenSynonyms are the field names a refresh response may use, in
// preference order.
var tokenSynonyms = []string{"access_token", "accessToken", "token"}

// Token searches a decoded payload for the first token-like field. The
// current level is checked in synonym order before nested objects are
// visited, and nested objects are visited in sorted key order so the result
// is deterministic.
func Token(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}

	for _, name := range tokenSynonyms {
		if raw, ok := obj[name]; ok {
			if s, ok := raw.(string); ok && s != "" {
				return s, true
			}
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if nested, ok := obj[k].(map[string]any); ok {
			if tok, ok := Token(nested); ok {
				return tok, true
			}
		}
	}
	return "", false
}

// ExpiresIn returns the token lifetime in seconds, if the payload carries
// one under a known name.
func ExpiresIn(v any) (int64, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	for _, name := range []string{"expires_in", "expiresIn"} {
		if n, ok := number(obj[name]); ok {
			return n, true
		}
	}
	return 0, false
}

// userStrategies locate the user object within a response payload.
var userStrategies = []struct {
	name string
	pick func(map[string]any) (map[string]any, bool)
}{
	{"user", nestedKey("user")},
	{"data.user", path("data", "user")},
	{"bare", func(obj map[string]any) (map[string]any, bool) {
		_, hasID := obj["id"]
		_, hasRole := obj["role"]
		if hasID && hasRole {
			return obj, true
		}
		return nil, false
	}},
}

// User extracts and normalizes a user record. The role is lower-cased and
// trimmed; the onboarding flag is accepted under its historical namings.
func User(v any) (*session.User, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	for _, strat := range userStrategies {
		raw, ok := strat.pick(obj)
		if !ok {
			continue
		}
		id, ok := number(raw["id"])
		if !ok {
			continue
		}
		u := &session.User{
			ID:   id,
			Role: session.NormalizeRole(str(raw["role"])),
		}
		for _, name := range []string{"onboarding_complete", "onboardingComplete", "completed_onboarding"} {
			if b, ok := raw[name].(bool); ok {
				u.OnboardingComplete = b
				break
			}
		}
		u.Name = str(raw["name"])
		u.Email = str(raw["email"])
		return u, true
	}
	return nil, false
}

// profileStrategies locate the freelancer profile within a response
// payload, tried in the order the provider has been observed to use.
var profileStrategies = []struct {
	name string
	pick func(map[string]any) (map[string]any, bool)
}{
	{"freelancer", nestedKey("freelancer")},
	{"data.freelancer", path("data", "freelancer")},
	{"profile", nestedKey("profile")},
	{"bare", func(obj map[string]any) (map[string]any, bool) {
		if !looksLikeProfile(obj) {
			return nil, false
		}
		return obj, true
	}},
}

// Profile extracts and normalizes a freelancer profile. All observed
// nestings of the same object yield the identical normalized result.
func Profile(v any) (*session.Profile, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	for _, strat := range profileStrategies {
		raw, ok := strat.pick(obj)
		if !ok {
			continue
		}
		id, ok := number(raw["id"])
		if !ok {
			continue
		}
		p := &session.Profile{ID: id}
		for _, name := range []string{"is_accepting_orders", "isAcceptingOrders", "accepting_orders"} {
			if b, ok := raw[name].(bool); ok {
				p.IsAcceptingOrders = b
				break
			}
		}
		for _, name := range []string{"is_public", "isPublic", "public"} {
			if b, ok := raw[name].(bool); ok {
				p.IsPublic = b
				break
			}
		}
		p.Headline = str(raw["headline"])
		p.Bio = str(raw["bio"])
		return p, true
	}
	return nil, false
}

func looksLikeProfile(obj map[string]any) bool {
	if _, ok := obj["id"]; !ok {
		return false
	}
	markers := []string{
		"is_accepting_orders", "isAcceptingOrders", "accepting_orders",
		"is_public", "isPublic", "headline", "bio",
	}
	for _, m := range markers {
		if _, ok := obj[m]; ok {
			return true
		}
	}
	return false
}

func nestedKey(key string) func(map[string]any) (map[string]any, bool) {
	return func(obj map[string]any) (map[string]any, bool) {
		nested, ok := obj[key].(map[string]any)
		return nested, ok
	}
}

func path(keys ...string) func(map[string]any) (map[string]any, bool) {
	return func(obj map[string]any) (map[string]any, bool) {
		current := obj
		for _, key := range keys {
			next, ok := current[key].(map[string]any)
			if !ok {
				return nil, false
			}
			current = next
		}
		return current, true
	}
}

func number(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
