package session

import "strings"

// Known roles. Roles are stored lower-cased and trimmed; comparisons never
// assume the caller normalized first.
const (
	RoleCustomer   = "customer"
	RoleFreelancer = "freelancer"
)

// User is the resolved identity of the current session.
type User struct {
	ID                 int64  `json:"id"`
	Role               string `json:"role"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	Name               string `json:"name,omitempty"`
	Email              string `json:"email,omitempty"`
}

// Profile is the freelancer-specific secondary resource. Its existence, not
// any particular field, is the signal that a freelancer finished setup.
type Profile struct {
	ID                int64  `json:"id"`
	IsAcceptingOrders bool   `json:"is_accepting_orders"`
	IsPublic          bool   `json:"is_public"`
	Headline          string `json:"headline,omitempty"`
	Bio               string `json:"bio,omitempty"`
}

// NormalizeRole lower-cases and trims a role string. Applied at every
// ingestion point so the rest of the system compares roles directly.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
