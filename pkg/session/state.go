package session

import "sync"

// ProfileStatus tracks the freelancer profile verification lifecycle.
// It is independent of token/user nullability.
type ProfileStatus int

const (
	ProfileUnknown ProfileStatus = iota // not yet checked
	ProfileLoading                      // fetch in progress
	ProfileReady                        // profile exists and was adopted
	ProfileMissing                      // provider returned 404
	ProfileUnauthorized                 // provider returned 401/403
	ProfileError                        // transport failure or unrecognizable payload
)

// String returns the status name for logs and metrics labels.
func (s ProfileStatus) String() string {
	switch s {
	case ProfileUnknown:
		return "unknown"
	case ProfileLoading:
		return "loading"
	case ProfileReady:
		return "ready"
	case ProfileMissing:
		return "missing"
	case ProfileUnauthorized:
		return "unauthorized"
	case ProfileError:
		return "error"
	default:
		return "invalid"
	}
}

// Snapshot is an immutable copy of the session state at one generation.
type Snapshot struct {
	Token         string
	User          *User
	Profile       *Profile
	ProfileStatus ProfileStatus
	Generation    uint64
}

// Subscriber receives a snapshot after each state mutation. Snapshots are
// delivered outside the state lock; a subscriber may call back into State.
type Subscriber func(Snapshot)

// State is the session record shared by the executor, resolver, guard and
// bootstrapper. Safe for concurrent use.
type State struct {
	mu            sync.RWMutex
	token         string
	user          *User
	profile       *Profile
	profileStatus ProfileStatus
	gen           uint64

	subMu  sync.RWMutex
	subs   map[uint64]Subscriber
	nextID uint64
}

// NewState creates an empty session state.
func NewState() *State {
	return &State{subs: make(map[uint64]Subscriber)}
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *State) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the bearer token. An empty string means "not
// authenticated, possibly recoverable via refresh".
func (s *State) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.gen++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// User returns a copy of the current user, or nil.
func (s *State) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.user)
}

// SetUser replaces the current user. The role is normalized on the way in.
// The profile and its status are reset whenever the user becomes nil or the
// role moves away from freelancer.
func (s *State) SetUser(u *User) {
	s.mu.Lock()
	u = copyUser(u)
	if u != nil {
		u.Role = NormalizeRole(u.Role)
	}
	s.user = u
	if u == nil || u.Role != RoleFreelancer {
		s.profile = nil
		s.profileStatus = ProfileUnknown
	}
	s.gen++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Profile returns a copy of the freelancer profile, or nil.
func (s *State) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyProfile(s.profile)
}

// SetProfile adopts a verified profile and marks the status ready.
func (s *State) SetProfile(p *Profile) {
	s.mu.Lock()
	s.profile = copyProfile(p)
	s.profileStatus = ProfileReady
	s.gen++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// ProfileStatus returns the current verification status.
func (s *State) ProfileStatus() ProfileStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileStatus
}

// SetProfileStatus records a verification outcome without touching the
// profile itself. Use SetProfile for the ready case.
func (s *State) SetProfileStatus(status ProfileStatus) {
	s.mu.Lock()
	s.profileStatus = status
	s.gen++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Clear empties every field. Called on logout, on an unrecoverable 401
// after refresh, or when a resolution determines no user exists.
func (s *State) Clear() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.profile = nil
	s.profileStatus = ProfileUnknown
	s.gen++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Generation returns the current mutation counter. Capture it before a
// long-running operation and compare on completion to detect staleness.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Snapshot returns a consistent copy of the whole state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Token:         s.token,
		User:          copyUser(s.user),
		Profile:       copyProfile(s.profile),
		ProfileStatus: s.profileStatus,
		Generation:    s.gen,
	}
}

// Subscribe registers a subscriber and returns its removal function.
func (s *State) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify delivers a snapshot to all subscribers. Copy-before-notify so no
// lock is held during callbacks.
func (s *State) notify(snap Snapshot) {
	s.subMu.RLock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func copyProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
