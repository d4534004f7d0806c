package likes

import "time"

// DisplayState is what the UI renders for one post and one user.
type DisplayState struct {
	Liked bool `json:"liked" yaml:"liked"`
	Count int  `json:"count" yaml:"count"`
}

// Toggled returns the state after flipping the like. The count never drops below zero.
func (d DisplayState) Toggled() DisplayState {
	next := DisplayState{Liked: !d.Liked, Count: d.Count}
	if next.Liked {
		next.Count++
	} else {
		next.Count--
	}
	if next.Count < 0 {
		next.Count = 0
	}
	return next
}

// Phase tags where an interaction sits in its settled -> pending -> settled cycle.
type Phase int

const (
	PhaseSettled Phase = iota
	PhasePending
)

func (p Phase) String() string {
	if p == PhasePending {
		return "pending"
	}
	return "settled"
}

type pendingToggle struct {
	token      string
	optimistic DisplayState
	startedAt  time.Time
}

// interaction is the per post x user state owned by the engine.
// All methods must be called with the engine mutex held.
type interaction struct {
	settled  DisplayState
	pending  *pendingToggle
	detached bool
}

func (s *interaction) phase() Phase {
	if s.pending != nil {
		return PhasePending
	}
	return PhaseSettled
}

func (s *interaction) display() DisplayState {
	if s.pending != nil {
		return s.pending.optimistic
	}
	return s.settled
}

// begin moves a settled interaction to pending. The token is drawn only
// once the interaction is known to be settled.
func (s *interaction) begin(newToken func() string, now time.Time) (pendingToggle, bool) {
	if s.pending != nil {
		return pendingToggle{}, false
	}
	s.pending = &pendingToggle{
		token:      newToken(),
		optimistic: s.settled.Toggled(),
		startedAt:  now,
	}
	return *s.pending, true
}

// confirm promotes the optimistic state to settled.
func (s *interaction) confirm(token string) (DisplayState, bool) {
	if !s.owns(token) {
		return s.display(), false
	}
	s.settled = s.pending.optimistic
	s.pending = nil
	return s.settled, true
}

// rollback drops the optimistic state; settled was never touched so it is restored exactly.
func (s *interaction) rollback(token string) (DisplayState, bool) {
	if !s.owns(token) {
		return s.display(), false
	}
	s.pending = nil
	return s.settled, true
}

func (s *interaction) owns(token string) bool {
	return s.pending != nil && s.pending.token == token
}
