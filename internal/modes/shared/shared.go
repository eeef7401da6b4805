// Package shared holds the small cross-mode coordination object spec
// §9's design notes call for: Normal, Frequency, and Set modes all
// read and write a few flags (verbosity and the one-shot shift
// modifier) that no single mode owns outright. Routing that coordination through one small mutex-guarded
// object avoids the back-pointers across mode packages the spec
// explicitly warns against.
package shared

import "sync"

// State is the shared, mutex-guarded coordination object passed by
// reference to every mode.
type State struct {
	mu sync.Mutex

	verbose    bool
	shiftArmed bool
}

// New builds a State with verbosity on and no modifiers armed, the
// spec's implicit startup default (verbosity is opt-out, not opt-in).
func New() *State {
	return &State{verbose: true}
}

// Verbose reports whether poll-driven announcements are enabled.
func (s *State) Verbose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verbose
}

// ToggleVerbose flips the verbosity flag, returning the new value.
func (s *State) ToggleVerbose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verbose = !s.verbose
	return s.verbose
}

// ArmShift sets the one-shot shift modifier (spec §4.9: the `A` key).
func (s *State) ArmShift() {
	s.mu.Lock()
	s.shiftArmed = true
	s.mu.Unlock()
}

// ConsumeShift reports whether shift was armed and clears it — every
// key consumption (by any mode) clears the flag, per spec.
func (s *State) ConsumeShift() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed := s.shiftArmed
	s.shiftArmed = false
	return armed
}

// Radio poll-announcement suppression is owned by internal/radio
// itself (Radio.SuppressNextPollAnnouncement), not duplicated here:
// only Frequency Mode needs it, so it is not cross-mode coordination.
