package bridge

import (
	"sync"

	"github.com/arohalabs/aroha/internal/travel"
)

// Stash is a single-slot mailbox for journey options computed mid-turn. The
// tool handler deposits them while the model is still composing its spoken
// answer; the bridge attaches them to that answer's transcript turn. A later
// deposit overwrites an unclaimed earlier one, since only the newest answer
// can refer to it.
type Stash struct {
	mu          sync.Mutex
	origin      string
	destination string
	journeys    []travel.Journey
	set         bool
}

// Put stores journey options, replacing any unclaimed entry.
func (s *Stash) Put(origin, destination string, journeys []travel.Journey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = origin
	s.destination = destination
	s.journeys = journeys
	s.set = true
}

// Take removes and returns the stored entry. The read and the clear are one
// atomic step, so two claimants can never see the same entry.
func (s *Stash) Take() (origin, destination string, journeys []travel.Journey, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return "", "", nil, false
	}
	origin, destination, journeys = s.origin, s.destination, s.journeys
	s.origin, s.destination, s.journeys, s.set = "", "", nil, false
	return origin, destination, journeys, true
}
