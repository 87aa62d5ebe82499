package input

import "sync"

// Virtual is a programmable device. It is safe for concurrent use, so a
// reader goroutine can feed it while the scheduler polls it.
type Virtual struct {
	mu          sync.Mutex
	held        [numChannels]bool
	pending     [numChannels]bool
	releaseNext [numChannels]bool
}

// NewVirtual returns a device with every channel up.
func NewVirtual() *Virtual {
	return &Virtual{}
}

// Press puts the channel down. A press of a channel that is already down
// does not count as a new press.
func (v *Virtual) Press(c Channel) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.held[c] {
		v.pending[c] = true
	}
	v.held[c] = true
	v.releaseNext[c] = false
}

// Release puts the channel up.
func (v *Virtual) Release(c Channel) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.held[c] = false
	v.releaseNext[c] = false
}

// Tap presses the channel for exactly one poll.
func (v *Virtual) Tap(c Channel) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.held[c] {
		v.pending[c] = true
		v.releaseNext[c] = true
	}
	v.held[c] = true
}

// Held reports whether the channel is currently down.
func (v *Virtual) Held(c Channel) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.held[c]
}

// Poll returns the state since the previous poll.
func (v *Virtual) Poll() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := State{held: v.held, pressed: v.pending}
	v.pending = [numChannels]bool{}
	for c, release := range v.releaseNext {
		if release {
			v.held[c] = false
			v.releaseNext[c] = false
		}
	}
	return s
}
