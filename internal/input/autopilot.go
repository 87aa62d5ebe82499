package input

import "math/rand/v2"

// Autopilot simulates a compliant subject for dry runs: it taps Accept every
// interval ticks and a pseudo-random response button half an interval later.
type Autopilot struct {
	v        *Virtual
	rng      *rand.Rand
	interval uint64
	tick     uint64
}

// NewAutopilot creates an autopilot. A zero interval is treated as 1.
func NewAutopilot(interval uint64, seed uint64) *Autopilot {
	if interval == 0 {
		interval = 1
	}
	return &Autopilot{
		v:        NewVirtual(),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		interval: interval,
	}
}

// Poll advances the simulated subject by one tick.
func (a *Autopilot) Poll() State {
	a.tick++
	if a.tick%a.interval == 0 {
		a.v.Tap(Accept)
	}
	if (a.tick+a.interval/2)%a.interval == 0 {
		a.v.Tap(Responses[a.rng.IntN(NumResponses)])
	}
	return a.v.Poll()
}
