// Package input models the six logical input channels of an experiment and
// the devices that feed them.
//
// Devices are polled once per scheduler tick; the returned State says which
// channels are held and which went down since the previous poll.
package input

import "fmt"

// Channel is a logical input.
type Channel int

const (
	Accept Channel = iota
	Abort
	Response1
	Response2
	Response3
	Response4

	numChannels
)

// NumResponses is the number of subject response channels.
const NumResponses = 4

// Responses lists the response channels in button order.
var Responses = [NumResponses]Channel{Response1, Response2, Response3, Response4}

func (c Channel) String() string {
	switch c {
	case Accept:
		return "accept"
	case Abort:
		return "abort"
	case Response1, Response2, Response3, Response4:
		return fmt.Sprintf("response%d", c.Button())
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Button returns the 1-based button number of a response channel, or 0.
func (c Channel) Button() int {
	if c < Response1 || c > Response4 {
		return 0
	}
	return int(c-Response1) + 1
}

// State is a snapshot of all channels taken at one tick.
type State struct {
	held    [numChannels]bool
	pressed [numChannels]bool
}

// Held reports whether the channel is down.
func (s State) Held(c Channel) bool {
	return c >= 0 && c < numChannels && s.held[c]
}

// Pressed reports whether the channel went down since the previous tick.
func (s State) Pressed(c Channel) bool {
	return c >= 0 && c < numChannels && s.pressed[c]
}

// AnyResponseHeld reports whether any response channel is down.
func (s State) AnyResponseHeld() bool {
	for _, c := range Responses {
		if s.held[c] {
			return true
		}
	}
	return false
}

// Device is a source of input states.
type Device interface {
	// Poll samples the device. It is called once per tick.
	Poll() State
}

// DeviceFunc adapts a function to Device.
type DeviceFunc func() State

func (f DeviceFunc) Poll() State { return f() }

// Idle is a device on which nothing is ever pressed.
var Idle Device = DeviceFunc(func() State { return State{} })
