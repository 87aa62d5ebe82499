package input

import (
	"strings"
	"testing"
	"time"
)

func TestChannel_String(t *testing.T) {
	tests := []struct {
		c      Channel
		name   string
		button int
	}{
		{Accept, "accept", 0},
		{Abort, "abort", 0},
		{Response1, "response1", 1},
		{Response3, "response3", 3},
		{Response4, "response4", 4},
		{numChannels, "channel(6)", 0},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.name {
			t.Errorf("Channel(%d).String() = %q, want %q", int(tt.c), got, tt.name)
		}
		if got := tt.c.Button(); got != tt.button {
			t.Errorf("%s.Button() = %d, want %d", tt.name, got, tt.button)
		}
	}
}

func TestState_OutOfRangeChannel(t *testing.T) {
	var s State
	if s.Held(Channel(-1)) || s.Pressed(Channel(99)) {
		t.Error("out-of-range channels must read as up")
	}
}

func TestVirtual_PressIsReportedOnce(t *testing.T) {
	v := NewVirtual()
	v.Press(Response2)

	s := v.Poll()
	if !s.Pressed(Response2) || !s.Held(Response2) || !s.AnyResponseHeld() {
		t.Fatalf("first poll: pressed %v held %v", s.Pressed(Response2), s.Held(Response2))
	}

	v.Press(Response2) // still down: not a new press
	s = v.Poll()
	if s.Pressed(Response2) || !s.Held(Response2) {
		t.Errorf("second poll: pressed %v held %v; want false, true", s.Pressed(Response2), s.Held(Response2))
	}

	v.Release(Response2)
	s = v.Poll()
	if s.Held(Response2) || s.AnyResponseHeld() {
		t.Error("released key still held")
	}
}

func TestVirtual_TapLastsOnePoll(t *testing.T) {
	v := NewVirtual()
	v.Tap(Accept)

	if s := v.Poll(); !s.Pressed(Accept) || !s.Held(Accept) {
		t.Error("tap not reported on the first poll")
	}
	if s := v.Poll(); s.Pressed(Accept) || s.Held(Accept) {
		t.Error("tap still reported on the second poll")
	}
}

func TestVirtual_PressAndReleaseBetweenPolls(t *testing.T) {
	v := NewVirtual()
	v.Press(Response1)
	v.Release(Response1)

	s := v.Poll()
	if !s.Pressed(Response1) {
		t.Error("a short press must not be lost")
	}
	if s.Held(Response1) {
		t.Error("released key reported held")
	}
}

func TestAutopilot_TapsAcceptAndResponse(t *testing.T) {
	a := NewAutopilot(4, 1)
	var accepts, responses int
	for i := 0; i < 40; i++ {
		s := a.Poll()
		if s.Pressed(Accept) {
			accepts++
		}
		for _, c := range Responses {
			if s.Pressed(c) {
				responses++
			}
		}
	}
	if accepts != 10 || responses != 10 {
		t.Errorf("accepts/responses = %d/%d, want 10/10", accepts, responses)
	}
}

func TestNewBindings(t *testing.T) {
	b, err := NewBindings("space", "esc", []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("NewBindings() error = %v", err)
	}
	for key, want := range map[string]Channel{"space": Accept, " ": Accept, "esc": Abort, "d": Response4} {
		if b[key] != want {
			t.Errorf("b[%q] = %s, want %s", key, b[key], want)
		}
	}

	tests := []struct {
		name      string
		accept    string
		responses []string
		wantErr   string
	}{
		{"too few responses", "space", []string{"a", "b", "c"}, "expected 4 response keys"},
		{"duplicate key", "a", []string{"a", "b", "c", "d"}, "bound to both"},
		{"empty key", "", []string{"a", "b", "c", "d"}, "no key bound to accept"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBindings(tt.accept, "esc", tt.responses)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewBindings() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestKeyboard_HoldWindowReleases(t *testing.T) {
	now := time.Unix(0, 0)
	var interrupted bool
	k := NewKeyboard(nil, KeyboardOptions{
		HoldWindow:  100 * time.Millisecond,
		OnInterrupt: func() { interrupted = true },
		now:         func() time.Time { return now },
	})

	k.Key("2")
	if s := k.Poll(); !s.Pressed(Response2) || !s.Held(Response2) {
		t.Fatal("digit 2 not reported as a response2 press")
	}

	// Auto-repeat keeps the key held without a new press.
	now = now.Add(50 * time.Millisecond)
	k.Key("2")
	if s := k.Poll(); s.Pressed(Response2) || !s.Held(Response2) {
		t.Error("auto-repeat reported as a new press")
	}

	now = now.Add(150 * time.Millisecond)
	if s := k.Poll(); s.Held(Response2) {
		t.Error("key still held after the hold window")
	}

	k.Key("x") // unbound
	if s := k.Poll(); s.AnyResponseHeld() {
		t.Error("unbound key reported as a response")
	}

	k.Key("space")
	if s := k.Poll(); !s.Pressed(Accept) {
		t.Error("space not bound to accept by default")
	}

	k.Key("ctrl+c")
	if !interrupted {
		t.Error("ctrl+c did not interrupt")
	}
}
