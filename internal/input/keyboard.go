package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultHoldWindow is how long a key counts as held after its last key event.
// Terminals report auto-repeat but no key-up, so release is inferred.
const DefaultHoldWindow = 150 * time.Millisecond

// Bindings maps terminal key names, as reported by bubbletea (for example
// "space", "esc", "a", "1"), to channels.
type Bindings map[string]Channel

// defaultBindings mirrors a typical scanner button box that types digits.
func defaultBindings() Bindings {
	return Bindings{
		" ":     Accept,
		"space": Accept,
		"esc":   Abort,
		"1":     Response1,
		"2":     Response2,
		"3":     Response3,
		"4":     Response4,
	}
}

// NewBindings builds bindings from key names per channel.
func NewBindings(accept, abort string, responses []string) (Bindings, error) {
	if len(responses) != NumResponses {
		return nil, fmt.Errorf("expected %d response keys, got %d", NumResponses, len(responses))
	}
	b := Bindings{}
	add := func(key string, c Channel) error {
		if key == "" {
			return fmt.Errorf("no key bound to %s", c)
		}
		if prev, ok := b[key]; ok {
			return fmt.Errorf("key %q bound to both %s and %s", key, prev, c)
		}
		b[key] = c
		return nil
	}
	if err := add(accept, Accept); err != nil {
		return nil, err
	}
	if err := add(abort, Abort); err != nil {
		return nil, err
	}
	for i, key := range responses {
		if err := add(key, Responses[i]); err != nil {
			return nil, err
		}
	}
	if c, ok := b["space"]; ok {
		if _, dup := b[" "]; !dup {
			b[" "] = c
		}
	}
	return b, nil
}

// KeyboardOptions configures a Keyboard.
type KeyboardOptions struct {
	HoldWindow time.Duration
	Input      io.Reader
	Output     io.Writer

	// OnInterrupt is called when ctrl+c is typed. The terminal is in raw
	// mode while the keyboard runs, so no SIGINT is delivered.
	OnInterrupt func()

	now func() time.Time
}

// Keyboard is a Device backed by the terminal.
type Keyboard struct {
	bindings    Bindings
	holdWindow  time.Duration
	onInterrupt func()
	now         func() time.Time
	input       io.Reader
	output      io.Writer

	v        *Virtual
	mu       sync.Mutex
	lastSeen [numChannels]time.Time
}

// NewKeyboard creates a keyboard device. Nil bindings map space, esc and the
// digits 1-4, the keys a scanner button box types.
func NewKeyboard(b Bindings, opts KeyboardOptions) *Keyboard {
	if b == nil {
		b = defaultBindings()
	}
	if opts.HoldWindow <= 0 {
		opts.HoldWindow = DefaultHoldWindow
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Keyboard{
		bindings:    b,
		holdWindow:  opts.HoldWindow,
		onInterrupt: opts.OnInterrupt,
		now:         opts.now,
		input:       opts.Input,
		output:      opts.Output,
		v:           NewVirtual(),
	}
}

// Run reads the terminal until ctx is done.
func (k *Keyboard) Run(ctx context.Context) error {
	popts := []tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	}
	if k.input != nil {
		popts = append(popts, tea.WithInput(k.input))
	}
	if k.output != nil {
		popts = append(popts, tea.WithOutput(k.output))
	}
	_, err := tea.NewProgram(keyModel{k: k}, popts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Key handles one key event by name.
func (k *Keyboard) Key(name string) {
	if name == "ctrl+c" {
		if k.onInterrupt != nil {
			k.onInterrupt()
		}
		return
	}
	c, ok := k.bindings[name]
	if !ok {
		return
	}
	k.mu.Lock()
	k.lastSeen[c] = k.now()
	k.mu.Unlock()
	k.v.Press(c)
}

// Poll releases keys whose auto-repeat stopped and returns the state.
func (k *Keyboard) Poll() State {
	now := k.now()
	k.mu.Lock()
	for c, seen := range k.lastSeen {
		if !seen.IsZero() && now.Sub(seen) >= k.holdWindow {
			k.lastSeen[c] = time.Time{}
			k.v.Release(Channel(c))
		}
	}
	k.mu.Unlock()
	return k.v.Poll()
}

type keyModel struct {
	k *Keyboard
}

func (m keyModel) Init() tea.Cmd { return nil }

func (m keyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		m.k.Key(key.String())
	}
	return m, nil
}

func (m keyModel) View() string { return "" }
