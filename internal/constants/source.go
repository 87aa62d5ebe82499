package constants

// InputSource selects where subject and operator input comes from.
type InputSource string

const (
	// SourceKeyboard reads the terminal keyboard in real time.
	SourceKeyboard InputSource = "keyboard"

	// SourceAutopilot simulates a subject on a virtual clock.
	SourceAutopilot InputSource = "autopilot"
)

// Valid returns true if the source is a recognized value.
func (s InputSource) Valid() bool {
	switch s {
	case SourceKeyboard, SourceAutopilot:
		return true
	}
	return false
}

// String returns the string representation of the source.
func (s InputSource) String() string {
	return string(s)
}
