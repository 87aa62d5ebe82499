package constants

import "testing"

func TestInputSource_Valid(t *testing.T) {
	tests := []struct {
		name   string
		source InputSource
		want   bool
	}{
		{
			name:   "keyboard is valid",
			source: SourceKeyboard,
			want:   true,
		},
		{
			name:   "autopilot is valid",
			source: SourceAutopilot,
			want:   true,
		},
		{
			name:   "empty string is invalid",
			source: InputSource(""),
			want:   false,
		},
		{
			name:   "KEYBOARD uppercase is invalid",
			source: InputSource("KEYBOARD"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.source.Valid(); got != tt.want {
				t.Errorf("InputSource.Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInputSource_String(t *testing.T) {
	if got := SourceAutopilot.String(); got != "autopilot" {
		t.Errorf("String() = %q, want %q", got, "autopilot")
	}
}
