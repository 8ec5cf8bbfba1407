package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"call", "waiting", true},
		{"call", "called", false},
		{"call", "completed", false},
		{"call", "cancelled", false},
		{"complete", "called", true},
		{"complete", "waiting", false},
		{"complete", "completed", false},
		{"cancel", "waiting", true},
		{"cancel", "called", false},
		{"cancel", "cancelled", false},
		{"recall", "called", true},
		{"recall", "waiting", false},
		{"recall", "completed", false},
		{"unknown", "waiting", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}
