package match

import "testing"

func TestParseTimeoutPolicy(t *testing.T) {
	tests := map[string]TimeoutPolicy{
		"":              TimeoutForfeitMatch,
		"forfeit-match": TimeoutForfeitMatch,
		"forfeit-move":  TimeoutForfeitMove,
	}
	for input, want := range tests {
		got, err := ParseTimeoutPolicy(input)
		if err != nil {
			t.Fatalf("ParseTimeoutPolicy(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseTimeoutPolicy(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := ParseTimeoutPolicy("forfeit-round"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestParseMode(t *testing.T) {
	for _, mode := range []Mode{ModeSequential, ModeSimultaneous} {
		got, err := ParseMode(mode.String())
		if err != nil || got != mode {
			t.Fatalf("ParseMode(%q) = %v, %v", mode.String(), got, err)
		}
	}
	if _, err := ParseMode("turn-based"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
