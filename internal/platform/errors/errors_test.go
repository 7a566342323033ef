package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Wrap(CodeTimeout, "player1 did not answer", stderrors.New("deadline"))
	wrapped := fmt.Errorf("request move: %w", err)

	if !stderrors.Is(wrapped, Sentinel(CodeTimeout)) {
		t.Fatal("expected wrapped error to match timeout sentinel")
	}
	if stderrors.Is(wrapped, Sentinel(CodeCrashed)) {
		t.Fatal("expected wrapped error not to match crashed sentinel")
	}
	if !HasCode(wrapped, CodeTimeout) {
		t.Fatal("expected HasCode to find timeout")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: stderrors.New("boom"), want: CodeUnknown},
		{name: "domain", err: New(CodeProtocol, "bad line"), want: CodeProtocol},
		{name: "wrapped", err: fmt.Errorf("ctx: %w", New(CodeSpawn, "no such file")), want: CodeSpawn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Fatalf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetailIncludesSortedMetadata(t *testing.T) {
	err := WithMetadata(CodeIllegalMove, "position occupied", map[string]string{
		"player":     "player2",
		"time_index": "3",
	})
	want := "position occupied player=player2 time_index=3"
	if got := DetailOf(err); got != want {
		t.Fatalf("DetailOf() = %q, want %q", got, want)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeSpawn, "start player1", stderrors.New("exec: not found"))
	if got := err.Error(); got != "start player1: exec: not found" {
		t.Fatalf("Error() = %q", got)
	}
	if !stderrors.Is(err, err.Cause) {
		t.Fatal("expected Unwrap to expose cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := map[Code]int{
		CodeSpawn:         ExitInfra,
		CodeStorage:       ExitInfra,
		CodeRules:         ExitInfra,
		CodeInvalidConfig: ExitUsage,
		CodeCancelled:     ExitCancelled,
		CodeTimeout:       ExitOK,
		CodeIllegalMove:   ExitOK,
		CodeUnknown:       ExitInfra,
	}
	for code, want := range tests {
		if got := code.ExitCode(); got != want {
			t.Fatalf("%s.ExitCode() = %d, want %d", code, got, want)
		}
	}
}

func TestIsPlayerFault(t *testing.T) {
	if !CodeCrashed.IsPlayerFault() {
		t.Fatal("crashed should be a player fault")
	}
	if CodeSpawn.IsPlayerFault() {
		t.Fatal("spawn errors abort before play and are not player faults")
	}
}
