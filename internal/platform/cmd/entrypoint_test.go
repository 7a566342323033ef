package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"testing"

	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

type testConfig struct {
	Game    string `env:"CMD_TEST_GAME" envDefault:"tictactoe"`
	Verbose bool   `env:"CMD_TEST_VERBOSE"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("MATCHBOX_CMD_TEST_GAME", "dilemma")
	t.Setenv("MATCHBOX_CMD_TEST_VERBOSE", "true")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfgRef := testConfig{}
	if err := ParseConfig(&cfgRef); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfgRef.Game, "game", cfgRef.Game, "game")
	fs.BoolVar(&cfgRef.Verbose, "verbose", cfgRef.Verbose, "verbose")

	if err := ParseArgs(fs, []string{"-game", "lua"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfgRef.Game != "lua" {
		t.Fatalf("expected flag value for game, got %q", cfgRef.Game)
	}
	if !cfgRef.Verbose {
		t.Fatal("expected env default verbose")
	}
}

func TestParseConfigFromArgsKeepsEnvWhenFlagAbsent(t *testing.T) {
	t.Setenv("MATCHBOX_CMD_TEST_GAME", "dilemma")

	cfgRef := testConfig{}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	fs.BoolVar(&cfgRef.Verbose, "verbose", false, "verbose")
	if err := ParseConfigFromArgs(&cfgRef, fs, []string{"-verbose"}); err != nil {
		t.Fatalf("parse config and args: %v", err)
	}
	if cfgRef.Game != "dilemma" {
		t.Fatalf("expected env game, got %q", cfgRef.Game)
	}
	if !cfgRef.Verbose {
		t.Fatal("expected verbose flag to be set")
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceMatch, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}

func TestRunWithTelemetryReturnsRunError(t *testing.T) {
	t.Setenv("MATCHBOX_OTEL_ENDPOINT", "")
	want := errors.New("boom")
	got := RunWithTelemetry(context.Background(), ServiceMatch, func(context.Context) error { return want })
	if !errors.Is(got, want) {
		t.Fatalf("expected run error, got %v", got)
	}
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: platformerrors.ExitOK},
		{name: "cancelled", err: fmt.Errorf("run: %w", context.Canceled), want: platformerrors.ExitCancelled},
		{name: "spawn", err: platformerrors.New(platformerrors.CodeSpawn, "start"), want: platformerrors.ExitInfra},
		{name: "config", err: platformerrors.New(platformerrors.CodeInvalidConfig, "bad game"), want: platformerrors.ExitUsage},
		{name: "plain", err: errors.New("disk full"), want: platformerrors.ExitInfra},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitStatus(tt.err); got != tt.want {
				t.Fatalf("ExitStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
