package games

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/louisbranch/matchbox/internal/match"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

func TestNewBuiltins(t *testing.T) {
	tests := []struct {
		name string
		want string
		mode match.Mode
	}{
		{name: "tictactoe", want: "tictactoe", mode: match.ModeSequential},
		{name: "TTT", want: "tictactoe", mode: match.ModeSequential},
		{name: "dilemma", want: "dilemma", mode: match.ModeSimultaneous},
		{name: "pd", want: "dilemma", mode: match.ModeSimultaneous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := New(tt.name, Options{})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if rules.Name() != tt.want || rules.Mode() != tt.mode {
				t.Fatalf("rules = %s/%s", rules.Name(), rules.Mode())
			}
		})
	}
}

func TestNewLuaRequiresScript(t *testing.T) {
	_, err := New("lua", Options{})
	if !platformerrors.HasCode(err, platformerrors.CodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
	rules, err := New("lua", Options{Script: filepath.Join("luarules", "testdata", "nim.lua")})
	if err != nil {
		t.Fatalf("New(lua) error = %v", err)
	}
	if rules.Name() != "nim" {
		t.Fatalf("Name() = %q", rules.Name())
	}
}

func TestNewUnknownGame(t *testing.T) {
	_, err := New("chess", Options{})
	if !platformerrors.HasCode(err, platformerrors.CodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
	if _, err := New("dilemma", Options{Rounds: -1}); err == nil {
		t.Fatal("expected error for negative rounds")
	}
}

func TestNames(t *testing.T) {
	if got := Names(); !reflect.DeepEqual(got, []string{"dilemma", "lua", "tictactoe"}) {
		t.Fatalf("Names() = %v", got)
	}
}
