package luarules

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/matchbox/internal/match"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

var players = []match.PlayerInfo{{ID: "p1", Index: 0}, {ID: "p2", Index: 1}}

func loadScript(t *testing.T, name string) *Rules {
	t.Helper()
	r, err := Load(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("Load(%s) error = %v", name, err)
	}
	if err := r.Setup(players); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return r
}

func decodeAndApply(t *testing.T, r *Rules, playerID, payload string, timeIndex int) {
	t.Helper()
	move, err := r.DecodeMove(playerID, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("DecodeMove(%s) error = %v", payload, err)
	}
	if err := r.ValidateMove(playerID, move); err != nil {
		t.Fatalf("ValidateMove(%s) error = %v", payload, err)
	}
	if err := r.Apply([]match.Move{{PlayerID: playerID, Value: move, TimeIndex: timeIndex}}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
}

func TestNimSequentialGame(t *testing.T) {
	r := loadScript(t, "nim.lua")
	if r.Name() != "nim" || r.Mode() != match.ModeSequential {
		t.Fatalf("Name/Mode = %s/%s", r.Name(), r.Mode())
	}
	if r.Role("p1") != "first" || r.Role("p2") != "second" {
		t.Fatalf("roles = %q/%q", r.Role("p1"), r.Role("p2"))
	}

	start, err := r.StartMessage("p1")
	if err != nil {
		t.Fatalf("StartMessage() error = %v", err)
	}
	if start.Fields["pile"] != 10 || start.Fields["game"] != "nim" {
		t.Fatalf("StartMessage() = %v", start.Fields)
	}

	takes := []string{"3", "3", "3", "1"}
	for i, take := range takes {
		next, err := r.NextPlayers()
		if err != nil {
			t.Fatalf("NextPlayers() error = %v", err)
		}
		want := players[i%2].ID
		if len(next) != 1 || next[0] != want {
			t.Fatalf("step %d NextPlayers() = %v, want %s", i, next, want)
		}
		req, err := r.MoveRequest(want, i)
		if err != nil {
			t.Fatalf("MoveRequest() error = %v", err)
		}
		if i == 0 && req.OpponentMove != nil {
			t.Fatalf("first opponent_move = %v", req.OpponentMove)
		}
		if i > 0 && req.OpponentMove != 3 {
			t.Fatalf("opponent_move = %v, want 3", req.OpponentMove)
		}
		decodeAndApply(t, r, want, take, i)
	}

	over, err := r.IsOver()
	if err != nil || !over {
		t.Fatalf("IsOver() = %v, %v", over, err)
	}
	verdict, err := r.Verdict(nil)
	if err != nil {
		t.Fatalf("Verdict() error = %v", err)
	}
	if verdict.Winner != "p2" || verdict.Summary != "p2 takes the last stone" {
		t.Fatalf("Verdict() = %+v", verdict)
	}
	if verdict.Data["pile"] != 0 {
		t.Fatalf("data = %v", verdict.Data)
	}
}

func TestNimRejectsMoves(t *testing.T) {
	r := loadScript(t, "nim.lua")
	if _, err := r.DecodeMove("p1", json.RawMessage(`"two"`)); err == nil {
		t.Fatal("expected decode_move to reject a string")
	} else if platformerrors.HasCode(err, platformerrors.CodeRules) {
		t.Fatalf("schema mismatch must not be a rules error: %v", err)
	}
	if _, err := r.DecodeMove("p1", json.RawMessage(`1.5`)); err == nil {
		t.Fatal("expected decode_move to reject a fraction")
	}
	err := r.ValidateMove("p1", 4)
	if err == nil || err.Error() != "take between 1 and 3 stones" {
		t.Fatalf("ValidateMove(4) = %v", err)
	}
	move, ok := r.DefaultMove("p1")
	if !ok || move != 1 {
		t.Fatalf("DefaultMove() = %v, %v", move, ok)
	}
	if r.Display() != "pile: 10" {
		t.Fatalf("Display() = %q", r.Display())
	}
}

func TestRockPaperScissorsSimultaneous(t *testing.T) {
	r := loadScript(t, "rps.lua")
	if r.Mode() != match.ModeSimultaneous {
		t.Fatalf("Mode() = %s", r.Mode())
	}
	if got := r.MoveTimeout("p1"); got != 500*time.Millisecond {
		t.Fatalf("MoveTimeout() = %s", got)
	}
	rounds := [][2]string{{"rock", "scissors"}, {"Paper", "paper"}, {"scissors", "rock"}}
	for i, round := range rounds {
		next, err := r.NextPlayers()
		if err != nil || len(next) != 2 {
			t.Fatalf("NextPlayers() = %v, %v", next, err)
		}
		var moves []match.Move
		for seat, pick := range round {
			id := players[seat].ID
			value, err := r.DecodeMove(id, json.RawMessage(`"`+pick+`"`))
			if err != nil {
				t.Fatalf("DecodeMove() error = %v", err)
			}
			if err := r.ValidateMove(id, value); err != nil {
				t.Fatalf("ValidateMove(%s) error = %v", pick, err)
			}
			moves = append(moves, match.Move{PlayerID: id, Value: value, TimeIndex: i})
		}
		if err := r.Apply(moves); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	req, _ := r.MoveRequest("p2", 3)
	if req.OpponentMove != "scissors" || req.Fields["your_score"] != 1 {
		t.Fatalf("MoveRequest() = %+v", req)
	}
	verdict, err := r.Verdict(nil)
	if err != nil {
		t.Fatalf("Verdict() error = %v", err)
	}
	if verdict.Winner != "" || verdict.Summary != "draw 1-1" {
		t.Fatalf("Verdict() = %+v", verdict)
	}
	scores, ok := verdict.Data["scores"].(map[string]any)
	if !ok || scores["p1"] != 1 || scores["p2"] != 1 {
		t.Fatalf("scores = %v", verdict.Data["scores"])
	}
	if _, ok := r.DefaultMove("p1"); ok {
		t.Fatal("rps defines no default move")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "syntax", source: "function setup("},
		{name: "missing hooks", source: "function setup() end"},
		{name: "runtime", source: "error('boom')"},
		{name: "bad mode", source: fullScript(`mode = "turns"`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.name, tt.source)
			if !platformerrors.HasCode(err, platformerrors.CodeRules) {
				t.Fatalf("expected RULES_ERROR, got %v", err)
			}
		})
	}
}

func TestHookRuntimeErrorIsRulesError(t *testing.T) {
	r, err := Parse("broken", fullScript(`function is_over() error("lost track") end`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, err = r.IsOver()
	if !platformerrors.HasCode(err, platformerrors.CodeRules) {
		t.Fatalf("expected RULES_ERROR, got %v", err)
	}
	// The stack is restored after a failed call.
	if top := r.state.Top(); top != 0 {
		t.Fatalf("stack top = %d, want 0", top)
	}
}

// fullScript returns a minimal valid script with extra appended, so later
// definitions override the defaults.
func fullScript(extra string) string {
	return `
function setup(players) end
function start_message(player) return {} end
function next_players() return {} end
function move_request(player, index) return {} end
function validate_move(player, move) return true end
function apply_moves(moves) end
function is_over() return true end
function result(forfeits) return {} end
` + extra
}
