// Package dilemma implements the repeated Prisoner's Dilemma as simultaneous
// move rules for the match orchestrator.
package dilemma

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/matchbox/internal/match"
	"github.com/louisbranch/matchbox/internal/match/protocol"
)

const (
	// Name is the registry name of the game.
	Name = "dilemma"

	Cooperate = "C"
	Defect    = "D"

	// DefaultRounds is the length of a match when none is configured.
	DefaultRounds = 100
)

// Payoff returns the points earned by a player choosing mine against theirs.
func Payoff(mine, theirs string) int {
	switch {
	case mine == Cooperate && theirs == Cooperate:
		return 3
	case mine == Cooperate && theirs == Defect:
		return 0
	case mine == Defect && theirs == Cooperate:
		return 5
	default:
		return 1
	}
}

// Round is one resolved round, indexed by seat order.
type Round struct {
	Moves  [2]string
	Points [2]int
}

// Rules is one repeated Prisoner's Dilemma.
type Rules struct {
	rounds  int
	players [2]string
	scores  [2]int
	history []Round
}

var (
	_ match.Rules        = (*Rules)(nil)
	_ match.DefaultMover = (*Rules)(nil)
	_ match.Displayer    = (*Rules)(nil)
)

// New returns rules for a match of the given number of rounds. Zero or less
// selects DefaultRounds.
func New(rounds int) *Rules {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	return &Rules{rounds: rounds}
}

func (r *Rules) Name() string { return Name }

func (r *Rules) Mode() match.Mode { return match.ModeSimultaneous }

func (r *Rules) Setup(players []match.PlayerInfo) error {
	if len(players) != 2 {
		return fmt.Errorf("dilemma requires exactly 2 players, got %d", len(players))
	}
	r.players = [2]string{players[0].ID, players[1].ID}
	r.scores = [2]int{}
	r.history = nil
	return nil
}

func (r *Rules) StartMessage(string) (protocol.Start, error) {
	return protocol.Start{Fields: map[string]any{
		"game":   "prisoners_dilemma",
		"rounds": r.rounds,
		"rules": map[string]any{
			"both_cooperate":                 payoffPair(Cooperate, Cooperate),
			"you_cooperate_opponent_defects": payoffPair(Cooperate, Defect),
			"you_defect_opponent_cooperates": payoffPair(Defect, Cooperate),
			"both_defect":                    payoffPair(Defect, Defect),
		},
	}}, nil
}

func payoffPair(mine, theirs string) map[string]int {
	return map[string]int{"you": Payoff(mine, theirs), "opponent": Payoff(theirs, mine)}
}

func (r *Rules) NextPlayers() ([]string, error) {
	if len(r.history) >= r.rounds {
		return nil, errors.New("all rounds played")
	}
	return []string{r.players[0], r.players[1]}, nil
}

// MoveRequest shows a player its own score and the last round from its own
// side of the table.
func (r *Rules) MoveRequest(playerID string, timeIndex int) (protocol.MoveRequest, error) {
	seat, err := r.seat(playerID)
	if err != nil {
		return protocol.MoveRequest{}, err
	}
	req := protocol.MoveRequest{
		TimeIndex: timeIndex,
		Fields: map[string]any{
			"round":      len(r.history) + 1,
			"your_score": r.scores[seat],
		},
	}
	if len(r.history) > 0 {
		last := r.history[len(r.history)-1]
		req.OpponentMove = last.Moves[1-seat]
		req.Fields["last_round"] = map[string]any{
			"your_move":         last.Moves[seat],
			"opponent_move":     last.Moves[1-seat],
			"your_score_gained": last.Points[seat],
		}
	}
	return req, nil
}

// DecodeMove accepts a JSON string.
func (r *Rules) DecodeMove(_ string, payload json.RawMessage) (any, error) {
	var move string
	if err := json.Unmarshal(payload, &move); err != nil {
		return nil, fmt.Errorf("move must be a string, got %s", payload)
	}
	return move, nil
}

func (r *Rules) ValidateMove(playerID string, move any) error {
	if _, err := r.seat(playerID); err != nil {
		return err
	}
	value, ok := move.(string)
	if !ok {
		return fmt.Errorf("move must be a string, got %T", move)
	}
	switch strings.ToUpper(value) {
	case Cooperate, Defect:
		return nil
	default:
		return fmt.Errorf("move must be 'C' (cooperate) or 'D' (defect), got %q", value)
	}
}

// Apply resolves one round. Both players' moves must be present.
func (r *Rules) Apply(moves []match.Move) error {
	if len(moves) != 2 {
		return fmt.Errorf("dilemma resolves both moves together, got %d", len(moves))
	}
	var round Round
	var seen [2]bool
	for _, move := range moves {
		seat, err := r.seat(move.PlayerID)
		if err != nil {
			return err
		}
		value, ok := move.Value.(string)
		if !ok {
			return fmt.Errorf("unexpected move value %T", move.Value)
		}
		round.Moves[seat] = strings.ToUpper(value)
		seen[seat] = true
	}
	if !seen[0] || !seen[1] {
		return errors.New("round is missing a player's move")
	}
	round.Points[0] = Payoff(round.Moves[0], round.Moves[1])
	round.Points[1] = Payoff(round.Moves[1], round.Moves[0])
	r.scores[0] += round.Points[0]
	r.scores[1] += round.Points[1]
	r.history = append(r.history, round)
	return nil
}

func (r *Rules) IsOver() (bool, error) {
	return len(r.history) >= r.rounds, nil
}

func (r *Rules) Verdict(forfeits []match.Forfeit) (match.Verdict, error) {
	verdict := match.Verdict{Data: map[string]any{
		"rounds_played": len(r.history),
		"final_scores":  r.Scores(),
		"history":       r.historyData(),
	}}
	if len(forfeits) > 0 {
		return verdict, nil
	}
	first, second := r.scores[0], r.scores[1]
	switch {
	case first > second:
		verdict.Winner = r.players[0]
		verdict.Summary = fmt.Sprintf("%s wins with %d points", r.players[0], first)
	case second > first:
		verdict.Winner = r.players[1]
		verdict.Summary = fmt.Sprintf("%s wins with %d points", r.players[1], second)
	default:
		verdict.Summary = fmt.Sprintf("Draw with %d points each", first)
	}
	return verdict, nil
}

// DefaultMove cooperates.
func (r *Rules) DefaultMove(string) (any, bool) {
	return Cooperate, true
}

func (r *Rules) Display() string {
	return fmt.Sprintf("Round %d/%d\nScores: %s=%d, %s=%d",
		len(r.history), r.rounds, r.players[0], r.scores[0], r.players[1], r.scores[1])
}

// Scores returns the cumulative score per player.
func (r *Rules) Scores() map[string]int {
	return map[string]int{
		r.players[0]: r.scores[0],
		r.players[1]: r.scores[1],
	}
}

// History returns the resolved rounds.
func (r *Rules) History() []Round {
	return append([]Round(nil), r.history...)
}

func (r *Rules) historyData() []map[string]any {
	rounds := make([]map[string]any, 0, len(r.history))
	for _, round := range r.history {
		rounds = append(rounds, map[string]any{
			"moves":  map[string]string{r.players[0]: round.Moves[0], r.players[1]: round.Moves[1]},
			"points": map[string]int{r.players[0]: round.Points[0], r.players[1]: round.Points[1]},
		})
	}
	return rounds
}

func (r *Rules) seat(playerID string) (int, error) {
	switch playerID {
	case r.players[0]:
		return 0, nil
	case r.players[1]:
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown player %q", playerID)
	}
}
