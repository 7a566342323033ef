// Package tictactoe implements turn-based tic-tac-toe rules for the match
// orchestrator.
package tictactoe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/louisbranch/matchbox/internal/match"
	"github.com/louisbranch/matchbox/internal/match/protocol"
)

// Name is the registry name of the game.
const Name = "tictactoe"

// Placement is a public move: where a symbol was written.
type Placement struct {
	Position int    `json:"position"`
	Symbol   string `json:"symbol"`
}

// Rules is one tic-tac-toe game. The first seated player plays X and moves
// first.
type Rules struct {
	players [2]string
	symbols map[string]string
	board   Board
	current string
	last    *Placement
	moves   int
}

var (
	_ match.Rules        = (*Rules)(nil)
	_ match.RoleAssigner = (*Rules)(nil)
	_ match.DefaultMover = (*Rules)(nil)
	_ match.Displayer    = (*Rules)(nil)
)

// New returns rules for a fresh game.
func New() *Rules {
	return &Rules{}
}

func (r *Rules) Name() string { return Name }

func (r *Rules) Mode() match.Mode { return match.ModeSequential }

func (r *Rules) Setup(players []match.PlayerInfo) error {
	if len(players) != 2 {
		return fmt.Errorf("tictactoe requires exactly 2 players, got %d", len(players))
	}
	r.players = [2]string{players[0].ID, players[1].ID}
	r.symbols = map[string]string{
		players[0].ID: SymbolX,
		players[1].ID: SymbolO,
	}
	r.board = Board{}
	r.current = SymbolX
	r.last = nil
	r.moves = 0
	return nil
}

func (r *Rules) Role(playerID string) string {
	return r.symbols[playerID]
}

func (r *Rules) StartMessage(playerID string) (protocol.Start, error) {
	symbol, ok := r.symbols[playerID]
	if !ok {
		return protocol.Start{}, fmt.Errorf("unknown player %q", playerID)
	}
	return protocol.Start{Fields: map[string]any{
		"game":   Name,
		"symbol": symbol,
	}}, nil
}

func (r *Rules) NextPlayers() ([]string, error) {
	for _, id := range r.players {
		if r.symbols[id] == r.current {
			return []string{id}, nil
		}
	}
	return nil, errors.New("no player holds the current symbol")
}

// MoveRequest carries only the opponent's last placement; players track the
// board themselves.
func (r *Rules) MoveRequest(_ string, timeIndex int) (protocol.MoveRequest, error) {
	req := protocol.MoveRequest{TimeIndex: timeIndex}
	if r.last != nil {
		req.OpponentMove = *r.last
	}
	return req, nil
}

// DecodeMove accepts a JSON integer.
func (r *Rules) DecodeMove(_ string, payload json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	number, ok := value.(json.Number)
	if !ok {
		return nil, fmt.Errorf("move must be an integer position, got %s", payload)
	}
	position, err := number.Int64()
	if err != nil {
		return nil, fmt.Errorf("move must be an integer position, got %s", payload)
	}
	return int(position), nil
}

func (r *Rules) ValidateMove(playerID string, move any) error {
	position, ok := move.(int)
	if !ok {
		return fmt.Errorf("move must be an integer, got %T", move)
	}
	if position < 0 || position >= Cells {
		return fmt.Errorf("move must be between 0 and %d, got %d", Cells-1, position)
	}
	if r.board[position] != "" {
		return fmt.Errorf("position %d is already occupied", position)
	}
	if r.symbols[playerID] != r.current {
		return errors.New("not your turn")
	}
	if r.over() {
		return errors.New("game is over")
	}
	return nil
}

func (r *Rules) Apply(moves []match.Move) error {
	if len(moves) != 1 {
		return fmt.Errorf("tictactoe applies one move at a time, got %d", len(moves))
	}
	move := moves[0]
	position, ok := move.Value.(int)
	if !ok {
		return fmt.Errorf("unexpected move value %T", move.Value)
	}
	symbol := r.symbols[move.PlayerID]
	if r.board[position] != "" {
		return fmt.Errorf("position %d is already occupied", position)
	}
	r.board[position] = symbol
	r.last = &Placement{Position: position, Symbol: symbol}
	r.moves++
	if !r.over() {
		r.current = Opponent(r.current)
	}
	return nil
}

func (r *Rules) IsOver() (bool, error) {
	return r.over(), nil
}

func (r *Rules) over() bool {
	return r.board.Winner() != "" || r.board.Full()
}

func (r *Rules) Verdict(forfeits []match.Forfeit) (match.Verdict, error) {
	verdict := match.Verdict{Data: map[string]any{
		"board": r.board.Slice(),
	}}
	if len(forfeits) > 0 {
		return verdict, nil
	}
	winner := r.board.Winner()
	if winner == "" {
		verdict.Summary = "Draw"
		return verdict, nil
	}
	verdict.Summary = winner + " wins"
	verdict.Data["winner_symbol"] = winner
	for id, symbol := range r.symbols {
		if symbol == winner {
			verdict.Winner = id
		}
	}
	return verdict, nil
}

// DefaultMove plays the lowest free position.
func (r *Rules) DefaultMove(string) (any, bool) {
	free := r.board.Free()
	if len(free) == 0 {
		return nil, false
	}
	return free[0], true
}

func (r *Rules) Display() string {
	return r.board.Grid()
}

// Board returns a copy of the current board.
func (r *Rules) Board() Board {
	return r.board
}
