package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/matchbox/internal/games/tictactoe"
	"github.com/louisbranch/matchbox/internal/match/protocol"
)

// board tracks a tic-tac-toe game from the player's side. Requests only carry
// the opponent's last placement, so the player keeps its own copy.
type board struct {
	choose func(cells tictactoe.Board, symbol string) int
	cells  tictactoe.Board
	symbol string
}

type startView struct {
	Game   string `json:"game"`
	Symbol string `json:"symbol"`
}

type placementView struct {
	OpponentMove *tictactoe.Placement `json:"opponent_move"`
}

func (b *board) Start(_ context.Context, start protocol.Start) error {
	var view startView
	if err := protocol.Bind(start, &view); err != nil {
		return err
	}
	if view.Game != tictactoe.Name {
		return fmt.Errorf("board strategies play %s, not %q", tictactoe.Name, view.Game)
	}
	if view.Symbol != tictactoe.SymbolX && view.Symbol != tictactoe.SymbolO {
		return fmt.Errorf("unknown symbol %q", view.Symbol)
	}
	b.symbol = view.Symbol
	b.cells = tictactoe.Board{}
	return nil
}

func (b *board) Move(_ context.Context, req protocol.MoveRequest) (any, error) {
	if b.symbol == "" {
		return nil, errors.New("move requested before game_start")
	}
	var view placementView
	if err := protocol.Bind(req, &view); err != nil {
		return nil, err
	}
	if p := view.OpponentMove; p != nil && p.Position >= 0 && p.Position < tictactoe.Cells {
		b.cells[p.Position] = p.Symbol
	}
	if len(b.cells.Free()) == 0 {
		return nil, errors.New("no free cells")
	}
	position := b.choose(b.cells, b.symbol)
	b.cells[position] = b.symbol
	return position, nil
}

func (b *board) End(context.Context, protocol.End) error { return nil }

func firstFree(cells tictactoe.Board, _ string) int {
	return cells.Free()[0]
}

var corners = []int{0, 2, 6, 8}

// blocking wins when it can, blocks the opponent's open line, then prefers
// the center, the corners, and finally any free cell.
func blocking(cells tictactoe.Board, symbol string) int {
	if position, ok := completing(cells, symbol); ok {
		return position
	}
	if position, ok := completing(cells, tictactoe.Opponent(symbol)); ok {
		return position
	}
	if cells[4] == "" {
		return 4
	}
	for _, position := range corners {
		if cells[position] == "" {
			return position
		}
	}
	return firstFree(cells, symbol)
}

// completing finds the free cell that gives symbol a full line.
func completing(cells tictactoe.Board, symbol string) (int, bool) {
	for _, line := range tictactoe.Lines {
		owned, free := 0, -1
		for _, position := range line {
			switch cells[position] {
			case symbol:
				owned++
			case "":
				free = position
			}
		}
		if owned == 2 && free >= 0 {
			return free, true
		}
	}
	return 0, false
}
