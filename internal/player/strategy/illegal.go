package strategy

import (
	"context"

	"github.com/louisbranch/matchbox/internal/games/tictactoe"
	"github.com/louisbranch/matchbox/internal/match/protocol"
)

// illegalPlayer answers with a well-formed move the rules must reject.
type illegalPlayer struct {
	game string
}

func (p *illegalPlayer) Start(_ context.Context, start protocol.Start) error {
	p.game, _ = start.Fields["game"].(string)
	return nil
}

func (p *illegalPlayer) Move(context.Context, protocol.MoveRequest) (any, error) {
	if p.game == tictactoe.Name {
		return tictactoe.Cells, nil
	}
	return "X", nil
}

func (p *illegalPlayer) End(context.Context, protocol.End) error { return nil }
