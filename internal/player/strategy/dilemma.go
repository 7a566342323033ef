package strategy

import (
	"context"

	"github.com/louisbranch/matchbox/internal/games/dilemma"
	"github.com/louisbranch/matchbox/internal/match/protocol"
)

const (
	cooperate = dilemma.Cooperate
	defect    = dilemma.Defect
)

type dilemmaPlayer struct {
	choose func(opponentLast string) string
}

func (p *dilemmaPlayer) Start(context.Context, protocol.Start) error { return nil }

func (p *dilemmaPlayer) Move(_ context.Context, req protocol.MoveRequest) (any, error) {
	last, _ := req.OpponentMove.(string)
	return p.choose(last), nil
}

func (p *dilemmaPlayer) End(context.Context, protocol.End) error { return nil }

func always(move string) func(string) string {
	return func(string) string { return move }
}

// titForTat cooperates first, then copies the opponent's previous move.
func titForTat(opponentLast string) string {
	if opponentLast == defect {
		return defect
	}
	return cooperate
}
