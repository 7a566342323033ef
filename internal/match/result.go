package match

import (
	"time"

	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// Outcome classifies how a match ended.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeDraw    Outcome = "draw"
	OutcomeForfeit Outcome = "forfeit"
	OutcomeAborted Outcome = "aborted"
)

// Result is the frozen snapshot produced when a match terminates.
type Result struct {
	MatchID string
	Game    string
	Players []PlayerInfo
	Outcome Outcome
	// Winner is empty for draws, double forfeits and aborted matches.
	Winner  string
	Summary string
	// Reason is the machine readable cause for forfeits and aborts.
	Reason   platformerrors.Code
	Detail   string
	Forfeits []Forfeit
	Data     map[string]any
	Moves    []Move
	// Steps is the number of applied move batches.
	Steps     int
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is how long the match ran.
func (r Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Forfeited reports whether playerID forfeited the match.
func (r Result) Forfeited(playerID string) bool {
	for _, f := range r.Forfeits {
		if f.PlayerID == playerID {
			return true
		}
	}
	return false
}
