package match

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/matchbox/internal/match/protocol"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// Mode selects how moves are requested each step.
type Mode int

const (
	// ModeSequential asks exactly one player per step and waits for it.
	ModeSequential Mode = iota
	// ModeSimultaneous asks every required player at once and merges the
	// replies before applying them.
	ModeSimultaneous
)

func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeSimultaneous:
		return "simultaneous"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "sequential" or "simultaneous".
func ParseMode(value string) (Mode, error) {
	switch value {
	case "sequential":
		return ModeSequential, nil
	case "simultaneous":
		return ModeSimultaneous, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", value)
	}
}

// PlayerInfo is the public identity of a seated player.
type PlayerInfo struct {
	ID    string
	Index int
	Role  string
}

// Rules is the game-specific half of a match. The orchestrator calls the
// hooks from a single goroutine and never concurrently.
//
// Errors returned from hooks abort the match as RULES_ERROR, except for
// DecodeMove and ValidateMove: their errors are the player's fault and end the
// match as PROTOCOL_ERROR and ILLEGAL_MOVE forfeits respectively, unless they
// carry CodeRules themselves.
type Rules interface {
	Name() string
	Mode() Mode
	Setup(players []PlayerInfo) error
	StartMessage(playerID string) (protocol.Start, error)
	// NextPlayers returns the players who must move this step. Sequential
	// rules return exactly one.
	NextPlayers() ([]string, error)
	// MoveRequest builds the private view sent to playerID.
	MoveRequest(playerID string, timeIndex int) (protocol.MoveRequest, error)
	DecodeMove(playerID string, payload json.RawMessage) (any, error)
	ValidateMove(playerID string, move any) error
	// Apply commits one accepted batch. It is never called with a batch that
	// contains a failed move.
	Apply(moves []Move) error
	IsOver() (bool, error)
	// Verdict reports the terminal result. forfeits is empty for matches that
	// ended by the rules.
	Verdict(forfeits []Forfeit) (Verdict, error)
}

// RoleAssigner is implemented by rules that give players a role or symbol.
type RoleAssigner interface {
	Role(playerID string) string
}

// DefaultMover is implemented by rules that can substitute a move for a
// player whose request timed out under the forfeit-move policy.
type DefaultMover interface {
	DefaultMove(playerID string) (any, bool)
}

// MoveTimer is implemented by rules that need a per-player move budget.
type MoveTimer interface {
	MoveTimeout(playerID string) time.Duration
}

// Displayer is implemented by rules that can render their state for verbose
// runs.
type Displayer interface {
	Display() string
}

// Verdict is the rules' view of how a match ended.
type Verdict struct {
	// Winner is empty for a draw.
	Winner string
	// Summary is the human readable result, e.g. "X wins" or "draw".
	Summary string
	// Data is the terminal public state sent with game_over.
	Data map[string]any
}

// Forfeit records a player failure that ended the match.
type Forfeit struct {
	PlayerID  string
	Code      platformerrors.Code
	Detail    string
	TimeIndex int
}

// Move is one accepted move.
type Move struct {
	PlayerID string
	Payload  json.RawMessage
	Value    any
	// TimeIndex is shared by every move of a simultaneous batch.
	TimeIndex int
	// Substituted marks a default move played in place of a timed out one.
	Substituted bool
}
