package match

import (
	"context"
	"time"

	"github.com/louisbranch/matchbox/internal/match/protocol"
)

// Seat is a player endpoint the orchestrator can drive. Player containers
// implement it for real subprocesses.
type Seat interface {
	ID() string
	AwaitReady(ctx context.Context, timeout time.Duration) error
	Notify(msg protocol.Message) error
	RequestMove(ctx context.Context, req protocol.MoveRequest, timeout time.Duration) (protocol.MoveResponse, error)
	// Err reports the failure that retired the seat, if any.
	Err() error
	Terminate() error
}
