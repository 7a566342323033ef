package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a message variant.
type Kind string

const (
	KindStart        Kind = "game_start"
	KindMoveRequest  Kind = "your_turn"
	KindEnd          Kind = "game_over"
	KindMoveResponse Kind = "move"
	KindReady        Kind = "ready"
)

// Wire keys reserved by the envelope of each variant.
const (
	keyType         = "type"
	keyTimeIndex    = "time_index"
	keyOpponentMove = "opponent_move"
	keyResult       = "result"
	keyWinner       = "winner"
	keyMove         = "move"
	keyStatus       = "status"
	statusReady     = "ready"
)

// Message is one of Start, MoveRequest, MoveResponse, End, or Ready.
type Message interface {
	Kind() Kind
}

// Start is sent once per player before the first move request. Fields carry
// the game's public setup (symbol, rounds, payoff table, ...).
type Start struct {
	Fields map[string]any
}

// Kind implements Message.
func (Start) Kind() Kind { return KindStart }

// MoveRequest asks one player for its next move. It only ever carries that
// player's view: the opponent's most recent public move and the time index,
// plus game-specific public fields.
type MoveRequest struct {
	TimeIndex    int
	OpponentMove any
	Fields       map[string]any
}

// Kind implements Message.
func (MoveRequest) Kind() Kind { return KindMoveRequest }

// MoveResponse is a player's answer to a MoveRequest. Move holds the raw
// payload; games decode it against their own move schema.
type MoveResponse struct {
	Move json.RawMessage
}

// Kind implements Message.
func (MoveResponse) Kind() Kind { return KindMoveResponse }

// NewMoveResponse encodes move as the payload of a response.
func NewMoveResponse(move any) (MoveResponse, error) {
	data, err := json.Marshal(move)
	if err != nil {
		return MoveResponse{}, fmt.Errorf("encode move: %w", err)
	}
	return MoveResponse{Move: data}, nil
}

// End is sent once per player when the match terminates. Winner is empty for
// draws and aborted matches.
type End struct {
	Result string
	Winner string
	Fields map[string]any
}

// Kind implements Message.
func (End) Kind() Kind { return KindEnd }

// Ready is the handshake a player prints once it is able to receive messages.
type Ready struct{}

// Kind implements Message.
func (Ready) Kind() Kind { return KindReady }

// Bind decodes the wire form of msg into target, letting player code work
// with typed structs instead of field maps.
func Bind(msg Message, target any) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("bind %s: %w", msg.Kind(), err)
	}
	return nil
}
