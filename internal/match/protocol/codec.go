package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// maxQuotedLine bounds how much of an offending line is echoed into errors.
const maxQuotedLine = 120

// Encode renders msg as a single JSON object without a trailing newline.
func Encode(msg Message) ([]byte, error) {
	var envelope map[string]any
	switch m := msg.(type) {
	case Start:
		fields, err := merge(m.Fields, keyType)
		if err != nil {
			return nil, err
		}
		fields[keyType] = string(KindStart)
		envelope = fields
	case MoveRequest:
		fields, err := merge(m.Fields, keyType, keyTimeIndex, keyOpponentMove)
		if err != nil {
			return nil, err
		}
		if m.TimeIndex < 0 {
			return nil, fmt.Errorf("encode %s: negative time index %d", KindMoveRequest, m.TimeIndex)
		}
		fields[keyType] = string(KindMoveRequest)
		fields[keyTimeIndex] = m.TimeIndex
		fields[keyOpponentMove] = m.OpponentMove
		envelope = fields
	case End:
		fields, err := merge(m.Fields, keyType, keyResult, keyWinner)
		if err != nil {
			return nil, err
		}
		fields[keyType] = string(KindEnd)
		fields[keyResult] = m.Result
		if m.Winner == "" {
			fields[keyWinner] = nil
		} else {
			fields[keyWinner] = m.Winner
		}
		envelope = fields
	case MoveResponse:
		if isNull(m.Move) {
			return nil, fmt.Errorf("encode %s: move is required", KindMoveResponse)
		}
		if !json.Valid(m.Move) {
			return nil, fmt.Errorf("encode %s: move is not valid json", KindMoveResponse)
		}
		envelope = map[string]any{keyMove: m.Move}
	case Ready:
		envelope = map[string]any{keyStatus: statusReady}
	case nil:
		return nil, fmt.Errorf("encode: message is required")
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", msg)
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return data, nil
}

// Decode parses one line into a strict message variant. Failures are
// CodeProtocol errors.
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, protocolError("empty line", line, nil)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, protocolError("invalid json", line, err)
	}
	if fields == nil {
		return nil, protocolError("expected a json object", line, nil)
	}

	rawType, tagged := fields[keyType]
	if !tagged {
		return decodeReply(fields, line)
	}
	var kind string
	if err := json.Unmarshal(rawType, &kind); err != nil {
		return nil, protocolError("type must be a string", line, err)
	}

	switch Kind(kind) {
	case KindStart:
		rest, err := decodeRest(fields, line, keyType)
		if err != nil {
			return nil, err
		}
		return Start{Fields: rest}, nil
	case KindMoveRequest:
		var req MoveRequest
		rawIndex, ok := fields[keyTimeIndex]
		if !ok {
			return nil, protocolError("your_turn requires time_index", line, nil)
		}
		if err := json.Unmarshal(rawIndex, &req.TimeIndex); err != nil || req.TimeIndex < 0 {
			return nil, protocolError("time_index must be a non-negative integer", line, err)
		}
		rawOpponent, ok := fields[keyOpponentMove]
		if !ok {
			return nil, protocolError("your_turn requires opponent_move", line, nil)
		}
		if err := json.Unmarshal(rawOpponent, &req.OpponentMove); err != nil {
			return nil, protocolError("invalid opponent_move", line, err)
		}
		rest, err := decodeRest(fields, line, keyType, keyTimeIndex, keyOpponentMove)
		if err != nil {
			return nil, err
		}
		req.Fields = rest
		return req, nil
	case KindEnd:
		var end End
		rawResult, ok := fields[keyResult]
		if !ok {
			return nil, protocolError("game_over requires result", line, nil)
		}
		if err := json.Unmarshal(rawResult, &end.Result); err != nil {
			return nil, protocolError("result must be a string", line, err)
		}
		rawWinner, ok := fields[keyWinner]
		if !ok {
			return nil, protocolError("game_over requires winner", line, nil)
		}
		if !isNull(rawWinner) {
			if err := json.Unmarshal(rawWinner, &end.Winner); err != nil {
				return nil, protocolError("winner must be a string or null", line, err)
			}
		}
		rest, err := decodeRest(fields, line, keyType, keyResult, keyWinner)
		if err != nil {
			return nil, err
		}
		end.Fields = rest
		return end, nil
	default:
		return nil, protocolError(fmt.Sprintf("unknown message type %q", kind), line, nil)
	}
}

func decodeReply(fields map[string]json.RawMessage, line []byte) (Message, error) {
	if rawMove, ok := fields[keyMove]; ok {
		if extra := extraKeys(fields, keyMove); len(extra) > 0 {
			return nil, protocolError(fmt.Sprintf("unexpected fields %v in move response", extra), line, nil)
		}
		if isNull(rawMove) {
			return nil, protocolError("move is required", line, nil)
		}
		move := make(json.RawMessage, len(rawMove))
		copy(move, rawMove)
		return MoveResponse{Move: move}, nil
	}
	if rawStatus, ok := fields[keyStatus]; ok {
		var status string
		if err := json.Unmarshal(rawStatus, &status); err != nil || status != statusReady {
			return nil, protocolError("status must be \"ready\"", line, err)
		}
		if extra := extraKeys(fields, keyStatus); len(extra) > 0 {
			return nil, protocolError(fmt.Sprintf("unexpected fields %v in ready", extra), line, nil)
		}
		return Ready{}, nil
	}
	return nil, protocolError("message has no type, move, or status", line, nil)
}

func decodeRest(fields map[string]json.RawMessage, line []byte, reserved ...string) (map[string]any, error) {
	rest := make(map[string]any, len(fields))
	for key, raw := range fields {
		if contains(reserved, key) {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, protocolError(fmt.Sprintf("invalid field %q", key), line, err)
		}
		rest[key] = value
	}
	return rest, nil
}

func merge(fields map[string]any, reserved ...string) (map[string]any, error) {
	out := make(map[string]any, len(fields)+len(reserved))
	for key, value := range fields {
		if contains(reserved, key) {
			return nil, fmt.Errorf("encode: field %q is reserved", key)
		}
		out[key] = value
	}
	return out, nil
}

func extraKeys(fields map[string]json.RawMessage, allowed ...string) []string {
	var extra []string
	for key := range fields {
		if !contains(allowed, key) {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func protocolError(message string, line []byte, cause error) error {
	quoted := string(line)
	if len(quoted) > maxQuotedLine {
		quoted = quoted[:maxQuotedLine] + "..."
	}
	return platformerrors.WrapWithMetadata(platformerrors.CodeProtocol, message, map[string]string{"line": quoted}, cause)
}
