// Package strategy provides reference players for the built-in games, plus
// fault injectors used to exercise the harness.
package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/matchbox/internal/match/protocol"
	"github.com/louisbranch/matchbox/internal/player/sdk"
)

// ErrCrash is returned by the crash strategy on its first move request.
var ErrCrash = errors.New("crash requested")

// sequencePrefix selects a fixed move list, e.g. "sequence:0,4,8".
const sequencePrefix = "sequence:"

var builders = map[string]func() sdk.Player{
	"first-free":  func() sdk.Player { return &board{choose: firstFree} },
	"blocking":    func() sdk.Player { return &board{choose: blocking} },
	"cooperate":   func() sdk.Player { return &dilemmaPlayer{choose: always(cooperate)} },
	"defect":      func() sdk.Player { return &dilemmaPlayer{choose: always(defect)} },
	"tit-for-tat": func() sdk.Player { return &dilemmaPlayer{choose: titForTat} },
	"silent":      func() sdk.Player { return fault(silent) },
	"garbage":     func() sdk.Player { return fault(garbage) },
	"crash":       func() sdk.Player { return fault(crash) },
	"illegal":     func() sdk.Player { return &illegalPlayer{} },
}

// New returns a fresh player for name. Names are listed by Names; a
// "sequence:" prefix plays the comma separated moves that follow in order,
// cycling when they run out.
func New(name string) (sdk.Player, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if strings.HasPrefix(key, sequencePrefix) {
		return newSequence(strings.TrimSpace(name)[len(sequencePrefix):])
	}
	build, ok := builders[key]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return build(), nil
}

// Names lists the registered strategies.
func Names() []string {
	names := make([]string, 0, len(builders)+1)
	for name := range builders {
		names = append(names, name)
	}
	names = append(names, sequencePrefix+"<moves>")
	sort.Strings(names)
	return names
}

type sequence struct {
	moves []any
	next  int
}

func newSequence(list string) (*sequence, error) {
	var moves []any
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(part), &value); err != nil {
			value = part
		}
		moves = append(moves, value)
	}
	if len(moves) == 0 {
		return nil, errors.New("sequence requires at least one move")
	}
	return &sequence{moves: moves}, nil
}

func (s *sequence) Start(context.Context, protocol.Start) error { return nil }

func (s *sequence) Move(context.Context, protocol.MoveRequest) (any, error) {
	move := s.moves[s.next%len(s.moves)]
	s.next++
	return move, nil
}

func (s *sequence) End(context.Context, protocol.End) error { return nil }

type faultFunc func(ctx context.Context) (any, error)

func fault(f faultFunc) sdk.Player {
	return sdk.Funcs{MoveFunc: func(ctx context.Context, _ protocol.MoveRequest) (any, error) {
		return f(ctx)
	}}
}

func silent(context.Context) (any, error) { return nil, sdk.ErrNoReply }

func garbage(context.Context) (any, error) { return sdk.Raw("this is not json"), nil }

func crash(context.Context) (any, error) { return nil, ErrCrash }
