// Package games maps game names to rules constructors.
package games

import (
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/matchbox/internal/games/dilemma"
	"github.com/louisbranch/matchbox/internal/games/luarules"
	"github.com/louisbranch/matchbox/internal/games/tictactoe"
	"github.com/louisbranch/matchbox/internal/match"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// Options carry the per-game settings exposed on the command line.
type Options struct {
	// Rounds applies to round-based games. Zero selects the game default.
	Rounds int
	// Script is the rules file for scripted games.
	Script string
}

// Factory builds fresh rules for one match.
type Factory func(Options) (match.Rules, error)

var factories = map[string]Factory{
	tictactoe.Name: func(Options) (match.Rules, error) {
		return tictactoe.New(), nil
	},
	dilemma.Name: func(opts Options) (match.Rules, error) {
		return dilemma.New(opts.Rounds), nil
	},
	luarules.Name: func(opts Options) (match.Rules, error) {
		if strings.TrimSpace(opts.Script) == "" {
			return nil, platformerrors.New(platformerrors.CodeInvalidConfig, "lua games require a rules script")
		}
		return luarules.Load(opts.Script)
	},
}

var aliases = map[string]string{
	"ttt":               tictactoe.Name,
	"tic-tac-toe":       tictactoe.Name,
	"pd":                dilemma.Name,
	"prisoners_dilemma": dilemma.Name,
}

// New builds rules for the named game.
func New(name string, opts Options) (match.Rules, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	factory, ok := factories[key]
	if !ok {
		return nil, platformerrors.WithMetadata(platformerrors.CodeInvalidConfig,
			fmt.Sprintf("unknown game %q (available: %s)", name, strings.Join(Names(), ", ")),
			map[string]string{"game": name})
	}
	if opts.Rounds < 0 {
		return nil, platformerrors.New(platformerrors.CodeInvalidConfig, "rounds must not be negative")
	}
	return factory(opts)
}

// Names lists the registered game names.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
