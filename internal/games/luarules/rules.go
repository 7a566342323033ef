// Package luarules runs game rules written in Lua.
//
// A rules script defines its hooks as global functions:
//
//	mode()                      "sequential" or "simultaneous" (may be a string global)
//	setup(players)              players is a list of {id, index}; may return {id = role}
//	start_message(player)       table of public setup fields
//	next_players()              list of player ids
//	move_request(player, index) table of public fields; opponent_move is lifted out
//	validate_move(player, move) true, or false and a reason
//	apply_moves(moves)          moves is a list of {player, move, time_index, substituted}
//	is_over()                   boolean
//	result(forfeits)            {winner, summary, data}; forfeits is a list of {player, reason}
//
// Optional hooks: decode_move(player, payload) returning the move or nil and a
// reason, default_move(player), move_timeout(player) in seconds, display().
package luarules

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/Shopify/go-lua"

	"github.com/louisbranch/matchbox/internal/match"
	"github.com/louisbranch/matchbox/internal/match/protocol"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// Name is the registry name of scripted games.
const Name = "lua"

var requiredHooks = []string{
	"setup",
	"start_message",
	"next_players",
	"move_request",
	"validate_move",
	"apply_moves",
	"is_over",
	"result",
}

// Rules adapts a Lua script to match.Rules. A Lua state is not safe for
// concurrent use; the orchestrator only calls hooks from one goroutine.
type Rules struct {
	name  string
	state *lua.State
	mode  match.Mode
	roles map[string]string
}

var (
	_ match.Rules        = (*Rules)(nil)
	_ match.RoleAssigner = (*Rules)(nil)
	_ match.DefaultMover = (*Rules)(nil)
	_ match.MoveTimer    = (*Rules)(nil)
	_ match.Displayer    = (*Rules)(nil)
)

// Load reads a rules script from path.
func Load(path string) (*Rules, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, scriptError("load "+path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return initialize(state, name)
}

// Parse compiles a rules script from source. name is used in messages.
func Parse(name, source string) (*Rules, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	if err := lua.LoadBuffer(state, source, name, ""); err != nil {
		return nil, scriptError("load "+name, err)
	}
	return initialize(state, name)
}

func initialize(state *lua.State, name string) (*Rules, error) {
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return nil, scriptError("run "+name, err)
	}
	r := &Rules{name: name, state: state}
	for _, hook := range requiredHooks {
		if !r.defined(hook) {
			return nil, platformerrors.WithMetadata(platformerrors.CodeRules,
				fmt.Sprintf("rules script %s does not define %s()", name, hook),
				map[string]string{"hook": hook})
		}
	}
	mode, err := r.readMode()
	if err != nil {
		return nil, err
	}
	r.mode = mode
	return r, nil
}

func (r *Rules) readMode() (match.Mode, error) {
	value := "sequential"
	r.state.Global("mode")
	switch r.state.TypeOf(-1) {
	case lua.TypeString:
		value, _ = r.state.ToString(-1)
		r.state.Pop(1)
	case lua.TypeFunction:
		r.state.Pop(1)
		out, err := r.call("mode", 1)
		if err != nil {
			return 0, err
		}
		s, ok := out[0].(string)
		if !ok {
			return 0, hookError("mode", errors.New("must return a string"))
		}
		value = s
	default:
		r.state.Pop(1)
	}
	mode, err := match.ParseMode(value)
	if err != nil {
		return 0, hookError("mode", err)
	}
	return mode, nil
}

// Name returns the script name.
func (r *Rules) Name() string { return r.name }

func (r *Rules) Mode() match.Mode { return r.mode }

func (r *Rules) Setup(players []match.PlayerInfo) error {
	list := make([]any, 0, len(players))
	for _, p := range players {
		list = append(list, map[string]any{"id": p.ID, "index": p.Index})
	}
	out, err := r.call("setup", 1, list)
	if err != nil {
		return err
	}
	r.roles = map[string]string{}
	if roles, ok := out[0].(map[string]any); ok {
		for id, role := range roles {
			r.roles[id] = fmt.Sprint(role)
		}
	}
	return nil
}

func (r *Rules) Role(playerID string) string {
	return r.roles[playerID]
}

func (r *Rules) StartMessage(playerID string) (protocol.Start, error) {
	out, err := r.call("start_message", 1, playerID)
	if err != nil {
		return protocol.Start{}, err
	}
	fields, err := asFields("start_message", out[0])
	if err != nil {
		return protocol.Start{}, err
	}
	delete(fields, "type")
	return protocol.Start{Fields: fields}, nil
}

func (r *Rules) NextPlayers() ([]string, error) {
	out, err := r.call("next_players", 1)
	if err != nil {
		return nil, err
	}
	switch v := out[0].(type) {
	case string:
		return []string{v}, nil
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			id, ok := item.(string)
			if !ok {
				return nil, hookError("next_players", fmt.Errorf("player id %v is not a string", item))
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		return nil, hookError("next_players", fmt.Errorf("must return a list of player ids, got %T", out[0]))
	}
}

func (r *Rules) MoveRequest(playerID string, timeIndex int) (protocol.MoveRequest, error) {
	out, err := r.call("move_request", 1, playerID, timeIndex)
	if err != nil {
		return protocol.MoveRequest{}, err
	}
	fields, err := asFields("move_request", out[0])
	if err != nil {
		return protocol.MoveRequest{}, err
	}
	req := protocol.MoveRequest{TimeIndex: timeIndex, OpponentMove: fields["opponent_move"]}
	delete(fields, "opponent_move")
	delete(fields, "time_index")
	delete(fields, "type")
	req.Fields = fields
	return req, nil
}

// DecodeMove parses the payload as JSON and passes it through decode_move
// when the script defines it.
func (r *Rules) DecodeMove(playerID string, payload json.RawMessage) (any, error) {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, err
	}
	value = normalizeJSON(value)
	if !r.defined("decode_move") {
		return value, nil
	}
	out, err := r.call("decode_move", 2, playerID, value)
	if err != nil {
		return nil, err
	}
	if out[0] == nil {
		return nil, errors.New(reason(out[1], "move does not match the move schema"))
	}
	return out[0], nil
}

func (r *Rules) ValidateMove(playerID string, move any) error {
	out, err := r.call("validate_move", 2, playerID, move)
	if err != nil {
		return err
	}
	if ok, _ := out[0].(bool); ok {
		return nil
	}
	return errors.New(reason(out[1], "illegal move"))
}

func (r *Rules) Apply(moves []match.Move) error {
	list := make([]any, 0, len(moves))
	for _, m := range moves {
		list = append(list, map[string]any{
			"player":      m.PlayerID,
			"move":        m.Value,
			"time_index":  m.TimeIndex,
			"substituted": m.Substituted,
		})
	}
	_, err := r.call("apply_moves", 0, list)
	return err
}

func (r *Rules) IsOver() (bool, error) {
	out, err := r.call("is_over", 1)
	if err != nil {
		return false, err
	}
	over, ok := out[0].(bool)
	if !ok {
		return false, hookError("is_over", fmt.Errorf("must return a boolean, got %T", out[0]))
	}
	return over, nil
}

func (r *Rules) Verdict(forfeits []match.Forfeit) (match.Verdict, error) {
	list := make([]any, 0, len(forfeits))
	for _, f := range forfeits {
		list = append(list, map[string]any{"player": f.PlayerID, "reason": string(f.Code)})
	}
	out, err := r.call("result", 1, list)
	if err != nil {
		return match.Verdict{}, err
	}
	fields, err := asFields("result", out[0])
	if err != nil {
		return match.Verdict{}, err
	}
	var verdict match.Verdict
	if winner, ok := fields["winner"].(string); ok {
		verdict.Winner = winner
	}
	if summary, ok := fields["summary"].(string); ok {
		verdict.Summary = summary
	}
	if data, ok := fields["data"].(map[string]any); ok {
		verdict.Data = data
	}
	return verdict, nil
}

func (r *Rules) DefaultMove(playerID string) (any, bool) {
	if !r.defined("default_move") {
		return nil, false
	}
	out, err := r.call("default_move", 1, playerID)
	if err != nil || out[0] == nil {
		return nil, false
	}
	return out[0], true
}

func (r *Rules) MoveTimeout(playerID string) time.Duration {
	if !r.defined("move_timeout") {
		return 0
	}
	out, err := r.call("move_timeout", 1, playerID)
	if err != nil {
		return 0
	}
	switch seconds := out[0].(type) {
	case int:
		return time.Duration(seconds) * time.Second
	case float64:
		return time.Duration(seconds * float64(time.Second))
	default:
		return 0
	}
}

func (r *Rules) Display() string {
	if !r.defined("display") {
		return ""
	}
	out, err := r.call("display", 1)
	if err != nil {
		return err.Error()
	}
	s, _ := out[0].(string)
	return s
}

func (r *Rules) defined(hook string) bool {
	r.state.Global(hook)
	defined := r.state.TypeOf(-1) == lua.TypeFunction
	r.state.Pop(1)
	return defined
}

// call invokes a global hook and converts its results. The stack is left as
// it was found.
func (r *Rules) call(hook string, results int, args ...any) ([]any, error) {
	state := r.state
	top := state.Top()
	defer state.SetTop(top)

	state.Global(hook)
	if state.TypeOf(-1) != lua.TypeFunction {
		return nil, hookError(hook, errors.New("not defined"))
	}
	for _, arg := range args {
		pushValue(state, arg)
	}
	if err := state.ProtectedCall(len(args), results, 0); err != nil {
		return nil, hookError(hook, err)
	}
	out := make([]any, results)
	for i := range out {
		out[i] = luaToGo(state, top+1+i)
	}
	return out, nil
}

func asFields(hook string, value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	default:
		return nil, hookError(hook, fmt.Errorf("must return a table with string keys, got %T", value))
	}
}

func reason(value any, fallback string) string {
	if s, ok := value.(string); ok && s != "" {
		return s
	}
	return fallback
}

// normalizeJSON turns integral float64 values into ints so scripts and rules
// see the same numbers the player sent.
func normalizeJSON(value any) any {
	switch v := value.(type) {
	case float64:
		return normalizeNumber(v)
	case []any:
		for i := range v {
			v[i] = normalizeJSON(v[i])
		}
		return v
	case map[string]any:
		for key := range v {
			v[key] = normalizeJSON(v[key])
		}
		return v
	default:
		return value
	}
}

func hookError(hook string, err error) error {
	return platformerrors.WrapWithMetadata(platformerrors.CodeRules, "lua hook "+hook, map[string]string{"hook": hook}, err)
}

func scriptError(message string, err error) error {
	return platformerrors.Wrap(platformerrors.CodeRules, message, err)
}
