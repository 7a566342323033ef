// Package match drives two-player matches between seats under a set of game
// rules.
//
// The orchestrator walks a fixed state machine (setup, request moves, await
// responses, validate, apply, check end) until the rules report the match is
// over or a player fails. Player failures become forfeits in the result and
// never escape Run as errors; only rules failures and cancellation abort the
// match with an error.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/matchbox/internal/match/protocol"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
	"github.com/louisbranch/matchbox/internal/platform/otel"
	"github.com/louisbranch/matchbox/internal/platform/timeouts"
)

var (
	ErrRulesRequired = errors.New("rules are required")
	ErrSeatsRequired = errors.New("at least two seats are required")
)

// Options configure an Orchestrator.
type Options struct {
	MatchID       string
	MoveTimeout   time.Duration
	ReadyTimeout  time.Duration
	Handshake     bool
	TimeoutPolicy TimeoutPolicy
	Logger        *log.Logger
	Verbose       bool
	Now           func() time.Time
}

// Orchestrator owns one match: its rules, its seats, and its state.
type Orchestrator struct {
	rules   Rules
	seats   []Seat
	byID    map[string]Seat
	players []PlayerInfo
	opts    Options

	mu       sync.Mutex
	state    State
	forfeits []Forfeit
	result   *Result
	runErr   error
}

// New validates the seating and returns an orchestrator ready to Run.
func New(rules Rules, seats []Seat, opts Options) (*Orchestrator, error) {
	if rules == nil {
		return nil, ErrRulesRequired
	}
	if len(seats) < 2 {
		return nil, ErrSeatsRequired
	}
	if opts.MoveTimeout <= 0 {
		opts.MoveTimeout = timeouts.Move
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = timeouts.Ready
	}
	policy, err := ParseTimeoutPolicy(string(opts.TimeoutPolicy))
	if err != nil {
		return nil, err
	}
	opts.TimeoutPolicy = policy
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	byID := make(map[string]Seat, len(seats))
	players := make([]PlayerInfo, 0, len(seats))
	for i, seat := range seats {
		if seat == nil {
			return nil, fmt.Errorf("seat %d is nil", i)
		}
		id := seat.ID()
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("seat %d has no id", i)
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate seat id %q", id)
		}
		byID[id] = seat
		players = append(players, PlayerInfo{ID: id, Index: i})
	}

	return &Orchestrator{
		rules:   rules,
		seats:   append([]Seat(nil), seats...),
		byID:    byID,
		players: players,
		opts:    opts,
		state:   State{Status: StatusInProgress, Phase: PhaseSetup},
	}, nil
}

// Run plays the match to completion and releases every seat. It returns an
// error only when the match was aborted by a rules failure or cancellation;
// the result is still populated in that case. Calling Run again returns the
// cached result.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result != nil {
		return *o.result, o.runErr
	}

	ctx, span := otel.Tracer().Start(ctx, "match.run", trace.WithAttributes(
		attribute.String("match.id", o.opts.MatchID),
		attribute.String("match.game", o.rules.Name()),
		attribute.String("match.mode", o.rules.Mode().String()),
	))
	defer span.End()
	defer o.releaseSeats()

	started := o.opts.Now()
	abort := o.play(ctx)
	result := o.terminate(abort, started)

	span.SetAttributes(
		attribute.String("match.outcome", string(result.Outcome)),
		attribute.Int("match.steps", result.Steps),
	)
	if abort != nil {
		span.RecordError(abort)
		span.SetStatus(codes.Error, abort.Error())
	}
	o.result = &result
	o.runErr = abort
	return result, abort
}

// IsOver reports whether the match has terminated.
func (o *Orchestrator) IsOver() bool {
	return o.State().Status == StatusOver
}

// State returns a copy of the orchestrator state.
func (o *Orchestrator) State() State {
	// Run holds mu for the whole match, so readers racing a live match only
	// see the state once it is frozen.
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

func (o *Orchestrator) play(ctx context.Context) error {
	if err := o.setup(ctx); err != nil || len(o.forfeits) > 0 {
		return err
	}
	for {
		o.state.Phase = PhaseCheckEnd
		over, err := o.rules.IsOver()
		if err != nil {
			return rulesError("is over", err)
		}
		if over {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		if err := o.step(ctx); err != nil || len(o.forfeits) > 0 {
			return err
		}
	}
}

func (o *Orchestrator) setup(ctx context.Context) error {
	o.state.Phase = PhaseSetup
	if err := o.rules.Setup(append([]PlayerInfo(nil), o.players...)); err != nil {
		return rulesError("setup", err)
	}
	if assigner, ok := o.rules.(RoleAssigner); ok {
		for i := range o.players {
			o.players[i].Role = assigner.Role(o.players[i].ID)
		}
	}
	o.logf("%s match %s: %s", o.rules.Name(), o.opts.MatchID, describePlayers(o.players))

	if o.opts.Handshake {
		errs := make([]error, len(o.seats))
		var group errgroup.Group
		for i, seat := range o.seats {
			i, seat := i, seat
			group.Go(func() error {
				errs[i] = seat.AwaitReady(ctx, o.opts.ReadyTimeout)
				return nil
			})
		}
		_ = group.Wait()
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		for i, err := range errs {
			if err != nil {
				o.forfeit(o.seats[i].ID(), err, platformerrors.CodeProtocol)
			}
		}
		if len(o.forfeits) > 0 {
			return nil
		}
	}

	for _, seat := range o.seats {
		msg, err := o.rules.StartMessage(seat.ID())
		if err != nil {
			return rulesError("start message", err)
		}
		if err := seat.Notify(msg); err != nil {
			if !platformerrors.CodeOf(err).IsPlayerFault() {
				return rulesError("start message", err)
			}
			o.forfeit(seat.ID(), err, platformerrors.CodeCrashed)
		}
	}
	return nil
}

type reply struct {
	playerID string
	resp     protocol.MoveResponse
	err      error
}

// step runs one RequestMoves through Apply cycle.
func (o *Orchestrator) step(ctx context.Context) error {
	o.state.Phase = PhaseRequestMoves
	ids, err := o.rules.NextPlayers()
	if err != nil {
		return rulesError("next players", err)
	}
	if err := o.checkNextPlayers(ids); err != nil {
		return err
	}
	requests := make([]protocol.MoveRequest, len(ids))
	for i, id := range ids {
		req, err := o.rules.MoveRequest(id, o.state.TimeIndex)
		if err != nil {
			return rulesError("move request", err)
		}
		req.TimeIndex = o.state.TimeIndex
		requests[i] = req
	}
	if o.opts.Verbose {
		if displayer, ok := o.rules.(Displayer); ok {
			o.logf("time index %d\n%s", o.state.TimeIndex, displayer.Display())
		}
	}

	o.state.Phase = PhaseAwaitResponses
	replies := o.collect(ctx, ids, requests)
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	o.state.Phase = PhaseValidate
	moves := make([]Move, 0, len(replies))
	for _, r := range replies {
		move, ok, err := o.accept(r)
		if err != nil {
			return err
		}
		if ok {
			moves = append(moves, move)
		}
	}
	if len(o.forfeits) > 0 {
		return nil
	}

	o.state.Phase = PhaseApply
	if err := o.rules.Apply(moves); err != nil {
		return rulesError("apply", err)
	}
	o.state.History = append(o.state.History, moves...)
	o.state.TimeIndex++
	return nil
}

func (o *Orchestrator) checkNextPlayers(ids []string) error {
	if len(ids) == 0 {
		return rulesError("next players", errors.New("no player to move"))
	}
	if o.rules.Mode() == ModeSequential && len(ids) != 1 {
		return rulesError("next players", fmt.Errorf("sequential rules asked %d players to move", len(ids)))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := o.byID[id]; !ok {
			return rulesError("next players", fmt.Errorf("unknown player %q", id))
		}
		if seen[id] {
			return rulesError("next players", fmt.Errorf("player %q asked twice", id))
		}
		seen[id] = true
	}
	return nil
}

// collect requests every move. Simultaneous requests run on their own
// goroutines with independent deadlines; replies come back in request order.
func (o *Orchestrator) collect(ctx context.Context, ids []string, requests []protocol.MoveRequest) []reply {
	replies := make([]reply, len(ids))
	if o.rules.Mode() == ModeSequential {
		replies[0] = o.requestMove(ctx, ids[0], requests[0])
		return replies
	}
	var group errgroup.Group
	for i := range ids {
		i := i
		group.Go(func() error {
			replies[i] = o.requestMove(ctx, ids[i], requests[i])
			return nil
		})
	}
	_ = group.Wait()
	return replies
}

func (o *Orchestrator) requestMove(ctx context.Context, playerID string, req protocol.MoveRequest) reply {
	timeout := o.opts.MoveTimeout
	if timer, ok := o.rules.(MoveTimer); ok {
		if override := timer.MoveTimeout(playerID); override > 0 {
			timeout = override
		}
	}
	ctx, span := otel.Tracer().Start(ctx, "match.request_move", trace.WithAttributes(
		attribute.String("player.id", playerID),
		attribute.Int("match.time_index", req.TimeIndex),
	))
	defer span.End()

	resp, err := o.byID[playerID].RequestMove(ctx, req, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(platformerrors.CodeOf(err)))
	}
	return reply{playerID: playerID, resp: resp, err: err}
}

// accept classifies one reply. It returns ok=false when the player forfeited
// and a non-nil error only when the match must abort.
func (o *Orchestrator) accept(r reply) (Move, bool, error) {
	if r.err != nil {
		if move, ok, err := o.substitute(r); ok || err != nil {
			return move, ok, err
		}
		o.forfeit(r.playerID, r.err, platformerrors.CodeCrashed)
		return Move{}, false, nil
	}

	value, err := o.rules.DecodeMove(r.playerID, r.resp.Move)
	if err != nil {
		if platformerrors.HasCode(err, platformerrors.CodeRules) {
			return Move{}, false, rulesError("decode move", err)
		}
		o.forfeit(r.playerID, o.moveError(platformerrors.CodeProtocol, r, err), platformerrors.CodeProtocol)
		return Move{}, false, nil
	}
	if err := o.rules.ValidateMove(r.playerID, value); err != nil {
		if platformerrors.HasCode(err, platformerrors.CodeRules) {
			return Move{}, false, rulesError("validate move", err)
		}
		o.forfeit(r.playerID, o.moveError(platformerrors.CodeIllegalMove, r, err), platformerrors.CodeIllegalMove)
		return Move{}, false, nil
	}
	return Move{
		PlayerID:  r.playerID,
		Payload:   r.resp.Move,
		Value:     value,
		TimeIndex: o.state.TimeIndex,
	}, true, nil
}

// substitute plays the default move for a tolerated timeout under the
// forfeit-move policy.
func (o *Orchestrator) substitute(r reply) (Move, bool, error) {
	if o.opts.TimeoutPolicy != TimeoutForfeitMove || !platformerrors.HasCode(r.err, platformerrors.CodeTimeout) {
		return Move{}, false, nil
	}
	if o.byID[r.playerID].Err() != nil {
		return Move{}, false, nil
	}
	mover, ok := o.rules.(DefaultMover)
	if !ok {
		return Move{}, false, nil
	}
	value, ok := mover.DefaultMove(r.playerID)
	if !ok {
		return Move{}, false, nil
	}
	if err := o.rules.ValidateMove(r.playerID, value); err != nil {
		return Move{}, false, rulesError("default move", err)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return Move{}, false, rulesError("default move", err)
	}
	o.logf("%s timed out at time index %d, playing default move %s", r.playerID, o.state.TimeIndex, payload)
	return Move{
		PlayerID:    r.playerID,
		Payload:     payload,
		Value:       value,
		TimeIndex:   o.state.TimeIndex,
		Substituted: true,
	}, true, nil
}

func (o *Orchestrator) moveError(code platformerrors.Code, r reply, cause error) error {
	message := "invalid move"
	if code == platformerrors.CodeIllegalMove {
		message = "illegal move"
	}
	return platformerrors.WrapWithMetadata(code, fmt.Sprintf("player %s: %s", r.playerID, message), map[string]string{
		"player":     r.playerID,
		"move":       string(r.resp.Move),
		"time_index": fmt.Sprint(o.state.TimeIndex),
	}, cause)
}

func (o *Orchestrator) forfeit(playerID string, err error, fallback platformerrors.Code) {
	code := platformerrors.CodeOf(err)
	if !code.IsPlayerFault() {
		code = fallback
	}
	f := Forfeit{
		PlayerID:  playerID,
		Code:      code,
		Detail:    platformerrors.DetailOf(err),
		TimeIndex: o.state.TimeIndex,
	}
	o.forfeits = append(o.forfeits, f)
	o.logf("%s forfeits: %s (%s)", playerID, code, f.Detail)
}

// terminate freezes the state, builds the result once, and tells every
// reachable player how the match ended.
func (o *Orchestrator) terminate(abort error, started time.Time) Result {
	o.state.Phase = PhaseTerminate
	o.state.Status = StatusOver

	result := Result{
		MatchID:   o.opts.MatchID,
		Game:      o.rules.Name(),
		Players:   append([]PlayerInfo(nil), o.players...),
		Forfeits:  append([]Forfeit(nil), o.forfeits...),
		Moves:     append([]Move(nil), o.state.History...),
		Steps:     o.state.TimeIndex,
		StartedAt: started,
	}

	if abort == nil {
		verdict, err := o.rules.Verdict(result.Forfeits)
		if err != nil {
			abort = rulesError("verdict", err)
		} else {
			o.applyVerdict(&result, verdict)
		}
	}
	if abort != nil {
		result.Outcome = OutcomeAborted
		result.Winner = ""
		result.Reason = platformerrors.CodeOf(abort)
		result.Detail = platformerrors.DetailOf(abort)
		result.Summary = "aborted: " + abort.Error()
		if o.opts.Verbose {
			if displayer, ok := o.rules.(Displayer); ok {
				o.logf("final state\n%s", displayer.Display())
			}
		}
	}
	result.EndedAt = o.opts.Now()

	end := protocol.End{Result: result.Summary, Winner: result.Winner, Fields: endFields(result)}
	for _, seat := range o.seats {
		if err := seat.Notify(end); err != nil {
			o.logf("game_over not delivered to %s: %v", seat.ID(), err)
		}
	}
	o.logf("result: %s", result.Summary)
	return result
}

func (o *Orchestrator) applyVerdict(result *Result, verdict Verdict) {
	result.Summary = verdict.Summary
	result.Data = verdict.Data
	if len(result.Forfeits) == 0 {
		result.Winner = verdict.Winner
		if result.Winner == "" {
			result.Outcome = OutcomeDraw
			if result.Summary == "" {
				result.Summary = "draw"
			}
		} else {
			result.Outcome = OutcomeWin
			if result.Summary == "" {
				result.Summary = result.Winner + " wins"
			}
		}
		return
	}

	result.Outcome = OutcomeForfeit
	result.Reason = result.Forfeits[0].Code
	result.Detail = result.Forfeits[0].Detail
	// A forfeit hands the match to the sole remaining player regardless of
	// the board.
	var standing []string
	for _, p := range o.players {
		if !result.Forfeited(p.ID) {
			standing = append(standing, p.ID)
		}
	}
	if len(standing) == 1 {
		result.Winner = standing[0]
	}
	if result.Summary == "" {
		if result.Winner != "" {
			result.Summary = fmt.Sprintf("%s wins by forfeit", result.Winner)
		} else {
			result.Summary = "no winner: all players forfeited"
		}
	}
}

func (o *Orchestrator) releaseSeats() {
	var group errgroup.Group
	for _, seat := range o.seats {
		seat := seat
		group.Go(func() error {
			if err := seat.Terminate(); err != nil {
				o.logf("terminate %s: %v", seat.ID(), err)
			}
			return nil
		})
	}
	_ = group.Wait()
}

func (o *Orchestrator) logf(format string, args ...any) {
	if !o.opts.Verbose {
		return
	}
	o.opts.Logger.Printf(format, args...)
}

func endFields(result Result) map[string]any {
	fields := make(map[string]any, len(result.Data)+3)
	for key, value := range result.Data {
		switch key {
		case "type", "result", "winner":
			continue
		}
		fields[key] = value
	}
	fields["outcome"] = string(result.Outcome)
	if result.Reason != "" {
		fields["reason"] = string(result.Reason)
	}
	if len(result.Forfeits) > 0 {
		forfeits := make([]map[string]any, 0, len(result.Forfeits))
		for _, f := range result.Forfeits {
			forfeits = append(forfeits, map[string]any{"player": f.PlayerID, "reason": string(f.Code)})
		}
		fields["forfeits"] = forfeits
	}
	return fields
}

func describePlayers(players []PlayerInfo) string {
	parts := make([]string, 0, len(players))
	for _, p := range players {
		if p.Role != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", p.ID, p.Role))
		} else {
			parts = append(parts, p.ID)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func rulesError(hook string, err error) error {
	if platformerrors.HasCode(err, platformerrors.CodeRules) {
		return err
	}
	return platformerrors.Wrap(platformerrors.CodeRules, "rules "+hook, err)
}

func cancelled(err error) error {
	return platformerrors.Wrap(platformerrors.CodeCancelled, "match cancelled", err)
}
