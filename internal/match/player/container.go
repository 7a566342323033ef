// Package player owns player subprocesses: launching them, framing protocol
// messages over their pipes, enforcing per-move deadlines, and tearing them
// down on every exit path.
package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/louisbranch/matchbox/internal/match/protocol"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
	"github.com/louisbranch/matchbox/internal/platform/timeouts"
)

// crashSettle is how long a crash report waits for the exit status after the
// output stream closes.
const crashSettle = 200 * time.Millisecond

// Status describes where a container is in its lifecycle.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusForfeited
	StatusCrashed
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusForfeited:
		return "forfeited"
	case StatusCrashed:
		return "crashed"
	case StatusTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Options configure a Container.
type Options struct {
	Logger  *log.Logger
	Verbose bool
	// MaxTimeouts is how many timed out requests retire the container.
	// Zero means one.
	MaxTimeouts int
	// Grace is the total time Terminate allows before killing the process.
	Grace time.Duration
	// DiagnosticsTail is how many stderr lines are kept for reports.
	DiagnosticsTail int
	// WriteTimeout bounds one-way messages and requests sent without a move
	// deadline.
	WriteTimeout time.Duration
	// Sandbox, when set, launches the program inside a locked down container.
	Sandbox *Sandbox
}

// Container owns one player subprocess for the lifetime of a match.
type Container struct {
	id      string
	program Program
	opts    Options

	mu         sync.Mutex
	status     Status
	failure    error
	timeouts   int
	terminated bool
	// stale counts requests that timed out before their reply arrived. Every
	// request gets exactly one line, so that many incoming lines belong to
	// earlier time indexes.
	stale int

	cmd         *exec.Cmd
	stdin       *os.File
	stdout      *os.File
	stderr      *os.File
	channel     *Channel
	diagnostics *Diagnostics
	exited      chan struct{}
	waitErr     error // set before exited is closed

	terminateOnce sync.Once
}

// New creates an idle container for program. Call Start to launch it.
func New(id string, program Program, opts Options) *Container {
	if opts.MaxTimeouts <= 0 {
		opts.MaxTimeouts = 1
	}
	if opts.Grace <= 0 {
		opts.Grace = timeouts.TerminateGrace
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = timeouts.Write
	}
	return &Container{
		id:      id,
		program: program,
		opts:    opts,
	}
}

// ID returns the player identifier.
func (c *Container) ID() string {
	return c.id
}

// Program returns the launched program.
func (c *Container) Program() Program {
	return c.program
}

// Start launches the subprocess with piped stdio.
func (c *Container) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusIdle || c.terminated {
		return fmt.Errorf("player %s already started", c.id)
	}

	cmd, err := c.program.command(c.opts.Sandbox)
	if err != nil {
		return c.spawnError(err)
	}
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return c.spawnError(err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeFiles(stdinR, stdinW)
		return c.spawnError(err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeFiles(stdinR, stdinW, stdoutR, stdoutW)
		return c.spawnError(err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	if err := cmd.Start(); err != nil {
		closeFiles(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return c.spawnError(err)
	}
	// The child holds its own copies now.
	closeFiles(stdinR, stdoutW, stderrW)

	c.cmd = cmd
	c.stdin = stdinW
	c.stdout = stdoutR
	c.stderr = stderrR
	c.channel = NewChannel(stdoutR, stdinW)
	c.diagnostics = startDiagnostics(stderrR, c.id, c.opts.Logger, c.opts.Verbose, c.opts.DiagnosticsTail)
	c.exited = make(chan struct{})
	go func() {
		c.waitErr = cmd.Wait()
		close(c.exited)
	}()
	c.status = StatusRunning
	c.logf("started %s (pid %d)", c.program, cmd.Process.Pid)
	return nil
}

// AwaitReady waits for the player's readiness handshake.
func (c *Container) AwaitReady(ctx context.Context, timeout time.Duration) error {
	if err := c.usable(); err != nil {
		return err
	}
	msg, err := c.channel.Receive(ctx, timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if platformerrors.HasCode(err, platformerrors.CodeTimeout) {
			// A player that never becomes ready cannot be played.
			return c.retire(StatusForfeited, c.failureError(platformerrors.CodeTimeout, fmt.Sprintf("not ready within %s", timeout), err))
		}
		return c.retireFrom(err)
	}
	if _, ok := msg.(protocol.Ready); !ok {
		return c.retire(StatusForfeited, c.failureError(platformerrors.CodeProtocol, fmt.Sprintf("expected ready, got %s", msg.Kind()), nil))
	}
	return nil
}

// Notify sends a one-way message such as game_start or game_over.
func (c *Container) Notify(msg protocol.Message) error {
	c.mu.Lock()
	status, failure, channel := c.status, c.failure, c.channel
	c.mu.Unlock()
	switch {
	case channel == nil:
		return fmt.Errorf("player %s not started", c.id)
	case status == StatusCrashed:
		return failure
	case status == StatusTerminated:
		return c.failureError(platformerrors.CodeStreamClosed, "terminated", nil)
	}
	return c.send(context.Background(), msg, time.Now().Add(c.opts.WriteTimeout))
}

// RequestMove sends req and waits up to timeout for the move response.
//
// A retired container returns its original failure without touching the
// subprocess. Timeouts count against the container's allowance; the request
// that spends it retires the container. Crashes and malformed responses
// retire it immediately, as does a request the player does not read before
// the deadline. Replies owed to earlier timed out requests are skipped.
// Context cancellation is returned as is and does not retire the container.
func (c *Container) RequestMove(ctx context.Context, req protocol.MoveRequest, timeout time.Duration) (protocol.MoveResponse, error) {
	if err := c.usable(); err != nil {
		return protocol.MoveResponse{}, err
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if dropped := c.channel.Drain(c.staleReplies()); dropped > 0 {
		c.settleStale(dropped)
		c.logf("discarded %d late replies", dropped)
	}
	writeDeadline := deadline
	if writeDeadline.IsZero() {
		writeDeadline = time.Now().Add(c.opts.WriteTimeout)
	}
	if err := c.send(ctx, req, writeDeadline); err != nil {
		return protocol.MoveResponse{}, err
	}

	for {
		wait := time.Duration(0)
		if !deadline.IsZero() {
			if wait = time.Until(deadline); wait <= 0 {
				c.markStale()
				return protocol.MoveResponse{}, c.timedOut(req.TimeIndex, timeout,
					platformerrors.New(platformerrors.CodeTimeout, fmt.Sprintf("no message within %s", timeout)))
			}
		}
		line, err := c.channel.ReceiveLine(ctx, wait)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.markStale()
				return protocol.MoveResponse{}, ctxErr
			}
			if platformerrors.HasCode(err, platformerrors.CodeTimeout) {
				c.markStale()
				return protocol.MoveResponse{}, c.timedOut(req.TimeIndex, timeout, err)
			}
			return protocol.MoveResponse{}, c.retireFrom(err)
		}
		if c.staleReplies() > 0 {
			c.settleStale(1)
			c.logf("discarded a late reply while waiting for time index %d", req.TimeIndex)
			continue
		}
		msg, err := protocol.Decode(line)
		if err != nil {
			return protocol.MoveResponse{}, c.retireFrom(err)
		}
		resp, ok := msg.(protocol.MoveResponse)
		if !ok {
			return protocol.MoveResponse{}, c.retire(StatusForfeited, c.failureError(platformerrors.CodeProtocol, fmt.Sprintf("expected move response, got %s", msg.Kind()), nil))
		}
		return resp, nil
	}
}

// send writes msg before deadline. A player that stops reading its input is
// retired with a timeout since the stream may now hold a partial line.
func (c *Container) send(ctx context.Context, msg protocol.Message, deadline time.Time) error {
	if err := c.channel.SetWriteDeadline(deadline); err != nil {
		c.logf("write deadline unavailable: %v", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.channel.SetWriteDeadline(time.Unix(1, 0))
	})
	err := c.channel.Send(msg)
	if stop() {
		_ = c.channel.SetWriteDeadline(time.Time{})
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch platformerrors.CodeOf(err) {
	case platformerrors.CodeTimeout:
		return c.retire(StatusForfeited, c.failureError(platformerrors.CodeTimeout, fmt.Sprintf("did not read %s in time", msg.Kind()), err))
	case platformerrors.CodeStreamClosed:
		return c.retire(StatusCrashed, c.crashError(err))
	default:
		return err
	}
}

func (c *Container) staleReplies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

func (c *Container) markStale() {
	c.mu.Lock()
	c.stale++
	c.mu.Unlock()
}

func (c *Container) settleStale(n int) {
	c.mu.Lock()
	c.stale -= n
	if c.stale < 0 {
		c.stale = 0
	}
	c.mu.Unlock()
}

// Err returns the failure that retired the container, or nil.
func (c *Container) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Status returns the lifecycle status.
func (c *Container) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Timeouts returns how many requests have timed out so far.
func (c *Container) Timeouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeouts
}

// Diagnostics returns the most recent stderr lines.
func (c *Container) Diagnostics() []string {
	c.mu.Lock()
	diagnostics := c.diagnostics
	c.mu.Unlock()
	if diagnostics == nil {
		return nil
	}
	return diagnostics.Tail()
}

// Terminate stops the subprocess: stdin is closed first, SIGTERM follows after
// half the grace period, and the process is killed once the grace period is
// spent. It is safe to call more than once and on a container that never
// started.
func (c *Container) Terminate() error {
	var err error
	c.terminateOnce.Do(func() {
		err = c.terminate()
	})
	return err
}

func (c *Container) terminate() error {
	c.mu.Lock()
	c.terminated = true
	if c.status == StatusRunning || c.status == StatusIdle {
		c.status = StatusTerminated
	}
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil {
		return nil
	}

	_ = c.stdin.Close()
	half := c.opts.Grace / 2
	var killErr error
	if !c.waitExit(half) {
		c.logf("still running after stdin closed, sending SIGTERM")
		_ = cmd.Process.Signal(syscall.SIGTERM)
		if !c.waitExit(c.opts.Grace - half) {
			c.logf("still running after SIGTERM, killing")
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				killErr = fmt.Errorf("kill player %s: %w", c.id, err)
			}
			<-c.exited
		}
	}

	c.channel.Close()
	closeFiles(c.stdout, c.stderr)
	c.diagnostics.Wait()
	c.logf("terminated (%s)", exitDescription(c.waitErr))
	return killErr
}

func (c *Container) waitExit(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.exited:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Container) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return c.failure
	}
	if c.terminated {
		return c.failureError(platformerrors.CodeStreamClosed, "terminated", nil)
	}
	if c.status != StatusRunning {
		return fmt.Errorf("player %s not started", c.id)
	}
	return nil
}

func (c *Container) timedOut(timeIndex int, timeout time.Duration, cause error) error {
	c.mu.Lock()
	c.timeouts++
	spent := c.timeouts >= c.opts.MaxTimeouts
	count := c.timeouts
	c.mu.Unlock()

	err := platformerrors.WrapWithMetadata(platformerrors.CodeTimeout,
		fmt.Sprintf("player %s did not move within %s", c.id, timeout),
		map[string]string{
			"player":     c.id,
			"time_index": fmt.Sprint(timeIndex),
			"timeouts":   fmt.Sprint(count),
		}, cause)
	if spent {
		return c.retire(StatusForfeited, err)
	}
	c.logf("timed out at time index %d (%d/%d)", timeIndex, count, c.opts.MaxTimeouts)
	return err
}

// retireFrom classifies a channel failure and retires the container.
func (c *Container) retireFrom(err error) error {
	switch platformerrors.CodeOf(err) {
	case platformerrors.CodeStreamClosed:
		return c.retire(StatusCrashed, c.crashError(err))
	case platformerrors.CodeProtocol:
		return c.retire(StatusForfeited, c.failureError(platformerrors.CodeProtocol, "malformed message", err))
	default:
		return c.retire(StatusCrashed, c.failureError(platformerrors.CodeCrashed, "read failed", err))
	}
}

// retire records the first failure; later failures report the first.
func (c *Container) retire(status Status, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return c.failure
	}
	c.failure = err
	if !c.terminated {
		c.status = status
	}
	c.logf("retired: %v", err)
	return err
}

func (c *Container) crashError(cause error) error {
	metadata := map[string]string{"player": c.id}
	if c.exited != nil && c.waitExit(crashSettle) {
		metadata["exit"] = exitDescription(c.waitErr)
	}
	if c.diagnostics != nil {
		c.diagnostics.waitFor(crashSettle)
		if last := c.diagnostics.Last(); last != "" {
			metadata["stderr"] = last
		}
	}
	return platformerrors.WrapWithMetadata(platformerrors.CodeCrashed, fmt.Sprintf("player %s crashed", c.id), metadata, cause)
}

func (c *Container) failureError(code platformerrors.Code, message string, cause error) error {
	return platformerrors.WrapWithMetadata(code, fmt.Sprintf("player %s: %s", c.id, message), map[string]string{"player": c.id}, cause)
}

func (c *Container) spawnError(cause error) error {
	return platformerrors.WrapWithMetadata(platformerrors.CodeSpawn,
		fmt.Sprintf("launch player %s", c.id),
		map[string]string{"player": c.id, "program": c.program.String()}, cause)
}

func (c *Container) logf(format string, args ...any) {
	if !c.opts.Verbose || c.opts.Logger == nil {
		return
	}
	c.opts.Logger.Printf("[%s] "+format, append([]any{c.id}, args...)...)
}

func exitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ProcessState.String()
	}
	return err.Error()
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
