package player

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/louisbranch/matchbox/internal/match/protocol"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

const (
	// MaxLineBytes bounds a single protocol line.
	MaxLineBytes = 1 << 20

	lineBuffer = 16
)

// Channel frames protocol messages as JSON lines over a pair of streams.
//
// A single goroutine owns the reader and hands complete lines over a buffered
// channel, so a receive that gives up on its deadline never splits a line.
type Channel struct {
	writeMu   sync.Mutex
	writer    *bufio.Writer
	deadliner writeDeadliner

	lines   chan []byte
	stop    chan struct{}
	stopped sync.Once
	readErr error // set before lines is closed
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// NewChannel starts reading lines from r and writes messages to w. Writes can
// be bounded with SetWriteDeadline when w supports deadlines, as pipes from
// os.Pipe do.
func NewChannel(r io.Reader, w io.Writer) *Channel {
	c := &Channel{
		writer: bufio.NewWriter(w),
		lines:  make(chan []byte, lineBuffer),
		stop:   make(chan struct{}),
	}
	c.deadliner, _ = w.(writeDeadliner)
	go c.read(r)
	return c
}

func (c *Channel) read(r io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineBytes)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		line := make([]byte, len(raw))
		copy(line, raw)
		select {
		case c.lines <- line:
		case <-c.stop:
			return
		}
	}
	c.readErr = scanner.Err()
}

// Send writes msg as one line and flushes it.
func (c *Channel) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.SendLine(data)
}

// SendLine writes line verbatim followed by a newline. line must not contain
// a newline of its own. A write that misses the write deadline is a
// CodeTimeout error; the line may have been partially written.
func (c *Channel) SendLine(line []byte) error {
	if bytes.IndexByte(line, '\n') >= 0 {
		return fmt.Errorf("line contains a newline")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(line); err != nil {
		return writeError("write message", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return writeError("write message", err)
	}
	if err := c.writer.Flush(); err != nil {
		return writeError("flush message", err)
	}
	return nil
}

// SetWriteDeadline bounds the writes that follow. The zero time clears it.
// Writers without deadline support ignore it.
func (c *Channel) SetWriteDeadline(t time.Time) error {
	if c.deadliner == nil {
		return nil
	}
	return c.deadliner.SetWriteDeadline(t)
}

func writeError(message string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return platformerrors.Wrap(platformerrors.CodeTimeout, message, err)
	}
	return platformerrors.Wrap(platformerrors.CodeStreamClosed, message, err)
}

// Receive waits for the next non-blank line and decodes it. A timeout of zero
// or less waits until ctx is done or the stream closes.
func (c *Channel) Receive(ctx context.Context, timeout time.Duration) (protocol.Message, error) {
	line, err := c.ReceiveLine(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return protocol.Decode(line)
}

// ReceiveLine is Receive without decoding.
func (c *Channel) ReceiveLine(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	select {
	case line, ok := <-c.lines:
		if !ok {
			return nil, c.closedError()
		}
		return line, nil
	case <-deadline:
		return nil, platformerrors.New(platformerrors.CodeTimeout, fmt.Sprintf("no message within %s", timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drain discards up to limit lines that are already buffered and returns how
// many were dropped.
func (c *Channel) Drain(limit int) int {
	dropped := 0
	for dropped < limit {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return dropped
			}
			dropped++
		default:
			return dropped
		}
	}
	return dropped
}

// Close stops handing lines to receivers. The underlying reader must be
// closed by its owner to unblock the read goroutine.
func (c *Channel) Close() {
	c.stopped.Do(func() { close(c.stop) })
}

func (c *Channel) closedError() error {
	if errors.Is(c.readErr, bufio.ErrTooLong) {
		return platformerrors.Wrap(platformerrors.CodeProtocol, fmt.Sprintf("line exceeds %d bytes", MaxLineBytes), c.readErr)
	}
	if c.readErr != nil {
		return platformerrors.Wrap(platformerrors.CodeStreamClosed, "output stream closed", c.readErr)
	}
	return platformerrors.New(platformerrors.CodeStreamClosed, "output stream closed")
}
