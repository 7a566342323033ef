package player

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	defaultDiagnosticsTail = 20
	maxDiagnosticLine      = 512
)

// Diagnostics drains a player's stderr. Lines are never parsed; they are
// echoed to the operator when verbose and the most recent ones are kept for
// failure reports.
type Diagnostics struct {
	playerID string
	logger   *log.Logger
	verbose  bool
	limit    int

	mu   sync.Mutex
	tail []string

	done chan struct{}
}

func startDiagnostics(r io.Reader, playerID string, logger *log.Logger, verbose bool, limit int) *Diagnostics {
	if limit <= 0 {
		limit = defaultDiagnosticsTail
	}
	d := &Diagnostics{
		playerID: playerID,
		logger:   logger,
		verbose:  verbose,
		limit:    limit,
		done:     make(chan struct{}),
	}
	go d.drain(r)
	return d
}

// drain keeps at most a rune past maxDiagnosticLine of each line and
// discards the rest, so a player writing without newlines cannot grow memory.
func (d *Diagnostics) drain(r io.Reader) {
	defer close(d.done)
	reader := bufio.NewReader(r)
	keep := maxDiagnosticLine + utf8.UTFMax
	line := make([]byte, 0, keep)
	for {
		chunk, err := reader.ReadSlice('\n')
		if room := keep - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if trimmed := bytes.TrimRight(line, "\r\n"); len(trimmed) > 0 {
			d.record(trimmed)
		}
		line = line[:0]
		if err != nil {
			return
		}
	}
}

func (d *Diagnostics) record(raw []byte) {
	line := string(truncateRunes(raw, maxDiagnosticLine))
	if len(line) < len(raw) {
		line += "..."
	}
	if d.verbose && d.logger != nil {
		d.logger.Printf("[%s LOG] %s", d.playerID, line)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tail = append(d.tail, line)
	if len(d.tail) > d.limit {
		d.tail = d.tail[len(d.tail)-d.limit:]
	}
}

// Tail returns a copy of the most recent diagnostic lines.
func (d *Diagnostics) Tail() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tail...)
}

// Last returns the most recent diagnostic line, if any.
func (d *Diagnostics) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tail) == 0 {
		return ""
	}
	return d.tail[len(d.tail)-1]
}

// Wait blocks until the stream has been fully drained.
func (d *Diagnostics) Wait() {
	<-d.done
}

func (d *Diagnostics) waitFor(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-d.done:
		return true
	case <-timer.C:
		return false
	}
}

// truncateRunes cuts b to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return b[:n]
}
