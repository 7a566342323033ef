package match_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/matchbox/internal/match"
	"github.com/louisbranch/matchbox/internal/match/protocol"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// respondFunc answers the n-th move request (0-based) for a fake seat.
type respondFunc func(ctx context.Context, n int, req protocol.MoveRequest) (json.RawMessage, error)

// fakeSeat is an in-memory Seat. A failing response makes the failure sticky
// unless it is a tolerated timeout, mirroring player containers.
type fakeSeat struct {
	id       string
	respond  respondFunc
	readyErr error
	// tolerate is how many timeouts are survived before the seat retires.
	tolerate int

	mu         sync.Mutex
	requests   []protocol.MoveRequest
	notified   []protocol.Message
	failure    error
	timeouts   int
	terminated int
}

var _ match.Seat = (*fakeSeat)(nil)

func newSeat(id string, respond respondFunc) *fakeSeat {
	return &fakeSeat{id: id, respond: respond}
}

func (s *fakeSeat) ID() string { return s.id }

func (s *fakeSeat) AwaitReady(context.Context, time.Duration) error {
	if s.readyErr != nil {
		s.mu.Lock()
		s.failure = s.readyErr
		s.mu.Unlock()
	}
	return s.readyErr
}

func (s *fakeSeat) Notify(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if platformerrors.HasCode(s.failure, platformerrors.CodeCrashed) {
		return s.failure
	}
	if _, err := protocol.Encode(msg); err != nil {
		return err
	}
	s.notified = append(s.notified, msg)
	return nil
}

func (s *fakeSeat) RequestMove(ctx context.Context, req protocol.MoveRequest, _ time.Duration) (protocol.MoveResponse, error) {
	s.mu.Lock()
	if s.failure != nil {
		s.mu.Unlock()
		return protocol.MoveResponse{}, s.failure
	}
	if _, err := protocol.Encode(req); err != nil {
		s.mu.Unlock()
		return protocol.MoveResponse{}, err
	}
	n := len(s.requests)
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	payload, err := s.respond(ctx, n, req)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.MoveResponse{}, ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if platformerrors.HasCode(err, platformerrors.CodeTimeout) {
			s.timeouts++
			if s.timeouts <= s.tolerate {
				return protocol.MoveResponse{}, err
			}
		}
		s.failure = err
		return protocol.MoveResponse{}, err
	}
	return protocol.MoveResponse{Move: payload}, nil
}

func (s *fakeSeat) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *fakeSeat) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated++
	return nil
}

func (s *fakeSeat) ends() []protocol.End {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ends []protocol.End
	for _, msg := range s.notified {
		if end, ok := msg.(protocol.End); ok {
			ends = append(ends, end)
		}
	}
	return ends
}

func (s *fakeSeat) starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, msg := range s.notified {
		if _, ok := msg.(protocol.Start); ok {
			count++
		}
	}
	return count
}

func (s *fakeSeat) seenRequests() []protocol.MoveRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.MoveRequest(nil), s.requests...)
}

// always answers every request with the same move.
func always(move any) respondFunc {
	payload, _ := json.Marshal(move)
	return func(context.Context, int, protocol.MoveRequest) (json.RawMessage, error) {
		return payload, nil
	}
}

// sequence answers requests with the given moves in order.
func sequence(moves ...any) respondFunc {
	return func(_ context.Context, n int, _ protocol.MoveRequest) (json.RawMessage, error) {
		if n >= len(moves) {
			return nil, fmt.Errorf("no scripted move %d", n)
		}
		return json.Marshal(moves[n])
	}
}

// raw answers with a literal payload.
func raw(payload string) respondFunc {
	return func(context.Context, int, protocol.MoveRequest) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	}
}

// failAt answers with next until request n, which fails with code.
func failAt(n int, code platformerrors.Code, next respondFunc) respondFunc {
	return func(ctx context.Context, i int, req protocol.MoveRequest) (json.RawMessage, error) {
		if i == n {
			return nil, platformerrors.New(code, fmt.Sprintf("scripted %s", code))
		}
		return next(ctx, i, req)
	}
}

// blockUntilCancelled never answers.
func blockUntilCancelled(ctx context.Context, _ int, _ protocol.MoveRequest) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
