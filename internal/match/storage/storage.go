// Package storage defines persistence contracts for finished matches.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/matchbox/internal/match"
)

var (
	// ErrNotFound indicates a requested match record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a match with the same id was already recorded.
	ErrAlreadyExists = errors.New("record already exists")
)

// MatchRecord stores the summary of one finished match.
type MatchRecord struct {
	ID       string
	Game     string
	Players  []PlayerRecord
	Outcome  string
	Winner   string
	Summary  string
	Reason   string
	Detail   string
	Steps    int
	Forfeits []ForfeitRecord
	// Data is the terminal public state as JSON.
	Data      json.RawMessage
	StartedAt time.Time
	EndedAt   time.Time
}

// PlayerRecord stores one seated player.
type PlayerRecord struct {
	Seat    int
	ID      string
	Role    string
	Program string
}

// ForfeitRecord stores one player failure.
type ForfeitRecord struct {
	PlayerID  string
	Reason    string
	Detail    string
	TimeIndex int
}

// MoveRecord stores one applied move in match order.
type MoveRecord struct {
	MatchID     string
	Seq         int
	PlayerID    string
	TimeIndex   int
	Payload     string
	Substituted bool
}

// MatchStore persists finished matches and their move logs.
type MatchStore interface {
	RecordMatch(ctx context.Context, record MatchRecord, moves []MoveRecord) error
	GetMatch(ctx context.Context, id string) (MatchRecord, error)
	ListMatches(ctx context.Context, limit int) ([]MatchRecord, error)
	ListMoves(ctx context.Context, matchID string) ([]MoveRecord, error)
}

// FromResult converts a match result into records. programs maps player ids
// to the command lines that were launched for them.
func FromResult(result match.Result, programs map[string]string) (MatchRecord, []MoveRecord, error) {
	var data json.RawMessage
	if result.Data != nil {
		encoded, err := json.Marshal(result.Data)
		if err != nil {
			return MatchRecord{}, nil, fmt.Errorf("encode result data: %w", err)
		}
		data = encoded
	}

	record := MatchRecord{
		ID:        result.MatchID,
		Game:      result.Game,
		Outcome:   string(result.Outcome),
		Winner:    result.Winner,
		Summary:   result.Summary,
		Reason:    string(result.Reason),
		Detail:    result.Detail,
		Steps:     result.Steps,
		Data:      data,
		StartedAt: result.StartedAt,
		EndedAt:   result.EndedAt,
	}
	for _, p := range result.Players {
		record.Players = append(record.Players, PlayerRecord{
			Seat:    p.Index,
			ID:      p.ID,
			Role:    p.Role,
			Program: programs[p.ID],
		})
	}
	for _, f := range result.Forfeits {
		record.Forfeits = append(record.Forfeits, ForfeitRecord{
			PlayerID:  f.PlayerID,
			Reason:    string(f.Code),
			Detail:    f.Detail,
			TimeIndex: f.TimeIndex,
		})
	}

	moves := make([]MoveRecord, 0, len(result.Moves))
	for i, m := range result.Moves {
		moves = append(moves, MoveRecord{
			MatchID:     result.MatchID,
			Seq:         i,
			PlayerID:    m.PlayerID,
			TimeIndex:   m.TimeIndex,
			Payload:     string(m.Payload),
			Substituted: m.Substituted,
		})
	}
	return record, moves, nil
}
