// Package sqlite provides a SQLite-backed match result store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/matchbox/internal/match/storage"
	"github.com/louisbranch/matchbox/internal/match/storage/sqlite/migrations"
	sqlitemigrate "github.com/louisbranch/matchbox/internal/platform/storage/sqlitemigrate"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// DefaultListLimit caps ListMatches when no limit is given.
const DefaultListLimit = 20

// Store persists match results in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.MatchStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite match store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordMatch stores a finished match with its players, forfeits and moves in
// one transaction.
func (s *Store) RecordMatch(ctx context.Context, record storage.MatchRecord, moves []storage.MoveRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	matchID := strings.TrimSpace(record.ID)
	if matchID == "" {
		return fmt.Errorf("match id is required")
	}
	if strings.TrimSpace(record.Game) == "" {
		return fmt.Errorf("game is required")
	}
	if strings.TrimSpace(record.Outcome) == "" {
		return fmt.Errorf("outcome is required")
	}
	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	endedAt := record.EndedAt
	if endedAt.IsZero() {
		endedAt = startedAt
	}
	var data any
	if len(record.Data) > 0 {
		data = string(record.Data)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record match: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO matches (
		   id, game, outcome, winner, summary, reason, detail, steps,
		   data_json, started_at, ended_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		matchID,
		record.Game,
		record.Outcome,
		record.Winner,
		record.Summary,
		record.Reason,
		record.Detail,
		record.Steps,
		data,
		toMillis(startedAt),
		toMillis(endedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert match: %w", err)
	}

	for _, p := range record.Players {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_players (match_id, seat, player_id, role, program) VALUES (?, ?, ?, ?, ?)`,
			matchID, p.Seat, p.ID, p.Role, p.Program,
		); err != nil {
			return fmt.Errorf("insert match player %s: %w", p.ID, err)
		}
	}
	for _, f := range record.Forfeits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_forfeits (match_id, player_id, reason, detail, time_index) VALUES (?, ?, ?, ?, ?)`,
			matchID, f.PlayerID, f.Reason, f.Detail, f.TimeIndex,
		); err != nil {
			return fmt.Errorf("insert match forfeit %s: %w", f.PlayerID, err)
		}
	}
	for _, m := range moves {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_moves (match_id, seq, player_id, time_index, payload, substituted) VALUES (?, ?, ?, ?, ?, ?)`,
			matchID, m.Seq, m.PlayerID, m.TimeIndex, m.Payload, boolToInt(m.Substituted),
		); err != nil {
			return fmt.Errorf("insert match move %d: %w", m.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record match: %w", err)
	}
	return nil
}

// GetMatch returns one match with its players and forfeits.
func (s *Store) GetMatch(ctx context.Context, id string) (storage.MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MatchRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MatchRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.MatchRecord{}, fmt.Errorf("match id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectMatch+` WHERE id = ?`, id)
	record, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MatchRecord{}, storage.ErrNotFound
		}
		return storage.MatchRecord{}, fmt.Errorf("get match: %w", err)
	}
	if err := s.loadDetails(ctx, &record); err != nil {
		return storage.MatchRecord{}, err
	}
	return record, nil
}

// ListMatches returns the most recently finished matches first.
func (s *Store) ListMatches(ctx context.Context, limit int) ([]storage.MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectMatch+` ORDER BY ended_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var records []storage.MatchRecord
	for rows.Next() {
		record, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	for i := range records {
		if err := s.loadDetails(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// ListMoves returns a match's moves in play order.
func (s *Store) ListMoves(ctx context.Context, matchID string) ([]storage.MoveRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, fmt.Errorf("match id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT match_id, seq, player_id, time_index, payload, substituted
		   FROM match_moves
		  WHERE match_id = ?
		  ORDER BY seq ASC`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	defer rows.Close()

	var moves []storage.MoveRecord
	for rows.Next() {
		var m storage.MoveRecord
		var substituted int
		if err := rows.Scan(&m.MatchID, &m.Seq, &m.PlayerID, &m.TimeIndex, &m.Payload, &substituted); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		m.Substituted = substituted != 0
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	return moves, nil
}

const selectMatch = `SELECT id, game, outcome, winner, summary, reason, detail, steps,
        data_json, started_at, ended_at
   FROM matches`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (storage.MatchRecord, error) {
	var record storage.MatchRecord
	var data sql.NullString
	var startedAt int64
	var endedAt int64
	err := row.Scan(
		&record.ID,
		&record.Game,
		&record.Outcome,
		&record.Winner,
		&record.Summary,
		&record.Reason,
		&record.Detail,
		&record.Steps,
		&data,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return storage.MatchRecord{}, err
	}
	if data.Valid {
		record.Data = []byte(data.String)
	}
	record.StartedAt = fromMillis(startedAt)
	record.EndedAt = fromMillis(endedAt)
	return record, nil
}

func (s *Store) loadDetails(ctx context.Context, record *storage.MatchRecord) error {
	players, err := s.sqlDB.QueryContext(ctx,
		`SELECT seat, player_id, role, program FROM match_players WHERE match_id = ? ORDER BY seat ASC`,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("list match players: %w", err)
	}
	defer players.Close()
	for players.Next() {
		var p storage.PlayerRecord
		if err := players.Scan(&p.Seat, &p.ID, &p.Role, &p.Program); err != nil {
			return fmt.Errorf("scan match player: %w", err)
		}
		record.Players = append(record.Players, p)
	}
	if err := players.Err(); err != nil {
		return fmt.Errorf("list match players: %w", err)
	}

	forfeits, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id, reason, detail, time_index FROM match_forfeits WHERE match_id = ? ORDER BY time_index ASC, player_id ASC`,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("list match forfeits: %w", err)
	}
	defer forfeits.Close()
	for forfeits.Next() {
		var f storage.ForfeitRecord
		if err := forfeits.Scan(&f.PlayerID, &f.Reason, &f.Detail, &f.TimeIndex); err != nil {
			return fmt.Errorf("scan match forfeit: %w", err)
		}
		record.Forfeits = append(record.Forfeits, f)
	}
	if err := forfeits.Err(); err != nil {
		return fmt.Errorf("list match forfeits: %w", err)
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "matches.id")
}
