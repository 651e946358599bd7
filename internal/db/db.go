package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/junction.report/internal/junction"
)

// ErrSessionNotFound is returned when a session id has no rows.
var ErrSessionNotFound = errors.New("session not found")

// DB wraps the SQLite handle that stores counting sessions.
type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the database at path and migrates it to the
// latest schema.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps PRAGMAs in force and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Session describes one controller run.
type Session struct {
	SessionID  string
	StartedAt  time.Time
	EndedAt    *time.Time
	EndReason  string
	ConfigJSON string
}

// StartSession inserts a new session and returns its id.
func (db *DB) StartSession(ctx context.Context, startedAt time.Time, configJSON string) (string, error) {
	if configJSON == "" {
		configJSON = "{}"
	}
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at, config_json) VALUES (?, ?, ?)`,
		id, startedAt.UnixNano(), configJSON,
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// EndSession marks a session finished.
func (db *DB) EndSession(ctx context.Context, sessionID string, endedAt time.Time, reason string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE session_id = ?`,
		endedAt.UnixNano(), reason, sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession loads a session by id.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var (
		s         Session
		started   int64
		ended     sql.NullInt64
		endReason sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT session_id, started_at, ended_at, end_reason, config_json FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&s.SessionID, &started, &ended, &endReason, &s.ConfigJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		s.EndedAt = &t
	}
	s.EndReason = endReason.String
	return &s, nil
}

// RecordTick stores the cumulative counts after a tick.
func (db *DB) RecordTick(ctx context.Context, sessionID string, snap junction.Snapshot) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tick_counts (
			session_id, tick, ts_unix_nanos, phase, north, east, south, west, passed_now
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(snap.Tick), snap.Time.UnixNano(), string(snap.Phase),
		snap.Counts[junction.North], snap.Counts[junction.East],
		snap.Counts[junction.South], snap.Counts[junction.West],
		snap.PassedNow,
	)
	if err != nil {
		return fmt.Errorf("insert tick counts: %w", err)
	}
	return nil
}

// PhaseChangeRecord is a stored phase transition.
type PhaseChangeRecord struct {
	Tick   uint64
	At     time.Time
	From   junction.Phase
	To     junction.Phase
	Reason junction.Reason
}

// RecordPhaseChanges stores every transition of a tick in one transaction.
func (db *DB) RecordPhaseChanges(ctx context.Context, sessionID string, tick uint64, changes []junction.PhaseChange) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ch := range changes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO phase_changes (session_id, tick, ts_unix_nanos, from_phase, to_phase, reason)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, int64(tick), ch.At.UnixNano(), string(ch.From), string(ch.To), string(ch.Reason),
		); err != nil {
			return fmt.Errorf("insert phase change: %w", err)
		}
	}
	return tx.Commit()
}

// PhaseChanges returns the transitions of a session in the order they happened.
func (db *DB) PhaseChanges(ctx context.Context, sessionID string) ([]PhaseChangeRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT tick, ts_unix_nanos, from_phase, to_phase, reason
		   FROM phase_changes WHERE session_id = ? ORDER BY change_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query phase changes: %w", err)
	}
	defer rows.Close()

	var out []PhaseChangeRecord
	for rows.Next() {
		var (
			r          PhaseChangeRecord
			tick, ts   int64
			from, to   string
			reasonText string
		)
		if err := rows.Scan(&tick, &ts, &from, &to, &reasonText); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		r.At = time.Unix(0, ts).UTC()
		r.From = junction.Phase(from)
		r.To = junction.Phase(to)
		r.Reason = junction.Reason(reasonText)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TickCounts is a stored count row.
type TickCounts struct {
	Tick      uint64
	At        time.Time
	Phase     junction.Phase
	Counts    junction.Counts
	PassedNow int
}

// LatestCounts returns the most recent stored counts of a session.
func (db *DB) LatestCounts(ctx context.Context, sessionID string) (*TickCounts, error) {
	var (
		tc       TickCounts
		tick, ts int64
		phase    string
	)
	err := db.QueryRowContext(ctx,
		`SELECT tick, ts_unix_nanos, phase, north, east, south, west, passed_now
		   FROM tick_counts WHERE session_id = ? ORDER BY tick DESC LIMIT 1`,
		sessionID,
	).Scan(&tick, &ts, &phase,
		&tc.Counts[junction.North], &tc.Counts[junction.East],
		&tc.Counts[junction.South], &tc.Counts[junction.West],
		&tc.PassedNow,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest counts: %w", err)
	}
	tc.Tick = uint64(tick)
	tc.At = time.Unix(0, ts).UTC()
	tc.Phase = junction.Phase(phase)
	return &tc, nil
}
