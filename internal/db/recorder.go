package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/junction.report/internal/junction"
)

// Recorder is a junction.Sink that persists a session: every phase change,
// plus the cumulative counts every N ticks and on each tick that changed
// the phase.
type Recorder struct {
	db        *DB
	sessionID string
	every     uint64

	last     junction.Snapshot
	lastSeen bool
	lastSave uint64
}

// NewRecorder opens a session. settings is stored as JSON alongside it so a
// run can be reproduced; every is the count row interval in ticks.
func NewRecorder(ctx context.Context, db *DB, startedAt time.Time, settings any, every int) (*Recorder, error) {
	if every <= 0 {
		return nil, fmt.Errorf("record interval must be positive, got %d", every)
	}
	cfgJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session settings: %w", err)
	}
	id, err := db.StartSession(ctx, startedAt, string(cfgJSON))
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, sessionID: id, every: uint64(every)}, nil
}

// SessionID returns the id of the recorded session.
func (r *Recorder) SessionID() string { return r.sessionID }

// Emit implements junction.Sink.
func (r *Recorder) Emit(ctx context.Context, snap junction.Snapshot) error {
	r.last = snap
	r.lastSeen = true

	if err := r.db.RecordPhaseChanges(ctx, r.sessionID, snap.Tick, snap.Decision.Changes); err != nil {
		return err
	}
	if snap.Tick%r.every == 0 || len(snap.Decision.Changes) > 0 {
		return r.save(ctx, snap)
	}
	return nil
}

func (r *Recorder) save(ctx context.Context, snap junction.Snapshot) error {
	if err := r.db.RecordTick(ctx, r.sessionID, snap); err != nil {
		return err
	}
	r.lastSave = snap.Tick
	return nil
}

// Finish writes the final counts if they were not yet stored and closes the
// session with reason.
func (r *Recorder) Finish(ctx context.Context, endedAt time.Time, reason string) error {
	if r.lastSeen && r.lastSave != r.last.Tick {
		if err := r.save(ctx, r.last); err != nil {
			return err
		}
	}
	return r.db.EndSession(ctx, r.sessionID, endedAt, reason)
}
