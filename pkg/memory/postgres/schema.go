// Package postgres provides a PostgreSQL-backed [memory.Store].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	m, _ := store.CreateMeeting(ctx, memory.Meeting{OwnerID: sub})
//	_ = store.WriteEntry(ctx, m.ID, entry)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlMeetings = `
CREATE TABLE IF NOT EXISTS meetings (
    id           TEXT         PRIMARY KEY,
    owner_id     TEXT         NOT NULL DEFAULT '',
    title        TEXT         NOT NULL DEFAULT '',
    format       TEXT         NOT NULL DEFAULT '',
    sample_rate  INTEGER      NOT NULL DEFAULT 0,
    window_size  INTEGER      NOT NULL DEFAULT 0,
    windows      BIGINT       NOT NULL DEFAULT 0,
    started_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_meetings_owner_started
    ON meetings (owner_id, started_at DESC);

CREATE INDEX IF NOT EXISTS idx_meetings_started
    ON meetings (started_at DESC);
`

const ddlTranscriptEntries = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id           BIGSERIAL    PRIMARY KEY,
    meeting_id   TEXT         NOT NULL REFERENCES meetings (id) ON DELETE CASCADE,
    speaker_id   TEXT         NOT NULL DEFAULT '',
    text         TEXT         NOT NULL,
    confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
    offset_ns    BIGINT       NOT NULL DEFAULT 0,
    duration_ns  BIGINT       NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_meeting
    ON transcript_entries (meeting_id, id);
`

// Migrate creates or ensures all required tables exist. It is idempotent
// (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and safe to call
// on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlMeetings, ddlTranscriptEntries} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
