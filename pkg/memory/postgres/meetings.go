package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/meetscribe/pkg/memory"
)

// pgForeignKeyViolation is the SQLSTATE raised when an entry references a
// meeting that does not exist.
const pgForeignKeyViolation = "23503"

const meetingColumns = "id, owner_id, title, format, sample_rate, window_size, windows, started_at, ended_at"

// CreateMeeting implements [memory.Store].
func (s *Store) CreateMeeting(ctx context.Context, m memory.Meeting) (memory.Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	} else if _, err := uuid.Parse(m.ID); err != nil {
		return memory.Meeting{}, fmt.Errorf("postgres store: create meeting: invalid id %q: %w", m.ID, err)
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = s.now().UTC()
	}

	const q = `
		INSERT INTO meetings (id, owner_id, title, format, sample_rate, window_size, windows, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		m.ID,
		m.OwnerID,
		m.Title,
		m.Format,
		m.SampleRate,
		m.WindowSize,
		int64(m.Windows),
		m.StartedAt,
	)
	if err != nil {
		return memory.Meeting{}, fmt.Errorf("postgres store: create meeting: %w", err)
	}
	return m, nil
}

// FinishMeeting implements [memory.Store].
func (s *Store) FinishMeeting(ctx context.Context, id string, windows uint64) error {
	if !validID(id) {
		return memory.ErrNotFound
	}
	const q = `
		UPDATE meetings
		SET    windows  = windows + $2,
		       ended_at = $3
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, int64(windows), s.now().UTC())
	if err != nil {
		return fmt.Errorf("postgres store: finish meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// ReopenMeeting implements [memory.Store].
func (s *Store) ReopenMeeting(ctx context.Context, id string) error {
	if !validID(id) {
		return memory.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `UPDATE meetings SET ended_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres store: reopen meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// GetMeeting implements [memory.Store].
func (s *Store) GetMeeting(ctx context.Context, id string) (memory.Meeting, error) {
	if !validID(id) {
		return memory.Meeting{}, memory.ErrNotFound
	}
	rows, err := s.pool.Query(ctx, "SELECT "+meetingColumns+" FROM meetings WHERE id = $1", id)
	if err != nil {
		return memory.Meeting{}, fmt.Errorf("postgres store: get meeting: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMeeting)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Meeting{}, memory.ErrNotFound
	}
	if err != nil {
		return memory.Meeting{}, fmt.Errorf("postgres store: get meeting: %w", err)
	}
	return m, nil
}

// ListMeetings implements [memory.Store].
func (s *Store) ListMeetings(ctx context.Context, opts memory.ListOpts) ([]memory.Meeting, error) {
	args := []any{opts.EffectiveLimit()}
	q := "SELECT " + meetingColumns + "\nFROM   meetings\n"
	if opts.OwnerID != "" {
		args = append(args, opts.OwnerID)
		q += "WHERE  owner_id = $2\n"
	}
	q += "ORDER  BY started_at DESC, id DESC\nLIMIT  $1"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list meetings: %w", err)
	}
	meetings, err := pgx.CollectRows(rows, scanMeeting)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan meetings: %w", err)
	}
	if meetings == nil {
		meetings = []memory.Meeting{}
	}
	return meetings, nil
}

// WriteEntry implements [memory.Store].
func (s *Store) WriteEntry(ctx context.Context, meetingID string, entry memory.TranscriptEntry) error {
	if !validID(meetingID) {
		return memory.ErrNotFound
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	const q = `
		INSERT INTO transcript_entries
		    (meeting_id, speaker_id, text, confidence, offset_ns, duration_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		meetingID,
		entry.SpeakerID,
		entry.Text,
		entry.Confidence,
		entry.Offset.Nanoseconds(),
		entry.Duration.Nanoseconds(),
		entry.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return memory.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres store: write entry: %w", err)
	}
	return nil
}

// Transcript implements [memory.Store]. Entries are ordered by insertion.
func (s *Store) Transcript(ctx context.Context, meetingID string) ([]memory.TranscriptEntry, error) {
	if _, err := s.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}

	const q = `
		SELECT speaker_id, text, confidence, offset_ns, duration_ns, created_at
		FROM   transcript_entries
		WHERE  meeting_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: transcript: %w", err)
	}
	return collectEntries(rows)
}

func scanMeeting(row pgx.CollectableRow) (memory.Meeting, error) {
	var (
		m       memory.Meeting
		windows int64
		endedAt *time.Time
	)
	if err := row.Scan(
		&m.ID,
		&m.OwnerID,
		&m.Title,
		&m.Format,
		&m.SampleRate,
		&m.WindowSize,
		&windows,
		&m.StartedAt,
		&endedAt,
	); err != nil {
		return memory.Meeting{}, err
	}
	m.Windows = uint64(windows)
	if endedAt != nil {
		m.EndedAt = *endedAt
	}
	return m, nil
}

// collectEntries scans pgx rows into a slice of TranscriptEntry values.
func collectEntries(rows pgx.Rows) ([]memory.TranscriptEntry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.TranscriptEntry, error) {
		var (
			e                    memory.TranscriptEntry
			offsetNS, durationNS int64
		)
		if err := row.Scan(
			&e.SpeakerID,
			&e.Text,
			&e.Confidence,
			&offsetNS,
			&durationNS,
			&e.CreatedAt,
		); err != nil {
			return memory.TranscriptEntry{}, err
		}
		e.Offset = time.Duration(offsetNS)
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan entries: %w", err)
	}
	if entries == nil {
		entries = []memory.TranscriptEntry{}
	}
	return entries, nil
}

// validID reports whether id can name a meeting. Meeting IDs are UUIDs, so
// anything else cannot exist and is answered without a round trip.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
