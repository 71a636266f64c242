/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"chainguard.dev/agentrelay/event"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateEvent is returned when an insert loses the event_id
	// uniqueness race to a concurrent writer.
	ErrDuplicateEvent = errors.New("store: duplicate event_id")
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// EventRecord is a stored event row. OverallVerdict holds the effective
// verdict (post provenance downgrade); PayloadJSON and PayloadHash reflect
// the caller's canonical payload verbatim so replays compare byte-for-byte.
type EventRecord struct {
	EventID        string
	Repo           string
	IssueNumber    int
	EventType      string
	Role           event.Role
	Agent          string
	OverallVerdict event.Verdict
	PayloadHash    string
	PayloadJSON    []byte
	CreatedAt      time.Time
}

// Payload unmarshals the stored canonical payload.
func (r *EventRecord) Payload() (*event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal(r.PayloadJSON, &ev); err != nil {
		return nil, fmt.Errorf("decode stored payload %s: %w", r.EventID, err)
	}
	return &ev, nil
}

// EvidenceAsset is a row in the evidence index. Objects are immutable.
type EvidenceAsset struct {
	ID          string
	Repo        string
	IssueNumber int
	EventID     string
	Filename    string
	ContentType string
	SizeBytes   int64
	ObjectKey   string
	CreatedAt   time.Time
}

// Store wraps the relay's Postgres database.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing database handle. Used by tests.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the schema idempotently.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const eventColumns = `event_id, repo, issue_number, event_type, role, agent, overall_verdict, payload_hash, payload_json, created_at`

// GetEvent looks up an event by its caller-supplied id.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*EventRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM relay_events WHERE event_id = $1`, eventID)
	return scanEvent(row)
}

// InsertEvent appends a new event row. The event_id primary key makes the
// insert the serialization point for idempotency: losing the race surfaces
// as ErrDuplicateEvent.
func (s *Store) InsertEvent(ctx context.Context, rec *EventRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relay_events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.EventID, rec.Repo, rec.IssueNumber, rec.EventType, string(rec.Role), rec.Agent,
		nullString(string(rec.OverallVerdict)), rec.PayloadHash, rec.PayloadJSON, rec.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("inserting event %s: %w", rec.EventID, err)
	}
	return nil
}

// LatestByType returns the most recent event of a given type for an issue.
func (s *Store) LatestByType(ctx context.Context, repo string, issue int, eventType string) (*EventRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM relay_events
		 WHERE repo = $1 AND issue_number = $2 AND event_type = $3
		 ORDER BY created_at DESC LIMIT 1`, repo, issue, eventType)
	return scanEvent(row)
}

// RecentActivity returns the newest events for an issue, most recent first.
func (s *Store) RecentActivity(ctx context.Context, repo string, issue, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM relay_events
		 WHERE repo = $1 AND issue_number = $2
		 ORDER BY created_at DESC LIMIT $3`, repo, issue, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent activity: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// RollingComment returns the mapped comment id for an issue, if any.
func (s *Store) RollingComment(ctx context.Context, repo string, issue int) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT comment_id FROM rolling_comments WHERE repo = $1 AND issue_number = $2`,
		repo, issue).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying rolling comment: %w", err)
	}
	return id, true, nil
}

// SetRollingComment records the comment id carrying the status marker,
// bumping updated_at on conflict. At most one row exists per issue.
func (s *Store) SetRollingComment(ctx context.Context, repo string, issue int, commentID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rolling_comments (repo, issue_number, comment_id, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (repo, issue_number)
		 DO UPDATE SET comment_id = EXCLUDED.comment_id, updated_at = EXCLUDED.updated_at`,
		repo, issue, commentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting rolling comment: %w", err)
	}
	return nil
}

// InsertEvidence records an uploaded evidence asset in the index.
func (s *Store) InsertEvidence(ctx context.Context, a *EvidenceAsset) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evidence_assets (id, repo, issue_number, event_id, filename, content_type, size_bytes, object_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Repo, a.IssueNumber, nullString(a.EventID), a.Filename, a.ContentType,
		a.SizeBytes, a.ObjectKey, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting evidence %s: %w", a.ID, err)
	}
	return nil
}

// GetEvidence looks up an evidence asset by id.
func (s *Store) GetEvidence(ctx context.Context, id string) (*EvidenceAsset, error) {
	var (
		a       EvidenceAsset
		eventID sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, repo, issue_number, event_id, filename, content_type, size_bytes, object_key, created_at
		 FROM evidence_assets WHERE id = $1`, id).
		Scan(&a.ID, &a.Repo, &a.IssueNumber, &eventID, &a.Filename, &a.ContentType,
			&a.SizeBytes, &a.ObjectKey, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying evidence %s: %w", id, err)
	}
	a.EventID = eventID.String
	return &a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*EventRecord, error) {
	var (
		rec     EventRecord
		role    string
		verdict sql.NullString
	)
	err := row.Scan(&rec.EventID, &rec.Repo, &rec.IssueNumber, &rec.EventType, &role,
		&rec.Agent, &verdict, &rec.PayloadHash, &rec.PayloadJSON, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning event row: %w", err)
	}
	rec.Role = event.Role(role)
	rec.OverallVerdict = event.Verdict(verdict.String)
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
