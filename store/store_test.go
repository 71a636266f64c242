/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"chainguard.dev/agentrelay/event"
)

var eventCols = []string{
	"event_id", "repo", "issue_number", "event_type", "role", "agent",
	"overall_verdict", "payload_hash", "payload_json", "created_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestGetEvent(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM relay_events WHERE event_id`).
		WithArgs("evt-00000001").
		WillReturnRows(sqlmock.NewRows(eventCols).AddRow(
			"evt-00000001", "acme/web", 42, "qa.result_submitted", "QA", "qa-bot",
			"PASS", "deadbeef", []byte(`{"event_id":"evt-00000001"}`), now,
		))

	rec, err := s.GetEvent(context.Background(), "evt-00000001")
	require.NoError(t, err)
	require.Equal(t, "acme/web", rec.Repo)
	require.Equal(t, event.RoleQA, rec.Role)
	require.Equal(t, event.VerdictPass, rec.OverallVerdict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM relay_events WHERE event_id`).
		WithArgs("evt-missing1").
		WillReturnRows(sqlmock.NewRows(eventCols))

	_, err := s.GetEvent(context.Background(), "evt-missing1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInsertEventDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO relay_events`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.InsertEvent(context.Background(), &EventRecord{
		EventID:     "evt-00000001",
		Repo:        "acme/web",
		IssueNumber: 42,
		EventType:   "qa.result_submitted",
		Role:        event.RoleQA,
		Agent:       "qa-bot",
		PayloadHash: "deadbeef",
		PayloadJSON: []byte(`{}`),
		CreatedAt:   time.Now().UTC(),
	})
	require.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestInsertEventOtherErrorWrapped(t *testing.T) {
	s, mock := newMockStore(t)

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO relay_events`).WillReturnError(boom)

	err := s.InsertEvent(context.Background(), &EventRecord{EventID: "evt-00000001"})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrDuplicateEvent)
}

func TestRecentActivityOrdersAndLimits(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(eventCols)
	for i, id := range []string{"evt-00000003", "evt-00000002", "evt-00000001"} {
		rows.AddRow(id, "acme/web", 42, "dev.update", "DEV", "dev-bot",
			nil, "hash", []byte(`{}`), now.Add(-time.Duration(i)*time.Minute))
	}
	mock.ExpectQuery(`SELECT .+ FROM relay_events`).
		WithArgs("acme/web", 42, 5).
		WillReturnRows(rows)

	recs, err := s.RecentActivity(context.Background(), "acme/web", 42, 5)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "evt-00000003", recs[0].EventID)
	require.Empty(t, recs[0].OverallVerdict)
}

func TestRollingCommentRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT comment_id FROM rolling_comments`).
		WithArgs("acme/web", 42).
		WillReturnRows(sqlmock.NewRows([]string{"comment_id"}))

	_, ok, err := s.RollingComment(context.Background(), "acme/web", 42)
	require.NoError(t, err)
	require.False(t, ok)

	mock.ExpectExec(`INSERT INTO rolling_comments`).
		WithArgs("acme/web", 42, int64(777), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetRollingComment(context.Background(), "acme/web", 42, 777))

	mock.ExpectQuery(`SELECT comment_id FROM rolling_comments`).
		WithArgs("acme/web", 42).
		WillReturnRows(sqlmock.NewRows([]string{"comment_id"}).AddRow(int64(777)))

	id, ok, err := s.RollingComment(context.Background(), "acme/web", 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(777), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	asset := &EvidenceAsset{
		ID:          "123e4567-e89b-42d3-a456-426614174000",
		Repo:        "acme/web",
		IssueNumber: 42,
		Filename:    "trace.log",
		ContentType: "text/plain",
		SizeBytes:   128,
		ObjectKey:   "evidence/acme/web/issue-42/123e4567-e89b-42d3-a456-426614174000/trace.log",
		CreatedAt:   now,
	}

	mock.ExpectExec(`INSERT INTO evidence_assets`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.InsertEvidence(context.Background(), asset))

	mock.ExpectQuery(`SELECT .+ FROM evidence_assets WHERE id`).
		WithArgs(asset.ID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "repo", "issue_number", "event_id", "filename", "content_type",
			"size_bytes", "object_key", "created_at",
		}).AddRow(asset.ID, asset.Repo, asset.IssueNumber, nil, asset.Filename,
			asset.ContentType, asset.SizeBytes, asset.ObjectKey, now))

	got, err := s.GetEvidence(context.Background(), asset.ID)
	require.NoError(t, err)
	require.Equal(t, asset.ObjectKey, got.ObjectKey)
	require.Empty(t, got.EventID)
}

func TestGetEvidenceNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM evidence_assets WHERE id`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetEvidence(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}
