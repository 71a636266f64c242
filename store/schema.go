/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

// schema is applied idempotently at startup. The approval_queue table is a
// forward-compatible extension: the schema declares it but no relay code
// writes or reads it.
const schema = `
CREATE TABLE IF NOT EXISTS relay_events (
	event_id        TEXT PRIMARY KEY,
	repo            TEXT NOT NULL,
	issue_number    INTEGER NOT NULL,
	event_type      TEXT NOT NULL,
	role            TEXT NOT NULL,
	agent           TEXT NOT NULL,
	overall_verdict TEXT,
	payload_hash    TEXT NOT NULL,
	payload_json    JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS relay_events_issue_idx
	ON relay_events (repo, issue_number, created_at DESC);

CREATE INDEX IF NOT EXISTS relay_events_type_idx
	ON relay_events (repo, issue_number, event_type, created_at DESC);

CREATE TABLE IF NOT EXISTS rolling_comments (
	repo         TEXT NOT NULL,
	issue_number INTEGER NOT NULL,
	comment_id   BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (repo, issue_number)
);

CREATE TABLE IF NOT EXISTS evidence_assets (
	id           UUID PRIMARY KEY,
	repo         TEXT NOT NULL,
	issue_number INTEGER NOT NULL,
	event_id     TEXT,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes   BIGINT NOT NULL,
	object_key   TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS approval_queue (
	id           UUID PRIMARY KEY,
	repo         TEXT NOT NULL,
	issue_number INTEGER NOT NULL,
	event_id     TEXT,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL
);
`
