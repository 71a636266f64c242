/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package store persists relay state in Postgres: the append-only event log,
// the rolling-comment mapping, and the evidence index. Event rows are never
// updated or deleted; idempotency is enforced by the event_id primary key,
// so concurrent inserts of the same id serialize at the database.
package store
