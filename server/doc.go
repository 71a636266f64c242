/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package server exposes the relay's HTTP surface.
//
// The v2 surface (event ingestion and the evidence store) authenticates
// with the X-Relay-Key shared secret and drives the event pipeline:
// validate, hash, idempotency check, provenance verification, event insert,
// rolling-comment upsert, and label transitions. The v1 surface is a set of
// thin bearer-token wrappers over the forge for agents that only need to
// comment, close, or relabel.
package server
