/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package event defines the relay's lifecycle event model: the canonical
// normalized form of an inbound event, the closed verdict and role enums,
// payload validation, and the deterministic payload hash used for
// idempotency checks.
//
// An Event is immutable once stored. Parse is the single entry point for
// inbound payloads: it validates, normalizes (string→int coercions, SHA
// lowercasing), and returns a form whose JSON serialization is byte-stable,
// so re-submitting the same logical event always produces the same hash.
package event
