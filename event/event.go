/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Role identifies the kind of agent that emitted an event.
type Role string

const (
	RoleQA     Role = "QA"
	RoleDev    Role = "DEV"
	RolePM     Role = "PM"
	RoleMentor Role = "MENTOR"
)

// Verdict is the closed set of outcomes a QA or DEV run can report.
// PASS_UNVERIFIED is produced by the provenance downgrade rule;
// FAIL_UNCONFIRMED is accepted from callers but never synthesized.
type Verdict string

const (
	VerdictPass            Verdict = "PASS"
	VerdictFail            Verdict = "FAIL"
	VerdictBlocked         Verdict = "BLOCKED"
	VerdictPassUnverified  Verdict = "PASS_UNVERIFIED"
	VerdictFailUnconfirmed Verdict = "FAIL_UNCONFIRMED"
)

// ScopeStatus is the per-scope outcome inside a QA result.
type ScopeStatus string

const (
	ScopePass    ScopeStatus = "PASS"
	ScopeFail    ScopeStatus = "FAIL"
	ScopeSkipped ScopeStatus = "SKIPPED"
)

// Severity buckets for FAIL/BLOCKED verdicts.
const (
	SeverityP0 = "P0"
	SeverityP1 = "P1"
	SeverityP2 = "P2"
	SeverityP3 = "P3"
)

// Build references the artifact an event reports on.
type Build struct {
	CommitSHA string `json:"commit_sha"`
	PR        int    `json:"pr,omitempty"`
}

// ScopeResult is a single validated scope line within a QA result.
type ScopeResult struct {
	ID     string      `json:"id"`
	Status ScopeStatus `json:"status"`
	Notes  string      `json:"notes,omitempty"`
}

// Event is the canonical normalized form of a relay event.
//
// Field order is load-bearing: the canonical JSON serialization (and
// therefore the payload hash) follows struct order, so fields must not be
// reordered once events exist in storage.
type Event struct {
	EventID        string          `json:"event_id"`
	Repo           string          `json:"repo"`
	IssueNumber    int             `json:"issue_number"`
	EventType      string          `json:"event_type"`
	Role           Role            `json:"role"`
	Agent          string          `json:"agent"`
	Environment    string          `json:"environment,omitempty"`
	OverallVerdict Verdict         `json:"overall_verdict,omitempty"`
	Build          *Build          `json:"build,omitempty"`
	ScopeResults   []ScopeResult   `json:"scope_results,omitempty"`
	Severity       string          `json:"severity,omitempty"`
	ReproSteps     string          `json:"repro_steps,omitempty"`
	Expected       string          `json:"expected,omitempty"`
	Actual         string          `json:"actual,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	EvidenceURLs   []string        `json:"evidence_urls,omitempty"`
	Artifacts      json.RawMessage `json:"artifacts,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`

	// Extra preserves unknown top-level fields from the caller's payload.
	// Map keys serialize sorted, keeping the canonical form deterministic.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// CanonicalJSON returns the canonical serialization of the event. Calling it
// twice on the same event yields byte-identical output.
func (e *Event) CanonicalJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical payload: %w", err)
	}
	return data, nil
}

// PayloadHash returns the SHA-256 hex digest of the canonical serialization.
func (e *Event) PayloadHash() (string, error) {
	data, err := e.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HasVerdict reports whether the event carries an overall verdict.
func (e *Event) HasVerdict() bool {
	return e.OverallVerdict != ""
}

// validVerdicts is the closed set accepted from callers.
var validVerdicts = map[Verdict]bool{
	VerdictPass:            true,
	VerdictFail:            true,
	VerdictBlocked:         true,
	VerdictPassUnverified:  true,
	VerdictFailUnconfirmed: true,
}

var validRoles = map[Role]bool{
	RoleQA:     true,
	RoleDev:    true,
	RolePM:     true,
	RoleMentor: true,
}

var validScopeStatuses = map[ScopeStatus]bool{
	ScopePass:    true,
	ScopeFail:    true,
	ScopeSkipped: true,
}

var validSeverities = map[string]bool{
	SeverityP0: true,
	SeverityP1: true,
	SeverityP2: true,
	SeverityP3: true,
}

var validEnvironments = map[string]bool{
	"preview":    true,
	"production": true,
	"dev":        true,
}
