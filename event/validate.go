/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	repoPattern = regexp.MustCompile(`^[^/]+/[^/]+$`)
	shaPattern  = regexp.MustCompile(`^[0-9a-f]{7,40}$`)
)

// ValidationError describes the first rule an inbound payload violated.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// flexInt accepts JSON numbers and numeric strings. Callers routinely emit
// issue numbers and PR numbers as strings, so both forms coerce to int.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", data)
	}
	*f = flexInt(n)
	return nil
}

// submission is the loose wire form of an inbound event. Unknown fields end
// up in Event.Extra; everything else is validated and normalized into the
// canonical Event.
type submission struct {
	EventID        string          `json:"event_id"`
	Repo           string          `json:"repo"`
	IssueNumber    flexInt         `json:"issue_number"`
	EventType      string          `json:"event_type"`
	Role           string          `json:"role"`
	Agent          string          `json:"agent"`
	Environment    string          `json:"environment"`
	OverallVerdict string          `json:"overall_verdict"`
	Build          *wireBuild      `json:"build"`
	ScopeResults   []wireScope     `json:"scope_results"`
	Severity       string          `json:"severity"`
	ReproSteps     string          `json:"repro_steps"`
	Expected       string          `json:"expected"`
	Actual         string          `json:"actual"`
	Summary        string          `json:"summary"`
	EvidenceURLs   []string        `json:"evidence_urls"`
	Artifacts      json.RawMessage `json:"artifacts"`
	Details        json.RawMessage `json:"details"`
}

type wireBuild struct {
	CommitSHA string  `json:"commit_sha"`
	PR        flexInt `json:"pr"`
}

type wireScope struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// knownFields are the top-level keys consumed by the submission form; any
// other key is carried through into Event.Extra.
var knownFields = map[string]bool{
	"event_id": true, "repo": true, "issue_number": true, "event_type": true,
	"role": true, "agent": true, "environment": true, "overall_verdict": true,
	"build": true, "scope_results": true, "severity": true, "repro_steps": true,
	"expected": true, "actual": true, "summary": true, "evidence_urls": true,
	"artifacts": true, "details": true,
}

// Parse validates and normalizes a raw JSON payload into its canonical form.
// It fails with a *ValidationError naming the first violated rule.
func Parse(data []byte) (*Event, error) {
	var sub submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, invalidf("invalid JSON payload: %v", err)
	}

	if len(sub.EventID) < 8 {
		return nil, invalidf("event_id must be at least 8 characters")
	}
	if !repoPattern.MatchString(sub.Repo) {
		return nil, invalidf("repo must look like <owner>/<name>")
	}
	if sub.IssueNumber <= 0 {
		return nil, invalidf("issue_number must be a positive integer")
	}
	if sub.EventType == "" {
		return nil, invalidf("event_type is required")
	}
	role := Role(strings.ToUpper(sub.Role))
	if !validRoles[role] {
		return nil, invalidf("role must be one of QA, DEV, PM, MENTOR")
	}
	if len(sub.Agent) < 2 {
		return nil, invalidf("agent must be at least 2 characters")
	}
	if sub.Environment != "" && !validEnvironments[sub.Environment] {
		return nil, invalidf("environment must be one of preview, production, dev")
	}

	verdict := Verdict(sub.OverallVerdict)
	if verdict != "" && !validVerdicts[verdict] {
		return nil, invalidf("overall_verdict %q is not a recognized verdict", sub.OverallVerdict)
	}

	ev := &Event{
		EventID:        sub.EventID,
		Repo:           sub.Repo,
		IssueNumber:    int(sub.IssueNumber),
		EventType:      sub.EventType,
		Role:           role,
		Agent:          sub.Agent,
		Environment:    sub.Environment,
		OverallVerdict: verdict,
		Severity:       sub.Severity,
		ReproSteps:     sub.ReproSteps,
		Expected:       sub.Expected,
		Actual:         sub.Actual,
		Summary:        sub.Summary,
		EvidenceURLs:   sub.EvidenceURLs,
		Artifacts:      compact(sub.Artifacts),
		Details:        compact(sub.Details),
	}

	if sub.Build != nil {
		sha := strings.ToLower(sub.Build.CommitSHA)
		if !shaPattern.MatchString(sha) {
			return nil, invalidf("build.commit_sha must be 7-40 hex characters")
		}
		if sub.Build.PR < 0 {
			return nil, invalidf("build.pr must be a positive integer")
		}
		ev.Build = &Build{CommitSHA: sha, PR: int(sub.Build.PR)}
	}

	if sub.ScopeResults != nil {
		if len(sub.ScopeResults) == 0 {
			return nil, invalidf("scope_results must not be empty when present")
		}
		for i, sr := range sub.ScopeResults {
			if sr.ID == "" {
				return nil, invalidf("scope_results[%d].id must not be empty", i)
			}
			status := ScopeStatus(strings.ToUpper(sr.Status))
			if !validScopeStatuses[status] {
				return nil, invalidf("scope_results[%d].status must be one of PASS, FAIL, SKIPPED", i)
			}
			ev.ScopeResults = append(ev.ScopeResults, ScopeResult{ID: sr.ID, Status: status, Notes: sr.Notes})
		}
	}

	// FAIL and BLOCKED verdicts require triage fields.
	if verdict == VerdictFail || verdict == VerdictBlocked {
		if !validSeverities[sub.Severity] {
			return nil, invalidf("severity (P0-P3) is required when overall_verdict is %s", verdict)
		}
		for _, f := range []struct{ name, value string }{
			{"repro_steps", sub.ReproSteps},
			{"expected", sub.Expected},
			{"actual", sub.Actual},
		} {
			if len(f.value) < 3 {
				return nil, invalidf("%s (min length 3) is required when overall_verdict is %s", f.name, verdict)
			}
		}
	} else if sub.Severity != "" && !validSeverities[sub.Severity] {
		return nil, invalidf("severity must be one of P0, P1, P2, P3")
	}

	extra, err := unknownFields(data)
	if err != nil {
		return nil, invalidf("invalid JSON payload: %v", err)
	}
	ev.Extra = extra

	return ev, nil
}

// unknownFields collects top-level keys outside the documented schema so
// they survive into the stored payload.
func unknownFields(data []byte) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if knownFields[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = compact(v)
	}
	return extra, nil
}

// compact normalizes raw JSON whitespace so equivalent submissions hash
// identically.
func compact(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
