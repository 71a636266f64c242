/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package labelmanager applies declarative label transitions to issues.
//
// Rules form a two-level map keyed by event_type then verdict, where the
// literal "_" matches events without a verdict (or without a more specific
// rule). A matched rule contributes add/remove sets; the engine computes
// next = (current ∪ add) \ remove and replaces the full label set in a
// single atomic forge call, preserving labels no rule mentions.
package labelmanager

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/agentrelay/event"
)

// wildcard matches when no verdict-specific rule applies.
const wildcard = "_"

// Delta is the add/remove set a rule contributes.
type Delta struct {
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// Rules maps event_type → verdict key → delta.
type Rules map[string]map[string]Delta

// Forge is the single mutation the engine needs.
type Forge interface {
	ReplaceLabels(ctx context.Context, repo string, number int, labels []string) ([]string, error)
}

// ParseRules decodes the rules blob from configuration. Invalid JSON is a
// configuration mistake, not a fatal error: the engine degrades to a no-op
// and logs what it saw.
func ParseRules(ctx context.Context, raw string) Rules {
	if raw == "" {
		return nil
	}
	var rules Rules
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		clog.FromContext(ctx).With("error", err).Warn("Invalid label rules JSON, label transitions disabled")
		return nil
	}
	return rules
}

// Lookup resolves the delta for an (event_type, verdict) pair: exact verdict
// key first, then the wildcard. The zero verdict only matches the wildcard.
func (r Rules) Lookup(eventType string, verdict event.Verdict) (Delta, bool) {
	byVerdict, ok := r[eventType]
	if !ok {
		return Delta{}, false
	}
	if verdict != "" {
		if d, ok := byVerdict[string(verdict)]; ok {
			return d, true
		}
	}
	d, ok := byVerdict[wildcard]
	return d, ok
}

// Next computes (current ∪ add) \ remove, keeping current order stable and
// appending additions in rule order.
func Next(current []string, d Delta) []string {
	next := make([]string, 0, len(current)+len(d.Add))
	for _, l := range current {
		if !slices.Contains(d.Remove, l) && !slices.Contains(next, l) {
			next = append(next, l)
		}
	}
	for _, l := range d.Add {
		if !slices.Contains(d.Remove, l) && !slices.Contains(next, l) {
			next = append(next, l)
		}
	}
	return next
}

// Apply runs the transition for one event against the issue's current
// labels. It returns whether a replace call was issued. A rule that changes
// nothing still replaces, keeping the forge authoritative for ordering.
func (r Rules) Apply(ctx context.Context, f Forge, repo string, issue int, eventType string, verdict event.Verdict, current []string) (bool, error) {
	d, ok := r.Lookup(eventType, verdict)
	if !ok {
		return false, nil
	}

	next := Next(current, d)
	if _, err := f.ReplaceLabels(ctx, repo, issue, next); err != nil {
		return false, err
	}
	clog.FromContext(ctx).With("repo", repo, "issue", issue, "labels", next).Info("Replaced issue labels")
	return true, nil
}
