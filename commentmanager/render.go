/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package commentmanager

import (
	"fmt"
	"strings"
	"time"

	"chainguard.dev/agentrelay/event"
)

// Marker identifies the rolling status comment. It must stay byte-exact
// across updates: it is the sole identity signal for marker scans.
const Marker = "<!-- RELAY_STATUS v2 -->"

// Activity is one line of the recent-activity section.
type Activity struct {
	At        time.Time
	EventType string
	Agent     string
}

// Inputs is everything the renderer needs. Render(Inputs) is pure: the same
// inputs always produce byte-identical markdown.
type Inputs struct {
	IssueNumber int
	Labels      []string
	Owner       string // first assignee login, empty when unassigned

	// Build provenance from the triggering event.
	Environment string
	PR          int
	CommitSHA   string
	Verified    *bool
	HeadSHA     string

	LatestDev *event.Event
	LatestQA  *event.Event
	QAVerdict event.Verdict // effective verdict of the latest QA event

	Recent []Activity
}

// Render produces the rolling comment body, marker first.
func Render(in Inputs) string {
	var sb strings.Builder
	sb.WriteString(Marker)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "## Relay Status — ISSUE #%d\n\n", in.IssueNumber)

	sb.WriteString("### Current State\n")
	fmt.Fprintf(&sb, "- **Status:** %s\n", statusLabel(in.Labels))
	fmt.Fprintf(&sb, "- **Labels:** %s\n", orNA(strings.Join(in.Labels, ", ")))
	owner := "unassigned"
	if in.Owner != "" {
		owner = "@" + in.Owner
	}
	fmt.Fprintf(&sb, "- **Owner:** %s\n\n", owner)

	sb.WriteString("### Build Provenance\n")
	fmt.Fprintf(&sb, "- **Environment:** %s\n", orNA(in.Environment))
	pr := "n/a"
	if in.PR > 0 {
		pr = fmt.Sprintf("#%d", in.PR)
	}
	fmt.Fprintf(&sb, "- **PR:** %s\n", pr)
	commit := "n/a"
	if in.CommitSHA != "" {
		commit = "`" + shortSHA(in.CommitSHA) + "`"
	}
	fmt.Fprintf(&sb, "- **Commit:** %s\n", commit)
	fmt.Fprintf(&sb, "- **Provenance:** %s\n\n", provenanceLine(in.Verified, in.HeadSHA))

	sb.WriteString("### Latest Dev Update\n")
	if in.LatestDev != nil && in.LatestDev.Summary != "" {
		sb.WriteString(in.LatestDev.Summary)
	} else {
		sb.WriteString("n/a")
	}
	sb.WriteString("\n\n")

	sb.WriteString("### Latest QA Result\n")
	verdict := "n/a"
	if in.QAVerdict != "" {
		verdict = "`" + string(in.QAVerdict) + "`"
	}
	fmt.Fprintf(&sb, "- **Verdict:** %s\n", verdict)
	if in.LatestQA != nil && len(in.LatestQA.ScopeResults) > 0 {
		sb.WriteString("- **Scopes:**\n")
		for _, sr := range in.LatestQA.ScopeResults {
			if sr.Notes != "" {
				fmt.Fprintf(&sb, "  - %s: %s — %s\n", sr.ID, sr.Status, sr.Notes)
			} else {
				fmt.Fprintf(&sb, "  - %s: %s\n", sr.ID, sr.Status)
			}
		}
	} else {
		sb.WriteString("- **Scopes:** n/a\n")
	}
	if in.LatestQA != nil && len(in.LatestQA.EvidenceURLs) > 0 {
		fmt.Fprintf(&sb, "- **Evidence:** %s\n\n", strings.Join(in.LatestQA.EvidenceURLs, ", "))
	} else {
		sb.WriteString("- **Evidence:** n/a\n\n")
	}

	sb.WriteString("### Recent Activity\n")
	if len(in.Recent) == 0 {
		sb.WriteString("n/a\n")
	}
	for _, a := range in.Recent {
		fmt.Fprintf(&sb, "- %s — %s — %s\n", a.At.UTC().Format("15:04Z"), a.EventType, a.Agent)
	}

	return sb.String()
}

// provenanceLine renders the verification flag: n/a when the event carried
// nothing to verify, otherwise the verified/unverified verdict.
func provenanceLine(verified *bool, headSHA string) string {
	switch {
	case verified == nil:
		return "n/a"
	case *verified:
		return "VERIFIED (matches PR head)"
	default:
		return fmt.Sprintf("UNVERIFIED (PR head: `%s`)", shortSHA(headSHA))
	}
}

// statusLabel picks the first label with the status: prefix.
func statusLabel(labels []string) string {
	for _, l := range labels {
		if strings.HasPrefix(l, "status:") {
			return l
		}
	}
	return "n/a"
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
