/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package provenance verifies that a reported build commit matches the head
// of the pull request it claims to come from, and applies the verdict
// downgrade rule for unverified PASS results.
package provenance

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/agentrelay/event"
)

// HeadFetcher resolves the current head SHA of a pull request.
type HeadFetcher interface {
	PRHeadSHA(ctx context.Context, repo string, pr int) (string, error)
}

// Result captures the outcome of a provenance check. Verified is nil when
// the event carries no (pr, commit_sha) pair to check.
type Result struct {
	Verified *bool
	HeadSHA  string
}

// Verify compares the event's reported commit against the PR head with a
// case-insensitive equality check.
func Verify(ctx context.Context, f HeadFetcher, repo string, build *event.Build) (Result, error) {
	if build == nil || build.PR == 0 || build.CommitSHA == "" {
		return Result{}, nil
	}

	head, err := f.PRHeadSHA(ctx, repo, build.PR)
	if err != nil {
		return Result{}, fmt.Errorf("fetch PR %d head: %w", build.PR, err)
	}

	verified := strings.EqualFold(build.CommitSHA, head)
	return Result{Verified: &verified, HeadSHA: strings.ToLower(head)}, nil
}

// EffectiveVerdict applies the downgrade rule: a PASS whose provenance
// failed verification becomes PASS_UNVERIFIED. Every other combination
// passes through the reported verdict verbatim.
func EffectiveVerdict(reported event.Verdict, verified *bool) event.Verdict {
	if reported == event.VerdictPass && verified != nil && !*verified {
		return event.VerdictPassUnverified
	}
	return reported
}
