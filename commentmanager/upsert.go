/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package commentmanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// maxScanPages bounds the marker scan. A legitimate marker comment beyond
// page 3 (~300 comments) is missed and a duplicate created; a later upsert's
// scan converges on one of them.
const maxScanPages = 3

// Forge is the comment surface of the forge client.
type Forge interface {
	ListComments(ctx context.Context, repo string, number, page int) ([]*github.IssueComment, error)
	CreateComment(ctx context.Context, repo string, number int, body string) (*github.IssueComment, error)
	UpdateComment(ctx context.Context, repo string, commentID int64, body string) error
}

// Mapping persists the (repo, issue) → comment id association.
type Mapping interface {
	RollingComment(ctx context.Context, repo string, issue int) (int64, bool, error)
	SetRollingComment(ctx context.Context, repo string, issue int, commentID int64) error
}

// Manager upserts the rolling status comment.
type Manager struct {
	forge   Forge
	mapping Mapping
}

// New constructs a Manager.
func New(forge Forge, mapping Mapping) *Manager {
	return &Manager{forge: forge, mapping: mapping}
}

// Upsert writes body as the issue's single rolling comment and returns the
// comment id. Lookup order: mapped comment id, marker scan, create. An
// update failure (deleted comment, lost permission) is a cue to fall
// through, not an error.
func (m *Manager) Upsert(ctx context.Context, repo string, issue int, body string) (int64, error) {
	log := clog.FromContext(ctx)

	if id, ok, err := m.mapping.RollingComment(ctx, repo, issue); err != nil {
		return 0, fmt.Errorf("rolling comment lookup: %w", err)
	} else if ok {
		if err := m.forge.UpdateComment(ctx, repo, id, body); err == nil {
			if err := m.mapping.SetRollingComment(ctx, repo, issue, id); err != nil {
				return 0, fmt.Errorf("refresh comment mapping: %w", err)
			}
			return id, nil
		}
		log.With("comment_id", id).Info("Mapped comment update failed, falling back to marker scan")
	}

	if id, found, err := m.scan(ctx, repo, issue); err != nil {
		return 0, err
	} else if found {
		if err := m.forge.UpdateComment(ctx, repo, id, body); err != nil {
			log.With("comment_id", id, "error", err).Info("Scanned comment update failed, creating a new comment")
		} else {
			if err := m.mapping.SetRollingComment(ctx, repo, issue, id); err != nil {
				return 0, fmt.Errorf("record comment mapping: %w", err)
			}
			return id, nil
		}
	}

	comment, err := m.forge.CreateComment(ctx, repo, issue, body)
	if err != nil {
		return 0, fmt.Errorf("create rolling comment: %w", err)
	}
	id := comment.GetID()
	if err := m.mapping.SetRollingComment(ctx, repo, issue, id); err != nil {
		return 0, fmt.Errorf("record comment mapping: %w", err)
	}
	log.With("comment_id", id).Info("Created rolling comment")
	return id, nil
}

// scan pages through issue comments looking for the marker.
func (m *Manager) scan(ctx context.Context, repo string, issue int) (int64, bool, error) {
	for page := 1; page <= maxScanPages; page++ {
		comments, err := m.forge.ListComments(ctx, repo, issue, page)
		if err != nil {
			return 0, false, fmt.Errorf("scan comments page %d: %w", page, err)
		}
		for _, c := range comments {
			if strings.Contains(c.GetBody(), Marker) {
				return c.GetID(), true, nil
			}
		}
		if len(comments) == 0 {
			break
		}
	}
	return 0, false, nil
}
