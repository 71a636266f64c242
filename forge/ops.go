/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package forge

import (
	"context"
	"strings"

	"github.com/google/go-github/v84/github"
)

// commentsPerPage matches the forge's maximum page size.
const commentsPerPage = 100

// PRHeadSHA returns the lowercase head commit SHA of a pull request.
func (c *Client) PRHeadSHA(ctx context.Context, repo string, pr int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	gh, err := c.installation(ctx)
	if err != nil {
		return "", err
	}
	p, _, err := gh.PullRequests.Get(ctx, owner, name, pr)
	if err != nil {
		return "", wrapErr("get pull request", err)
	}
	return strings.ToLower(p.GetHead().GetSHA()), nil
}

// GetIssue fetches an issue with its labels and assignees.
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (*github.Issue, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	gh, err := c.installation(ctx)
	if err != nil {
		return nil, err
	}
	issue, _, err := gh.Issues.Get(ctx, owner, name, number)
	if err != nil {
		return nil, wrapErr("get issue", err)
	}
	return issue, nil
}

// ListComments returns one page of issue comments (100 per page, 1-based).
func (c *Client) ListComments(ctx context.Context, repo string, number, page int) ([]*github.IssueComment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	gh, err := c.installation(ctx)
	if err != nil {
		return nil, err
	}
	comments, _, err := gh.Issues.ListComments(ctx, owner, name, number, &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{Page: page, PerPage: commentsPerPage},
	})
	if err != nil {
		return nil, wrapErr("list comments", err)
	}
	return comments, nil
}

// CreateComment posts a new comment on an issue.
func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (*github.IssueComment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	gh, err := c.installation(ctx)
	if err != nil {
		return nil, err
	}
	comment, _, err := gh.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return nil, wrapErr("create comment", err)
	}
	return comment, nil
}

// UpdateComment replaces the body of an existing issue comment.
func (c *Client) UpdateComment(ctx context.Context, repo string, commentID int64, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	gh, err := c.installation(ctx)
	if err != nil {
		return err
	}
	if _, _, err := gh.Issues.EditComment(ctx, owner, name, commentID, &github.IssueComment{
		Body: github.Ptr(body),
	}); err != nil {
		return wrapErr("update comment", err)
	}
	return nil
}

// ReplaceLabels swaps the issue's full label set in one atomic call.
func (c *Client) ReplaceLabels(ctx context.Context, repo string, number int, labels []string) ([]string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	gh, err := c.installation(ctx)
	if err != nil {
		return nil, err
	}
	applied, _, err := gh.Issues.ReplaceLabelsForIssue(ctx, owner, name, number, labels)
	if err != nil {
		return nil, wrapErr("replace labels", err)
	}
	names := make([]string, 0, len(applied))
	for _, l := range applied {
		names = append(names, l.GetName())
	}
	return names, nil
}

// CloseIssue marks an issue closed.
func (c *Client) CloseIssue(ctx context.Context, repo string, number int) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	gh, err := c.installation(ctx)
	if err != nil {
		return err
	}
	if _, _, err := gh.Issues.Edit(ctx, owner, name, number, &github.IssueRequest{
		State: github.Ptr("closed"),
	}); err != nil {
		return wrapErr("close issue", err)
	}
	return nil
}
