/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package evidence stores ancillary evidence blobs (screenshots, logs,
// traces) addressable by an opaque stable id. Bytes live in an object
// store under a deterministic key; a Postgres index row makes them
// discoverable. Neither is ever mutated.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"chainguard.dev/agentrelay/store"
)

// DefaultFilename is used when the upload omits one.
const DefaultFilename = "upload.bin"

// Index is the database surface the service needs.
type Index interface {
	InsertEvidence(ctx context.Context, a *store.EvidenceAsset) error
	GetEvidence(ctx context.Context, id string) (*store.EvidenceAsset, error)
}

// Service handles evidence uploads and retrievals.
type Service struct {
	blobs BlobStore
	index Index
}

// New constructs a Service.
func New(blobs BlobStore, index Index) *Service {
	return &Service{blobs: blobs, index: index}
}

// UploadRequest carries one multipart upload.
type UploadRequest struct {
	Repo        string
	IssueNumber int
	EventID     string
	Filename    string
	ContentType string
	Body        io.Reader
}

// Upload streams the bytes to the object store and records the index row.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*store.EvidenceAsset, error) {
	filename := SanitizeFilename(req.Filename)
	if filename == "" {
		filename = DefaultFilename
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	key := ObjectKey(req.Repo, req.IssueNumber, id, filename)

	size, err := s.blobs.Put(ctx, key, req.Body, contentType, map[string]string{
		"repo":         req.Repo,
		"issue_number": fmt.Sprint(req.IssueNumber),
		"event_id":     req.EventID,
		"uploaded_at":  now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("storing evidence object: %w", err)
	}

	asset := &store.EvidenceAsset{
		ID:          id,
		Repo:        req.Repo,
		IssueNumber: req.IssueNumber,
		EventID:     req.EventID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   size,
		ObjectKey:   key,
		CreatedAt:   now,
	}
	if err := s.index.InsertEvidence(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// Open resolves an evidence id to its index row and a byte stream. Returns
// store.ErrNotFound when the id is unknown or the object is gone.
func (s *Service) Open(ctx context.Context, id string) (*store.EvidenceAsset, io.ReadCloser, error) {
	asset, err := s.index.GetEvidence(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	r, _, err := s.blobs.Get(ctx, asset.ObjectKey)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, nil, store.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return asset, r, nil
}

// ObjectKey builds the deterministic object key for an evidence asset.
func ObjectKey(repo string, issue int, id, filename string) string {
	return fmt.Sprintf("evidence/%s/issue-%d/%s/%s", repo, issue, id, filename)
}

// SanitizeFilename strips directory components and quote characters so the
// name is safe inside a Content-Disposition header and an object key.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.ReplaceAll(name, `"`, "")
	if name == "." || name == "/" {
		return ""
	}
	return name
}
