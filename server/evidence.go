/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/chainguard-dev/clog"
	"github.com/gorilla/mux"

	"chainguard.dev/agentrelay/evidence"
	"chainguard.dev/agentrelay/store"
)

// maxEvidenceBytes bounds a single evidence upload.
const maxEvidenceBytes = 32 << 20

type evidenceResponse struct {
	ID          string `json:"id"`
	Repo        string `json:"repo"`
	IssueNumber int    `json:"issue_number"`
	EventID     string `json:"event_id,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url"`
}

// handleEvidenceUpload accepts one multipart file plus repo/issue form
// fields, stores the bytes, and returns the stable retrieval URL.
func (s *Server) handleEvidenceUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	repo := r.FormValue("repo")
	issue, err := strconv.Atoi(r.FormValue("issue_number"))
	if repo == "" || err != nil || issue <= 0 {
		respondError(w, http.StatusBadRequest, "form fields 'repo' and 'issue_number' are required")
		return
	}

	asset, err := s.evidence.Upload(ctx, evidence.UploadRequest{
		Repo:        repo,
		IssueNumber: issue,
		EventID:     r.FormValue("event_id"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		clog.FromContext(ctx).With("error", err).Error("Evidence upload failed")
		respondError(w, http.StatusInternalServerError, "evidence upload failed")
		return
	}

	respondJSON(w, http.StatusCreated, evidenceResponse{
		ID:          asset.ID,
		Repo:        asset.Repo,
		IssueNumber: asset.IssueNumber,
		EventID:     asset.EventID,
		Filename:    asset.Filename,
		ContentType: asset.ContentType,
		SizeBytes:   asset.SizeBytes,
		URL:         s.evidenceURL(asset.ID),
	})
}

// handleEvidenceGet streams the stored bytes back, inline.
func (s *Server) handleEvidenceGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	asset, body, err := s.evidence.Open(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "evidence not found")
		return
	}
	if err != nil {
		clog.FromContext(ctx).With("error", err, "id", id).Error("Evidence retrieval failed")
		respondError(w, http.StatusInternalServerError, "evidence retrieval failed")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", asset.Filename))
	if asset.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(asset.SizeBytes, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		clog.FromContext(ctx).With("error", err, "id", id).Warn("Evidence stream interrupted")
	}
}
