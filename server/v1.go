/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"
)

// v1Handler is a handler bound to the caller's forge credentials.
type v1Handler func(w http.ResponseWriter, r *http.Request, f PATForge)

// withBearer extracts the Authorization bearer token and hands the handler a
// forge client acting as the caller. The relay adds no credentials of its
// own on the v1 surface.
func (s *Server) withBearer(h v1Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		f, err := s.patForge(token)
		if err != nil {
			clog.FromContext(r.Context()).With("error", err).Error("Building forge client failed")
			respondError(w, http.StatusInternalServerError, "building forge client failed")
			return
		}
		h(w, r, f)
	})
}

type v1IssueRequest struct {
	Repo        string   `json:"repo"`
	IssueNumber int      `json:"issue_number"`
	Body        string   `json:"body,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// decodeV1 parses the common v1 request shape and validates addressing.
func decodeV1(w http.ResponseWriter, r *http.Request) (*v1IssueRequest, bool) {
	var req v1IssueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return nil, false
	}
	if req.Repo == "" || req.IssueNumber <= 0 {
		respondError(w, http.StatusBadRequest, "'repo' and 'issue_number' are required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleV1Comment(w http.ResponseWriter, r *http.Request, f PATForge) {
	req, ok := decodeV1(w, r)
	if !ok {
		return
	}
	if req.Body == "" {
		respondError(w, http.StatusBadRequest, "'body' is required")
		return
	}
	comment, err := f.CreateComment(r.Context(), req.Repo, req.IssueNumber, req.Body)
	if err != nil {
		respondForgeError(w, r, "create comment", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"ok": true, "comment_id": comment.GetID()})
}

// handleV1Directive posts a mentor directive as a formatted comment.
func (s *Server) handleV1Directive(w http.ResponseWriter, r *http.Request, f PATForge) {
	req, ok := decodeV1(w, r)
	if !ok {
		return
	}
	if req.Body == "" {
		respondError(w, http.StatusBadRequest, "'body' is required")
		return
	}
	body := fmt.Sprintf("### Mentor Directive\n\n%s", req.Body)
	comment, err := f.CreateComment(r.Context(), req.Repo, req.IssueNumber, body)
	if err != nil {
		respondForgeError(w, r, "post directive", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"ok": true, "comment_id": comment.GetID()})
}

// handleV1Close optionally posts a closing comment, then closes the issue.
func (s *Server) handleV1Close(w http.ResponseWriter, r *http.Request, f PATForge) {
	req, ok := decodeV1(w, r)
	if !ok {
		return
	}
	if req.Body != "" {
		if _, err := f.CreateComment(r.Context(), req.Repo, req.IssueNumber, req.Body); err != nil {
			respondForgeError(w, r, "post closing comment", err)
			return
		}
	}
	if err := f.CloseIssue(r.Context(), req.Repo, req.IssueNumber); err != nil {
		respondForgeError(w, r, "close issue", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleV1Labels(w http.ResponseWriter, r *http.Request, f PATForge) {
	req, ok := decodeV1(w, r)
	if !ok {
		return
	}
	labels, err := f.ReplaceLabels(r.Context(), req.Repo, req.IssueNumber, req.Labels)
	if err != nil {
		respondForgeError(w, r, "replace labels", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "labels": labels})
}

// respondForgeError maps a forge failure onto the caller, logging the detail.
func respondForgeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	clog.FromContext(r.Context()).With("error", err).Warn("Forge call failed: " + op)
	respondError(w, http.StatusInternalServerError, op+" failed", err.Error())
}
