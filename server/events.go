/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/agentrelay/commentmanager"
	"chainguard.dev/agentrelay/event"
	"chainguard.dev/agentrelay/provenance"
	"chainguard.dev/agentrelay/store"
)

// maxEventBytes bounds the inbound event payload.
const maxEventBytes = 1 << 20

// recentActivityLimit is how many events the rolling comment lists.
const recentActivityLimit = 5

type ingestResponse struct {
	OK                 bool   `json:"ok"`
	EventID            string `json:"event_id"`
	Stored             bool   `json:"stored"`
	Idempotent         bool   `json:"idempotent,omitempty"`
	Verdict            string `json:"verdict,omitempty"`
	ProvenanceVerified *bool  `json:"provenance_verified,omitempty"`
	RollingCommentID   int64  `json:"rolling_comment_id,omitempty"`
}

// handleIngestEvent runs the full pipeline: validate, hash, idempotency
// check, provenance verification, append, then the forge side effects.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading request body")
		return
	}

	ev, err := event.Parse(body)
	if err != nil {
		var verr *event.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, "invalid event", verr.Message)
			return
		}
		respondError(w, http.StatusBadRequest, "invalid event")
		return
	}
	log := clog.FromContext(ctx).With(
		"event_id", ev.EventID, "event_type", ev.EventType,
		"repo", ev.Repo, "issue", ev.IssueNumber)
	ctx = clog.WithLogger(ctx, log)

	payload, err := ev.CanonicalJSON()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "canonicalizing event")
		return
	}
	hash, err := ev.PayloadHash()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "hashing event")
		return
	}

	if existing, err := s.store.GetEvent(ctx, ev.EventID); err == nil {
		s.respondExisting(w, existing, hash)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		log.With("error", err).Error("Event lookup failed")
		respondError(w, http.StatusInternalServerError, "event lookup failed")
		return
	}

	prov, err := provenance.Verify(ctx, s.forge, ev.Repo, ev.Build)
	if err != nil {
		log.With("error", err).Error("Provenance check failed")
		respondError(w, http.StatusInternalServerError, "forge unavailable", err.Error())
		return
	}
	effective := provenance.EffectiveVerdict(ev.OverallVerdict, prov.Verified)

	rec := &store.EventRecord{
		EventID:        ev.EventID,
		Repo:           ev.Repo,
		IssueNumber:    ev.IssueNumber,
		EventType:      ev.EventType,
		Role:           ev.Role,
		Agent:          ev.Agent,
		OverallVerdict: effective,
		PayloadHash:    hash,
		PayloadJSON:    payload,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.InsertEvent(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			// Lost the insert race; the winner's row decides.
			existing, err := s.store.GetEvent(ctx, ev.EventID)
			if err != nil {
				log.With("error", err).Error("Post-race event lookup failed")
				respondError(w, http.StatusInternalServerError, "event lookup failed")
				return
			}
			s.respondExisting(w, existing, hash)
			return
		}
		log.With("error", err).Error("Event insert failed")
		respondError(w, http.StatusInternalServerError, "event insert failed")
		return
	}
	log.With("verdict", string(effective)).Info("Stored event")

	commentID := s.applySideEffects(ctx, ev, effective, prov)

	respondJSON(w, http.StatusCreated, ingestResponse{
		OK:                 true,
		EventID:            ev.EventID,
		Stored:             true,
		Verdict:            string(effective),
		ProvenanceVerified: prov.Verified,
		RollingCommentID:   commentID,
	})
}

// respondExisting handles an event_id already on record: byte-identical
// payloads are an idempotent replay, anything else is a conflict.
func (s *Server) respondExisting(w http.ResponseWriter, existing *store.EventRecord, submittedHash string) {
	if existing.PayloadHash == submittedHash {
		respondJSON(w, http.StatusOK, ingestResponse{
			OK:         true,
			EventID:    existing.EventID,
			Stored:     false,
			Idempotent: true,
			Verdict:    string(existing.OverallVerdict),
		})
		return
	}
	respondError(w, http.StatusConflict, "event_id already exists with a different payload", map[string]string{
		"existing_payload_hash":  existing.PayloadHash,
		"submitted_payload_hash": submittedHash,
	})
}

// applySideEffects drives the rolling comment and label transition after the
// event is durably stored. Failures here are logged, never surfaced: the
// append already happened and a later event repairs the forge state.
func (s *Server) applySideEffects(ctx context.Context, ev *event.Event, effective event.Verdict, prov provenance.Result) int64 {
	log := clog.FromContext(ctx)

	var (
		labels     []string
		owner      string
		haveLabels bool
	)
	issue, err := s.forge.GetIssue(ctx, ev.Repo, ev.IssueNumber)
	if err != nil {
		log.With("error", err).Warn("Issue fetch failed, rendering without issue state")
	} else {
		haveLabels = true
		for _, l := range issue.Labels {
			labels = append(labels, l.GetName())
		}
		if len(issue.Assignees) > 0 {
			owner = issue.Assignees[0].GetLogin()
		}
	}

	in := commentmanager.Inputs{
		IssueNumber: ev.IssueNumber,
		Labels:      labels,
		Owner:       owner,
		Environment: ev.Environment,
		Verified:    prov.Verified,
		HeadSHA:     prov.HeadSHA,
	}
	if ev.Build != nil {
		in.PR = ev.Build.PR
		in.CommitSHA = ev.Build.CommitSHA
	}
	if rec, err := s.store.LatestByType(ctx, ev.Repo, ev.IssueNumber, "dev.update"); err == nil {
		if dev, err := rec.Payload(); err == nil {
			in.LatestDev = dev
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.With("error", err).Warn("Latest dev update lookup failed")
	}
	if rec, err := s.store.LatestByType(ctx, ev.Repo, ev.IssueNumber, "qa.result_submitted"); err == nil {
		if qa, err := rec.Payload(); err == nil {
			in.LatestQA = qa
			in.QAVerdict = rec.OverallVerdict
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.With("error", err).Warn("Latest QA result lookup failed")
	}
	if recent, err := s.store.RecentActivity(ctx, ev.Repo, ev.IssueNumber, recentActivityLimit); err != nil {
		log.With("error", err).Warn("Recent activity lookup failed")
	} else {
		for _, r := range recent {
			in.Recent = append(in.Recent, commentmanager.Activity{
				At: r.CreatedAt, EventType: r.EventType, Agent: r.Agent,
			})
		}
	}

	commentID, err := s.comments.Upsert(ctx, ev.Repo, ev.IssueNumber, commentmanager.Render(in))
	if err != nil {
		log.With("error", err).Warn("Rolling comment upsert failed")
	}

	// Without the current label set a replace would drop every label the
	// rule doesn't mention, so the transition waits for the next event.
	if haveLabels {
		if _, err := s.rules.Apply(ctx, s.forge, ev.Repo, ev.IssueNumber, ev.EventType, effective, labels); err != nil {
			log.With("error", err).Warn("Label transition failed")
		}
	} else {
		log.Warn("Skipping label transition without current labels")
	}

	return commentID
}
