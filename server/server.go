/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"chainguard.dev/agentrelay/commentmanager"
	"chainguard.dev/agentrelay/evidence"
	"chainguard.dev/agentrelay/forge"
	"chainguard.dev/agentrelay/labelmanager"
	"chainguard.dev/agentrelay/store"
)

// Forge is the slice of the forge client the pipeline uses.
type Forge interface {
	commentmanager.Forge
	labelmanager.Forge
	PRHeadSHA(ctx context.Context, repo string, pr int) (string, error)
	GetIssue(ctx context.Context, repo string, number int) (*github.Issue, error)
}

// PATForge is the slice of the forge the v1 wrappers use, bound to a
// caller-supplied token.
type PATForge interface {
	CreateComment(ctx context.Context, repo string, number int, body string) (*github.IssueComment, error)
	CloseIssue(ctx context.Context, repo string, number int) error
	ReplaceLabels(ctx context.Context, repo string, number int, labels []string) ([]string, error)
}

// EventStore is the persistence surface the pipeline uses.
type EventStore interface {
	commentmanager.Mapping
	GetEvent(ctx context.Context, eventID string) (*store.EventRecord, error)
	InsertEvent(ctx context.Context, rec *store.EventRecord) error
	LatestByType(ctx context.Context, repo string, issue int, eventType string) (*store.EventRecord, error)
	RecentActivity(ctx context.Context, repo string, issue, limit int) ([]store.EventRecord, error)
}

// Server routes relay HTTP traffic.
type Server struct {
	relayKey string
	baseURL  string

	store    EventStore
	forge    Forge
	comments *commentmanager.Manager
	rules    labelmanager.Rules
	evidence *evidence.Service

	// patForge builds a forge client from a caller's bearer token. Tests
	// override it to avoid real transport construction.
	patForge func(token string) (PATForge, error)
}

// Config carries the server's collaborators.
type Config struct {
	RelayKey string
	BaseURL  string
	Store    EventStore
	Forge    Forge
	Rules    labelmanager.Rules
	Evidence *evidence.Service

	// ForgeBaseURL is passed through to PAT clients built for the v1
	// surface (empty means the public forge).
	ForgeBaseURL string
}

// New constructs a Server.
func New(cfg Config) *Server {
	s := &Server{
		relayKey: cfg.RelayKey,
		baseURL:  cfg.BaseURL,
		store:    cfg.Store,
		forge:    cfg.Forge,
		comments: commentmanager.New(cfg.Forge, cfg.Store),
		rules:    cfg.Rules,
		evidence: cfg.Evidence,
	}
	s.patForge = func(token string) (PATForge, error) {
		var opts []forge.Option
		if cfg.ForgeBaseURL != "" {
			opts = append(opts, forge.WithBaseURL(cfg.ForgeBaseURL))
		}
		return forge.NewWithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), opts...)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}).Methods(http.MethodGet)

	v2 := r.PathPrefix("/v2").Subrouter()
	v2.Use(s.requireRelayKey)
	v2.Handle("/events", instrument("ingest_event", http.HandlerFunc(s.handleIngestEvent))).Methods(http.MethodPost)
	v2.Handle("/evidence", instrument("upload_evidence", http.HandlerFunc(s.handleEvidenceUpload))).Methods(http.MethodPost)
	v2.Handle("/evidence/{id}", instrument("get_evidence", http.HandlerFunc(s.handleEvidenceGet))).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Handle("/comment", instrument("v1_comment", s.withBearer(s.handleV1Comment))).Methods(http.MethodPost)
	v1.Handle("/directive", instrument("v1_directive", s.withBearer(s.handleV1Directive))).Methods(http.MethodPost)
	v1.Handle("/close", instrument("v1_close", s.withBearer(s.handleV1Close))).Methods(http.MethodPost)
	v1.Handle("/labels", instrument("v1_labels", s.withBearer(s.handleV1Labels))).Methods(http.MethodPost)

	return r
}

// requireRelayKey gates the v2 surface on the shared secret.
func (s *Server) requireRelayKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Relay-Key")
		if s.relayKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.relayKey)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests scopes a logger to the request and records completion.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := clog.FromContext(ctx).With("method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(clog.WithLogger(ctx, log)))
	})
}

// evidenceURL is the stable retrieval URL for an asset id.
func (s *Server) evidenceURL(id string) string {
	return s.baseURL + "/v2/evidence/" + id
}

// respondJSON writes a pretty-printed JSON response.
func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, `{"error": "encoding response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// respondError writes the error taxonomy shape, optionally with details.
func respondError(w http.ResponseWriter, status int, msg string, details ...any) {
	body := errorBody{Error: msg}
	if len(details) > 0 {
		body.Details = details[0]
	}
	respondJSON(w, status, body)
}
