/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package forge

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewWithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "pat-token"}),
		WithBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("NewWithTokenSource() error = %v", err)
	}
	return c
}

func TestPRHeadSHA(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/web/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 7, "head": {"sha": "ABC1234DEF"}}`)
	})

	c := testClient(t, mux)
	sha, err := c.PRHeadSHA(context.Background(), "acme/web", 7)
	if err != nil {
		t.Fatalf("PRHeadSHA() error = %v", err)
	}
	if sha != "abc1234def" {
		t.Errorf("PRHeadSHA() = %q, want lowercase abc1234def", sha)
	}
}

func TestForgeErrorSurfacesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/web/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	c := testClient(t, mux)
	_, err := c.PRHeadSHA(context.Background(), "acme/web", 7)

	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v (%T), want *forge.Error", err, err)
	}
	if ferr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", ferr.StatusCode)
	}
}

func TestReplaceLabels(t *testing.T) {
	var got []string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/acme/web/issues/42/labels", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Labels []string `json:"labels"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding labels body: %v", err)
		}
		got = body.Labels
		out := make([]map[string]string, 0, len(got))
		for _, l := range got {
			out = append(out, map[string]string{"name": l})
		}
		json.NewEncoder(w).Encode(out)
	})

	c := testClient(t, mux)
	applied, err := c.ReplaceLabels(context.Background(), "acme/web", 42, []string{"status:verified", "prio:P1"})
	if err != nil {
		t.Fatalf("ReplaceLabels() error = %v", err)
	}
	if len(got) != 2 || got[0] != "status:verified" {
		t.Errorf("server received labels %v", got)
	}
	if len(applied) != 2 {
		t.Errorf("ReplaceLabels() returned %v", applied)
	}
}

func TestListCommentsPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/web/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("per_page"); got != "100" {
			t.Errorf("per_page = %q, want 100", got)
		}
		page := r.URL.Query().Get("page")
		fmt.Fprintf(w, `[{"id": %s1, "body": "page %s"}]`, page, page)
	})

	c := testClient(t, mux)
	comments, err := c.ListComments(context.Background(), "acme/web", 42, 2)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 1 || comments[0].GetID() != 21 {
		t.Errorf("ListComments() = %+v, want single comment id 21", comments)
	}
}

func TestAppTokenMintedOnceAndReused(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	var mints atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /app/installations/99/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		mints.Add(1)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token": "inst-token", "expires_at": %q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
	})
	mux.HandleFunc("GET /repos/acme/web/issues/42", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer inst-token" {
			t.Errorf("Authorization = %q, want installation token", got)
		}
		fmt.Fprint(w, `{"number": 42, "title": "an issue"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(1234, 99, keyPEM, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	for range 3 {
		if _, err := c.GetIssue(ctx, "acme/web", 42); err != nil {
			t.Fatalf("GetIssue() error = %v", err)
		}
	}
	if got := mints.Load(); got != 1 {
		t.Errorf("installation token minted %d times, want 1", got)
	}
}

func TestSplitRepo(t *testing.T) {
	if _, _, err := splitRepo("acme"); err == nil {
		t.Error("splitRepo(acme) accepted a malformed slug")
	}
	owner, name, err := splitRepo("acme/web")
	if err != nil || owner != "acme" || name != "web" {
		t.Errorf("splitRepo(acme/web) = %q/%q, %v", owner, name, err)
	}
}
