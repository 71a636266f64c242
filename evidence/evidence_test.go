/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chainguard.dev/agentrelay/store"
)

type fakeIndex struct {
	assets map[string]*store.EvidenceAsset
}

func newFakeIndex() *fakeIndex { return &fakeIndex{assets: map[string]*store.EvidenceAsset{}} }

func (f *fakeIndex) InsertEvidence(_ context.Context, a *store.EvidenceAsset) error {
	f.assets[a.ID] = a
	return nil
}

func (f *fakeIndex) GetEvidence(_ context.Context, id string) (*store.EvidenceAsset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func TestUploadAndOpen(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	svc := New(blobs, newFakeIndex())

	asset, err := svc.Upload(ctx, UploadRequest{
		Repo:        "acme/web",
		IssueNumber: 42,
		EventID:     "evt-00000001",
		Filename:    "trace.log",
		ContentType: "text/plain",
		Body:        strings.NewReader("hello evidence"),
	})
	require.NoError(t, err)

	require.NoError(t, uuid.Validate(asset.ID))
	require.Equal(t, int64(len("hello evidence")), asset.SizeBytes)
	require.Equal(t, "evidence/acme/web/issue-42/"+asset.ID+"/trace.log", asset.ObjectKey)

	meta := blobs.Metadata(asset.ObjectKey)
	require.Equal(t, "acme/web", meta["repo"])
	require.Equal(t, "42", meta["issue_number"])
	require.Equal(t, "evt-00000001", meta["event_id"])

	got, r, err := svc.Open(ctx, asset.ID)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello evidence", string(data))
	require.Equal(t, "text/plain", got.ContentType)
}

func TestUploadDefaultsFilename(t *testing.T) {
	svc := New(NewMemoryBlobStore(), newFakeIndex())

	asset, err := svc.Upload(context.Background(), UploadRequest{
		Repo:        "acme/web",
		IssueNumber: 1,
		Body:        strings.NewReader("x"),
	})
	require.NoError(t, err)
	require.Equal(t, DefaultFilename, asset.Filename)
	require.Equal(t, "application/octet-stream", asset.ContentType)
}

func TestOpenUnknownID(t *testing.T) {
	svc := New(NewMemoryBlobStore(), newFakeIndex())

	_, _, err := svc.Open(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpenMissingObject(t *testing.T) {
	idx := newFakeIndex()
	svc := New(NewMemoryBlobStore(), idx)

	// Index row exists but no object behind it.
	require.NoError(t, idx.InsertEvidence(context.Background(), &store.EvidenceAsset{
		ID:        "orphan",
		ObjectKey: "evidence/acme/web/issue-1/orphan/gone.bin",
	}))

	_, _, err := svc.Open(context.Background(), "orphan")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.False(t, errors.Is(err, ErrObjectNotFound), "object-store sentinel must not leak")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"trace.log", "trace.log"},
		{`"quoted".png`, "quoted.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\temp\shot.png`, "shot.png"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
