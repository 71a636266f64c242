/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
)

// ErrObjectNotFound is returned when a blob key has no object behind it.
var ErrObjectNotFound = errors.New("evidence: object not found")

// BlobStore is the object storage surface the evidence service needs.
// Objects are write-once; Put with an existing key is never issued.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// GCSBlobStore stores evidence objects in a Google Cloud Storage bucket.
type GCSBlobStore struct {
	bucket *storage.BucketHandle
}

// NewGCSBlobStore dials GCS and binds to the named bucket.
func NewGCSBlobStore(ctx context.Context, bucket string) (*GCSBlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSBlobStore{bucket: client.Bucket(bucket)}, nil
}

// Put streams the object to GCS and returns the byte count written.
func (s *GCSBlobStore) Put(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) (int64, error) {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("writing object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("finalizing object %s: %w", key, err)
	}
	return n, nil
}

// Get opens the object for streaming reads.
func (s *GCSBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, "", ErrObjectNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("opening object %s: %w", key, err)
	}
	return r, r.Attrs.ContentType, nil
}

// MemoryBlobStore is an in-memory BlobStore for tests.
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// NewMemoryBlobStore constructs an empty in-memory store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: map[string]memoryObject{}}
}

func (s *MemoryBlobStore) Put(_ context.Context, key string, r io.Reader, contentType string, metadata map[string]string) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: data, contentType: contentType, metadata: metadata}
	return int64(len(data)), nil
}

func (s *MemoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

// Metadata exposes stored object metadata for test assertions.
func (s *MemoryBlobStore) Metadata(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key].metadata
}
