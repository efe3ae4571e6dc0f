// Package memory is a BlobStore kept in process memory.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"aboba/core/media/domain"
)

var _ domain.BlobStore = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	original map[string][]byte
	derived  map[string][]byte
	baseURL  string

	failPuts int
}

func NewStore() *Store {
	return &Store{
		original: make(map[string][]byte),
		derived:  make(map[string][]byte),
		baseURL:  "http://blobs.local",
	}
}

// PutOriginal stores an original as if the client had completed the upload.
func (s *Store) PutOriginal(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original[key] = slices.Clone(data)
}

// Derived returns a stored variant.
func (s *Store) Derived(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.derived[key]
	return b, ok
}

// FailNextPuts makes the next n PutDerived calls return an error.
func (s *Store) FailNextPuts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts = n
}

func (s *Store) PresignOriginalUpload(_ context.Context, key, mime string, maxBytes int64, ttl time.Duration) (*domain.PresignedUpload, error) {
	return &domain.PresignedUpload{
		URL: s.baseURL + "/original",
		Fields: map[string]string{
			"key":          key,
			"Content-Type": mime,
			"x-max-bytes":  strconv.FormatInt(maxBytes, 10),
			"x-expires-in": strconv.Itoa(int(ttl.Seconds())),
		},
	}, nil
}

func (s *Store) OpenOriginal(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.original[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, domain.ErrBlobNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *Store) PutDerived(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPuts > 0 {
		s.failPuts--
		return fmt.Errorf("put derived %q: injected failure", key)
	}
	s.derived[key] = slices.Clone(data)
	return nil
}

func (s *Store) PresignDerivedDownload(_ context.Context, key string, ttl time.Duration) (string, error) {
	q := url.Values{}
	q.Set("expires", strconv.Itoa(int(ttl.Seconds())))
	return s.baseURL + "/derived/" + key + "?" + q.Encode(), nil
}
