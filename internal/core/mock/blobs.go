package mock

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/markdave123-py/docflow/internal/core"
)

var _ core.ObjectClient = (*MemoryBlobStore)(nil)

// MemoryBlobStore keeps uploaded bytes in a map keyed by ref.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// GetErr, when set, is returned by GetFile for every ref.
	GetErr    error
	DeleteErr error
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	ref := "mem://" + key
	s.Put(ref, b)
	return ref, nil
}

func (s *MemoryBlobStore) GetFile(ctx context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	b, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", ref, core.ErrSourceMissing)
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryBlobStore) Exists(ctx context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[ref]
	return ok, nil
}

func (s *MemoryBlobStore) DeleteFile(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.blobs[ref]; !ok {
		return fmt.Errorf("delete %s: %w", ref, core.ErrSourceMissing)
	}
	delete(s.blobs, ref)
	return nil
}

// Put stores data under ref directly.
func (s *MemoryBlobStore) Put(ref string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = data
}
