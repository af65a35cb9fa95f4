package mock

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var _ core.VectorIndex = (*MemoryVectorIndex)(nil)

// MemoryVectorIndex ranks entries by cosine similarity inside a namespace.
type MemoryVectorIndex struct {
	mu         sync.Mutex
	namespaces map[string]map[string]models.VectorEntry

	UpsertErr error
	DeleteErr error
	QueryErr  error
}

func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{namespaces: make(map[string]map[string]models.VectorEntry)}
}

func (m *MemoryVectorIndex) Upsert(ctx context.Context, namespace string, entries []models.VectorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]models.VectorEntry)
		m.namespaces[namespace] = ns
	}
	for _, e := range entries {
		ns[e.ID] = e
	}
	return nil
}

func (m *MemoryVectorIndex) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	for id, e := range m.namespaces[namespace] {
		if e.Metadata.DocumentID == documentID {
			delete(m.namespaces[namespace], id)
		}
	}
	return nil
}

func (m *MemoryVectorIndex) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]models.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	matches := make([]models.VectorMatch, 0, len(m.namespaces[namespace]))
	for _, e := range m.namespaces[namespace] {
		matches = append(matches, models.VectorMatch{ID: e.ID, Score: cosine(embedding, e.Embedding), Metadata: e.Metadata})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Entries returns the stored entries of documentID in namespace.
func (m *MemoryVectorIndex) Entries(namespace, documentID string) []models.VectorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VectorEntry
	for _, e := range m.namespaces[namespace] {
		if e.Metadata.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entries in namespace.
func (m *MemoryVectorIndex) Count(namespace string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.namespaces[namespace])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
