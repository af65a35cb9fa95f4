package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var _ core.DbClient = (*MemoryRepository)(nil)

// MemoryRepository is a map-backed DbClient with the same compare-and-set
// contract as the Postgres client.
type MemoryRepository struct {
	mu   sync.Mutex
	docs map[string]*models.Document
	now  func() time.Time

	// UpdateErr, when set, is returned by UpdateDocument before any write.
	UpdateErr error
	// Updates counts successful UpdateDocument calls.
	Updates int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]*models.Document), now: time.Now}
}

func (r *MemoryRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now().UTC()
	}
	doc.UpdatedAt = doc.CreatedAt
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *MemoryRepository) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, core.ErrDocumentNotFound
	}
	return d.Clone(), nil
}

func (r *MemoryRepository) ListDocumentsByTenant(ctx context.Context, tenantID string, offset, limit int) ([]models.Document, int, error) {
	all := r.filter(func(d *models.Document) bool { return d.TenantID == tenantID })
	total := len(all)
	if offset >= total {
		return []models.Document{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (r *MemoryRepository) ListDocumentsByStatus(ctx context.Context, tenantID string, status models.DocumentStatus) ([]models.Document, error) {
	return r.filter(func(d *models.Document) bool {
		return d.Status == status && (tenantID == "" || d.TenantID == tenantID)
	}), nil
}

func (r *MemoryRepository) UpdateDocument(ctx context.Context, doc *models.Document, expected models.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	cur, ok := r.docs[doc.ID]
	if !ok {
		return core.ErrDocumentNotFound
	}
	if cur.Status != expected {
		return core.ErrStatusConflict
	}
	doc.UpdatedAt = r.now().UTC()
	doc.CreatedAt = cur.CreatedAt
	r.docs[doc.ID] = doc.Clone()
	r.Updates++
	return nil
}

func (r *MemoryRepository) ClearSourceRef(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return core.ErrDocumentNotFound
	}
	d.SourceRef = ""
	return nil
}

func (r *MemoryRepository) DeleteDocument(ctx context.Context, id string, expected models.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.docs[id]
	if !ok {
		return core.ErrDocumentNotFound
	}
	if cur.Status != expected {
		return core.ErrStatusConflict
	}
	delete(r.docs, id)
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

// Put stores doc as-is, bypassing the state machine. Test setup only.
func (r *MemoryRepository) Put(doc *models.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc.Clone()
}

// Status returns the stored status of id, or "" when absent.
func (r *MemoryRepository) Status(id string) models.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.docs[id]; ok {
		return d.Status
	}
	return ""
}

func (r *MemoryRepository) filter(keep func(*models.Document) bool) []models.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Document{}
	for _, d := range r.docs {
		if keep(d) {
			out = append(out, *d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
