package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var _ core.VectorIndex = (*VectorStore)(nil)

// VectorStore keeps chunk embeddings in the vector_entries table. Namespaces
// are a column, so an unknown namespace simply matches no rows.
type VectorStore struct {
	db *sql.DB
}

func NewVectorStore(db *sql.DB) *VectorStore {
	return &VectorStore{db: db}
}

// Upsert inserts entries in a single transaction.
func (s *VectorStore) Upsert(ctx context.Context, namespace string, entries []models.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO vector_entries (vector_id, namespace, document_id, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (vector_id) DO UPDATE
		SET namespace = EXCLUDED.namespace,
			document_id = EXCLUDED.document_id,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode metadata of %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, namespace, e.Metadata.DocumentID, pgvector.NewVector(e.Embedding), string(meta),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *VectorStore) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_entries WHERE namespace = $1 AND document_id = $2`, namespace, documentID)
	return err
}

// Query ranks by cosine similarity; Score is 1 - cosine distance.
func (s *VectorStore) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]models.VectorMatch, error) {
	const q = `
		SELECT vector_id, metadata, 1 - (embedding <=> $2) AS score
		FROM vector_entries
		WHERE namespace = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, q, namespace, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.VectorMatch{}
	for rows.Next() {
		var (
			m    models.VectorMatch
			meta []byte
		)
		if err := rows.Scan(&m.ID, &meta, &m.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns how many entries a document has in namespace.
func (s *VectorStore) Count(ctx context.Context, namespace, documentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM vector_entries WHERE namespace = $1 AND document_id = $2`, namespace, documentID).Scan(&n)
	return n, err
}
