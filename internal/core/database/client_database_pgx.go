package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docflow/internal/config"
	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

// Open connects to Postgres and pings it. When SSL_CERT_PATH is set the
// connection verifies the server against that CA.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Workers and API handlers share this pool.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// NewDatabaseClient opens the pool and makes sure the schema exists.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &DatabaseClient{db: db}, nil
}

// NewDatabaseClientFromDB wraps an already opened pool.
func NewDatabaseClientFromDB(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

// DB exposes the pool so the vector store can share it.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping is used by the health check.
func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

const documentColumns = `id, tenant_id, title, content_type, tags, status, source_ref,
	extracted_text, failed_reason, failed_stage, created_at, updated_at`

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	tags, err := encodeTags(doc.Tags)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO documents
			(id, tenant_id, title, content_type, tags, status, source_ref, extracted_text, failed_reason, failed_stage)
		VALUES
			($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		doc.ID, doc.TenantID, doc.Title, doc.ContentType, tags, string(doc.Status), doc.SourceRef,
		sanitizeText(doc.ExtractedText), doc.FailedReason, string(doc.FailedStage),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDocumentsByTenant(ctx context.Context, tenantID string, offset, limit int) ([]models.Document, int, error) {
	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id
		OFFSET $2 LIMIT $3`
	rows, err := c.db.QueryContext(ctx, q, tenantID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectDocuments(rows)
	return out, total, err
}

// ListDocumentsByStatus lists one tenant's documents in status, or every
// tenant's when tenantID is empty.
func (c *DatabaseClient) ListDocumentsByStatus(ctx context.Context, tenantID string, status models.DocumentStatus) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE status = $1 AND ($2 = '' OR tenant_id = $2)
		ORDER BY created_at DESC, id`
	rows, err := c.db.QueryContext(ctx, q, string(status), tenantID)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (c *DatabaseClient) UpdateDocument(ctx context.Context, doc *models.Document, expected models.DocumentStatus) error {
	tags, err := encodeTags(doc.Tags)
	if err != nil {
		return err
	}
	const q = `
		UPDATE documents
		SET title = $2, content_type = $3, tags = $4::jsonb, status = $5, source_ref = $6,
			extracted_text = $7, failed_reason = $8, failed_stage = $9, updated_at = now()
		WHERE id = $1 AND status = $10
		RETURNING updated_at
	`
	err = c.db.QueryRowContext(ctx, q,
		doc.ID, doc.Title, doc.ContentType, tags, string(doc.Status), doc.SourceRef,
		sanitizeText(doc.ExtractedText), doc.FailedReason, string(doc.FailedStage), string(expected),
	).Scan(&doc.UpdatedAt)
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return c.missingOrConflict(ctx, doc.ID)
}

// missingOrConflict explains why a status-guarded write matched no row.
func (c *DatabaseClient) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := c.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return core.ErrDocumentNotFound
	}
	return core.ErrStatusConflict
}

func (c *DatabaseClient) ClearSourceRef(ctx context.Context, id string) error {
	const q = `UPDATE documents SET source_ref = '', updated_at = now() WHERE id = $1`
	return c.execOne(ctx, q, id)
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string, expected models.DocumentStatus) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND status = $2`, id, string(expected))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return c.missingOrConflict(ctx, id)
	}
	return nil
}

func (c *DatabaseClient) execOne(ctx context.Context, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrDocumentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d      models.Document
		tags   []byte
		status string
		stage  string
	)
	if err := row.Scan(
		&d.ID, &d.TenantID, &d.Title, &d.ContentType, &tags, &status, &d.SourceRef,
		&d.ExtractedText, &d.FailedReason, &stage, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = models.DocumentStatus(status)
	d.FailedStage = models.FailedStage(stage)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &d.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func collectDocuments(rows *sql.Rows) ([]models.Document, error) {
	defer rows.Close()
	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

// sanitizeText drops NUL bytes, which Postgres TEXT cannot store and which
// some extractors emit for binary remnants.
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
