package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"document-processor/internal/domain"
)

// PostgresRepository stores document records in Postgres
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects and verifies the connection
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const documentColumns = `id, filename, size_bytes, sha256, mode, status, num_elements, content,
	language, model, prompt_name, prompt_version, summary, diagnostics, created_at`

func (r *PostgresRepository) SaveDocument(ctx context.Context, doc Document) error {
	diagnostics, err := json.Marshal(nonNil(doc.Diagnostics))
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			num_elements = EXCLUDED.num_elements,
			content = EXCLUDED.content,
			summary = EXCLUDED.summary,
			diagnostics = EXCLUDED.diagnostics`,
		doc.ID, doc.Filename, doc.SizeBytes, doc.SHA256, string(doc.Mode), string(doc.Status), doc.NumElements, doc.Content,
		doc.Language, doc.Model, doc.PromptName, doc.PromptVersion, doc.Summary, diagnostics, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

func (r *PostgresRepository) GetDocument(ctx context.Context, id string) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

func (r *PostgresRepository) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepository) DeleteDocument(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		doc         Document
		mode        string
		status      string
		diagnostics []byte
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.SizeBytes, &doc.SHA256, &mode, &status, &doc.NumElements, &doc.Content,
		&doc.Language, &doc.Model, &doc.PromptName, &doc.PromptVersion, &doc.Summary, &diagnostics, &doc.CreatedAt)
	if err != nil {
		return Document{}, err
	}
	doc.Mode = Mode(mode)
	doc.Status = domain.Status(status)
	if err := json.Unmarshal(diagnostics, &doc.Diagnostics); err != nil {
		return Document{}, fmt.Errorf("failed to decode diagnostics: %w", err)
	}
	return doc, nil
}

func nonNil(d []domain.Diagnostic) []domain.Diagnostic {
	if d == nil {
		return []domain.Diagnostic{}
	}
	return d
}
