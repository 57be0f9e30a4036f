package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, base_file_name, uploaded_by, original_name, mime_type, size, file_hash,
	blob_path, blob_id, version, is_latest_version, parent_document, version_history,
	access_level, access_pin, download_count, category, description, tags, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var (
		d       model.Document
		parent  sql.NullString
		pin     sql.NullString
		history []byte
		tags    []byte
	)
	if err := s.Scan(
		&d.ID,
		&d.BaseFileName,
		&d.UploadedBy,
		&d.OriginalName,
		&d.MimeType,
		&d.Size,
		&d.FileHash,
		&d.BlobPath,
		&d.BlobID,
		&d.Version,
		&d.IsLatestVersion,
		&parent,
		&history,
		&d.AccessLevel,
		&pin,
		&d.DownloadCount,
		&d.Category,
		&d.Description,
		&tags,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if parent.Valid {
		d.ParentDocument = &parent.String
	}
	d.AccessPin = pin.String
	if err := decodeJSON(history, &d.VersionHistory); err != nil {
		return nil, fmt.Errorf("decode version_history: %w", err)
	}
	if err := decodeJSON(tags, &d.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if d.VersionHistory == nil {
		d.VersionHistory = []model.VersionEntry{}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return &d, nil
}

func decodeJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func encodeJSON[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullablePtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullable(*s)
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, repository.MapError(err)
	}
	return d, nil
}

// FindChain returns all members of a chain ordered by version descending.
func (r *DocumentPostgres) FindChain(ctx context.Context, ownerID, baseFileName string) ([]model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents
		WHERE uploaded_by = $1 AND base_file_name = $2
		ORDER BY version DESC`
	rows, err := r.db.QueryContext(ctx, q, ownerID, baseFileName)
	if err != nil {
		return nil, repository.MapError(err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]model.Document, error) {
	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// InsertLatest demotes the current latest member of the chain and inserts doc in one transaction.
func (r *DocumentPostgres) InsertLatest(ctx context.Context, doc *model.Document) (*model.Document, error) {
	history, err := encodeJSON(doc.VersionHistory)
	if err != nil {
		return nil, fmt.Errorf("encode version_history: %w", err)
	}
	tags, err := encodeJSON(doc.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	var out *model.Document
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		const demote = `
			UPDATE documents SET is_latest_version = FALSE, updated_at = $3
			WHERE uploaded_by = $1 AND base_file_name = $2 AND is_latest_version
		`
		if _, err := tx.ExecContext(ctx, demote, doc.UploadedBy, doc.BaseFileName, doc.CreatedAt); err != nil {
			return err
		}

		q := `INSERT INTO documents (` + documentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			RETURNING ` + documentColumns
		row := tx.QueryRowContext(ctx, q,
			doc.ID,
			doc.BaseFileName,
			doc.UploadedBy,
			doc.OriginalName,
			doc.MimeType,
			doc.Size,
			doc.FileHash,
			doc.BlobPath,
			doc.BlobID,
			doc.Version,
			nullablePtr(doc.ParentDocument),
			history,
			string(doc.AccessLevel),
			nullable(doc.AccessPin),
			doc.DownloadCount,
			string(doc.Category),
			doc.Description,
			tags,
			doc.CreatedAt,
			doc.UpdatedAt,
		)
		d, err := scanDocument(row)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, repository.MapError(err)
	}
	return out, nil
}

// TransferLatest clears the flag on fromID before setting it on toID so the
// partial unique index never sees two latest rows.
func (r *DocumentPostgres) TransferLatest(ctx context.Context, fromID, toID string) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET is_latest_version = FALSE, updated_at = now() WHERE id = $1`, fromID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE documents SET is_latest_version = TRUE, updated_at = now() WHERE id = $1`, toID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	return repository.MapError(err)
}

// Reroot clears newRootID's parent and points the rest of the chain at it.
func (r *DocumentPostgres) Reroot(ctx context.Context, ownerID, baseFileName, newRootID string) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE documents SET parent_document = NULL, updated_at = now() WHERE id = $1`, newRootID)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		const q = `
			UPDATE documents SET parent_document = $3, updated_at = now()
			WHERE uploaded_by = $1 AND base_file_name = $2 AND id <> $3
		`
		_, err = tx.ExecContext(ctx, q, ownerID, baseFileName, newRootID)
		return err
	})
	return repository.MapError(err)
}

// AppendHistory appends entry to the root and its children, skipping rows that already carry it.
func (r *DocumentPostgres) AppendHistory(ctx context.Context, rootID string, entry model.VersionEntry) error {
	element, err := json.Marshal([]model.VersionEntry{entry})
	if err != nil {
		return fmt.Errorf("encode version entry: %w", err)
	}
	marker, err := json.Marshal([]map[string]string{{"document_id": entry.DocumentID}})
	if err != nil {
		return fmt.Errorf("encode version marker: %w", err)
	}
	const q = `
		UPDATE documents
		SET version_history = version_history || $2::jsonb, updated_at = now()
		WHERE (id = $1 OR parent_document = $1)
		  AND NOT version_history @> $3::jsonb
	`
	_, err = r.db.ExecContext(ctx, q, rootID, element, marker)
	return repository.MapError(err)
}

// PruneHistory drops documentID's entry from the root and its children.
func (r *DocumentPostgres) PruneHistory(ctx context.Context, rootID, documentID string) error {
	const q = `
		UPDATE documents
		SET version_history = COALESCE((
			SELECT jsonb_agg(e ORDER BY (e->>'version')::int)
			FROM jsonb_array_elements(version_history) AS e
			WHERE e->>'document_id' <> $2
		), '[]'::jsonb), updated_at = now()
		WHERE id = $1 OR parent_document = $1
	`
	_, err := r.db.ExecContext(ctx, q, rootID, documentID)
	return repository.MapError(err)
}

// IncrementDownloadCount bumps download_count by one.
func (r *DocumentPostgres) IncrementDownloadCount(ctx context.Context, id string) error {
	const q = `UPDATE documents SET download_count = download_count + 1 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return repository.MapError(err)
	}
	return requireRow(res)
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, lq repository.ListQuery) (*repository.PageResult[model.Document], error) {
	where, args := listFilter(lq)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, repository.MapError(err)
	}

	q := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		documentColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, lq.Limit, lq.Offset)...)
	if err != nil {
		return nil, repository.MapError(err)
	}
	defer rows.Close()

	items, err := collect(rows)
	if err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

func listFilter(lq repository.ListQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !lq.ViewerIsAdmin {
		conds = append(conds, fmt.Sprintf("(uploaded_by = %s OR access_level IN ('public', 'protected'))", arg(lq.ViewerID)))
	}
	if !lq.AllVersions {
		conds = append(conds, "is_latest_version")
	}
	if lq.Category != "" {
		conds = append(conds, "category = "+arg(string(lq.Category)))
	}
	if s := strings.TrimSpace(lq.Search); s != "" {
		p := arg("%" + escapeLike(s) + "%")
		conds = append(conds, fmt.Sprintf(
			"(original_name ILIKE %[1]s OR description ILIKE %[1]s OR base_file_name ILIKE %[1]s"+
				" OR EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) AS t(tag) WHERE t.tag ILIKE %[1]s))", p))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Delete removes a document by ID. It does not return an error if the row does not exist.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return repository.MapError(err)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
