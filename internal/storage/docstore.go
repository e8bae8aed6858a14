package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dshills/coderag/pkg/types"
)

var (
	// ErrNotFound is returned when a docstore or blob file doesn't exist
	ErrNotFound = errors.New("not found")
)

// DocStore is a SQLite database holding the ordered document list of one
// index. The row position of every document equals its position in the
// index structure.
type DocStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings. Docstore
// files are written once and renamed into place, so they use a rollback
// journal rather than WAL to avoid sidecar files.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	// SQLite benefits from single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// OpenDocStore opens or creates the docstore at dbPath and migrates it
func OpenDocStore(ctx context.Context, dbPath string) (*DocStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &DocStore{db: db}, nil
}

// Close closes the database connection
func (s *DocStore) Close() error {
	return s.db.Close()
}

// ReplaceAll swaps the whole document list in one transaction
func (s *DocStore) ReplaceAll(ctx context.Context, docs []types.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (position, path, start_line, end_line, content, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range docs {
		meta, err := json.Marshal(docs[i].Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of document %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, i, docs[i].Path(), docs[i].StartLine, docs[i].EndLine, docs[i].Content, string(meta)); err != nil {
			return fmt.Errorf("failed to insert document %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// All returns every document ordered by position. Positions must be dense
// from zero; a gap means the file does not match its index structure.
func (s *DocStore) All(ctx context.Context) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, start_line, end_line, content, metadata
		FROM documents ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]types.Chunk, 0)
	for rows.Next() {
		var (
			position int
			doc      types.Chunk
		)
		var meta string
		if err := rows.Scan(&position, &doc.StartLine, &doc.EndLine, &doc.Content, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if position != len(docs) {
			return nil, fmt.Errorf("document positions not contiguous at %d", position)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of document %d: %w", position, err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// SetMeta stores index-level metadata such as the embedding model
func (s *DocStore) SetMeta(ctx context.Context, meta map[string]string) error {
	for k, v := range meta {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v); err != nil {
			return fmt.Errorf("failed to store meta %s: %w", k, err)
		}
	}
	return nil
}

// Meta returns all index-level metadata
func (s *DocStore) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM index_meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}
	defer func() { _ = rows.Close() }()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// WriteDocuments builds a fresh docstore next to path and renames it over
// path, so readers never see a half-written file
func WriteDocuments(ctx context.Context, path string, docs []types.Chunk, meta map[string]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpName) }()

	store, err := OpenDocStore(ctx, tmpName)
	if err != nil {
		return err
	}
	if err := store.ReplaceAll(ctx, docs); err != nil {
		_ = store.Close()
		return err
	}
	if len(meta) > 0 {
		if err := store.SetMeta(ctx, meta); err != nil {
			_ = store.Close()
			return err
		}
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close docstore: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadDocuments loads the document list and metadata stored at path. A
// missing file is ErrNotFound; it is never created as a side effect.
func ReadDocuments(ctx context.Context, path string) ([]types.Chunk, map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, nil, err
	}

	store, err := OpenDocStore(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = store.Close() }()

	docs, err := store.All(ctx)
	if err != nil {
		return nil, nil, err
	}
	meta, err := store.Meta(ctx)
	if err != nil {
		return nil, nil, err
	}
	return docs, meta, nil
}
