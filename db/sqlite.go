package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iclim/ml-app/artifact"
	_ "github.com/mattn/go-sqlite3"
)

const (
	partModel    = "model"
	partMetadata = "metadata"
)

// SQLiteSource stores artifact blobs in a SQLite database.
type SQLiteSource struct {
	database *sql.DB
	path     string
}

// Open initializes the SQLite database and its artifacts table.
func Open(path string) (*SQLiteSource, error) {
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS artifacts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        identifier TEXT NOT NULL,
        part TEXT NOT NULL,
        payload BLOB NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(identifier, part)
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create artifacts table: %w", err)
	}
	return &SQLiteSource{database: database, path: path}, nil
}

func (s *SQLiteSource) Close() error {
	return s.database.Close()
}

func (s *SQLiteSource) Describe(id string) string {
	return fmt.Sprintf("sqlite://%s#%s", s.path, id)
}

func (s *SQLiteSource) Fetch(ctx context.Context, id string) (artifact.Blobs, error) {
	rows, err := s.database.QueryContext(ctx, `
        SELECT part, payload
        FROM artifacts
        WHERE identifier = ?`, id)
	if err != nil {
		return artifact.Blobs{}, err
	}
	defer rows.Close()

	var blobs artifact.Blobs
	for rows.Next() {
		var part string
		var payload []byte
		if err := rows.Scan(&part, &payload); err != nil {
			return artifact.Blobs{}, err
		}
		switch part {
		case partModel:
			blobs.Model = payload
		case partMetadata:
			blobs.Metadata = payload
		}
	}
	if err := rows.Err(); err != nil {
		return artifact.Blobs{}, err
	}
	if blobs.Model == nil {
		return artifact.Blobs{}, fmt.Errorf("%w: %s (model)", artifact.ErrNotFound, s.Describe(id))
	}
	if blobs.Metadata == nil {
		return artifact.Blobs{}, fmt.Errorf("%w: %s (metadata)", artifact.ErrNotFound, s.Describe(id))
	}
	return blobs, nil
}

// Put replaces both blobs for id in one transaction.
func (s *SQLiteSource) Put(ctx context.Context, id string, blobs artifact.Blobs) error {
	if id == "" {
		return errors.New("identifier required")
	}
	if blobs.Model == nil || blobs.Metadata == nil {
		return errors.New("both model and metadata blobs are required")
	}

	tx, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO artifacts (identifier, part, payload, updated_at)
        VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for part, payload := range map[string][]byte{partModel: blobs.Model, partMetadata: blobs.Metadata} {
		if _, err := stmt.ExecContext(ctx, id, part, payload, now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Identifiers lists every model with at least one stored blob.
func (s *SQLiteSource) Identifiers(ctx context.Context) ([]string, error) {
	rows, err := s.database.QueryContext(ctx, `
        SELECT DISTINCT identifier
        FROM artifacts
        ORDER BY identifier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
