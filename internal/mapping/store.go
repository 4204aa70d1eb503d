package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports a lookup for a symbol the store has never seen.
var ErrNotFound = errors.New("mapping not found")

// Mapping is one learned rename with the confidence it was learned at.
type Mapping struct {
	Original   string  `json:"original" yaml:"original"`
	Desired    string  `json:"desired" yaml:"desired"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Module     string  `json:"module,omitempty" yaml:"module,omitempty"`
	UpdatedAt  int64   `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Store persists learned mappings in SQLite. One row per original name;
// competing desired names resolve in favor of the higher confidence.
type Store struct {
	db *sql.DB
}

// NewStore opens the mapping database under dataDir, creating both when
// missing.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "unmin.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite takes one writer at a time; keep the pool at a single
	// connection instead of herding busy errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS mappings (
		original TEXT PRIMARY KEY,
		desired TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		module TEXT,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_mappings_confidence ON mappings(confidence);
	CREATE INDEX IF NOT EXISTS idx_mappings_module ON mappings(module);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// Databases from before the module column; the error is expected
	// everywhere else.
	db.Exec(`ALTER TABLE mappings ADD COLUMN module TEXT`)

	return nil
}

// Put upserts a mapping. An existing entry survives unless the incoming
// confidence is at least as high, so a weak guess never shadows a strong
// one.
func (s *Store) Put(ctx context.Context, m Mapping) error {
	if m.Original == "" || m.Desired == "" {
		return fmt.Errorf("mapping needs both names: %q -> %q", m.Original, m.Desired)
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO mappings (original, desired, confidence, module, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(original) DO UPDATE SET
			desired = excluded.desired,
			confidence = excluded.confidence,
			module = excluded.module,
			updated_at = excluded.updated_at
		WHERE excluded.confidence >= mappings.confidence
	`
	if _, err := s.db.ExecContext(ctx, query,
		m.Original, m.Desired, m.Confidence, m.Module, m.UpdatedAt); err != nil {
		return fmt.Errorf("save mapping %s: %w", m.Original, err)
	}
	return nil
}

// PutBatch stores a set of mappings in one transaction.
func (s *Store) PutBatch(ctx context.Context, ms []Mapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mappings (original, desired, confidence, module, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(original) DO UPDATE SET
			desired = excluded.desired,
			confidence = excluded.confidence,
			module = excluded.module,
			updated_at = excluded.updated_at
		WHERE excluded.confidence >= mappings.confidence
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, m := range ms {
		if m.Original == "" || m.Desired == "" {
			return fmt.Errorf("mapping needs both names: %q -> %q", m.Original, m.Desired)
		}
		updated := m.UpdatedAt
		if updated == 0 {
			updated = now
		}
		if _, err := stmt.ExecContext(ctx, m.Original, m.Desired, m.Confidence, m.Module, updated); err != nil {
			return fmt.Errorf("save mapping %s: %w", m.Original, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Get returns the mapping for one original name.
func (s *Store) Get(ctx context.Context, original string) (*Mapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT original, desired, confidence, COALESCE(module, ''), updated_at
		FROM mappings WHERE original = ?
	`, original)

	var m Mapping
	if err := row.Scan(&m.Original, &m.Desired, &m.Confidence, &m.Module, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, original)
		}
		return nil, fmt.Errorf("load mapping %s: %w", original, err)
	}
	return &m, nil
}

// List returns every mapping, highest confidence first.
func (s *Store) List(ctx context.Context) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT original, desired, confidence, COALESCE(module, ''), updated_at
		FROM mappings
		ORDER BY confidence DESC, original ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.Original, &m.Desired, &m.Confidence, &m.Module, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return out, nil
}

// Delete removes one mapping.
func (s *Store) Delete(ctx context.Context, original string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE original = ?`, original)
	if err != nil {
		return fmt.Errorf("delete mapping %s: %w", original, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, original)
	}
	return nil
}

// Export returns original -> desired for every mapping at or above
// minConfidence: the plain map the rename pipeline consumes.
func (s *Store) Export(ctx context.Context, minConfidence float64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT original, desired FROM mappings WHERE confidence >= ?
	`, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("export mappings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var original, desired string
		if err := rows.Scan(&original, &desired); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out[original] = desired
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return out, nil
}

// Count returns how many mappings the store holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mappings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
