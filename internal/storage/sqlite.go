package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/contentindex/internal/models"
)

// SQLiteProvider stores state durably in one SQLite database keyed by (tenant, content id).
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLiteProvider opens or creates the database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; concurrent callers queue on the pool instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteProvider{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS text_content_state (
		tenant TEXT NOT NULL,
		content_id TEXT NOT NULL,
		doc_ids TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (tenant, content_id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// ForTenant returns a store bound to tenant.
func (p *SQLiteProvider) ForTenant(tenant string) (StateStore, error) {
	if err := models.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	return &sqliteStore{db: p.db, tenant: tenant}, nil
}

// DropTenant deletes every row of the tenant.
func (p *SQLiteProvider) DropTenant(ctx context.Context, tenant string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM text_content_state WHERE tenant = ?`, tenant)
	return err
}

// Close closes the database connection.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

type sqliteStore struct {
	db     *sql.DB
	tenant string
}

func (s *sqliteStore) Get(ctx context.Context, id models.ContentID) (*models.TextContentState, error) {
	var docIDsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc_ids FROM text_content_state WHERE tenant = ? AND content_id = ?`,
		s.tenant, id.String(),
	).Scan(&docIDsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	return decodeState(id, docIDsJSON)
}

func (s *sqliteStore) Set(ctx context.Context, state *models.TextContentState) error {
	if err := validState(state); err != nil {
		return err
	}
	docIDsJSON, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO text_content_state (tenant, content_id, doc_ids, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(tenant, content_id) DO UPDATE SET doc_ids = excluded.doc_ids, updated_at = excluded.updated_at`,
		s.tenant, state.ContentID.String(), docIDsJSON, time.Now(),
	)
	return err
}

func (s *sqliteStore) Remove(ctx context.Context, id models.ContentID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM text_content_state WHERE tenant = ? AND content_id = ?`, s.tenant, id.String())
	return err
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM text_content_state WHERE tenant = ?`, s.tenant)
	return err
}

// Replace clears and rewrites the tenant's state in one transaction.
func (s *sqliteStore) Replace(ctx context.Context, states []*models.TextContentState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM text_content_state WHERE tenant = ?`, s.tenant); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO text_content_state (tenant, content_id, doc_ids, updated_at) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, state := range states {
		if err := validState(state); err != nil {
			return err
		}
		docIDsJSON, err := encodeState(state)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, s.tenant, state.ContentID.String(), docIDsJSON, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM text_content_state WHERE tenant = ?`, s.tenant).Scan(&count)
	return count, err
}

func encodeState(state *models.TextContentState) (string, error) {
	normalized := state.Clone()
	data, err := json.Marshal(normalized.DocIDsByLanguage)
	if err != nil {
		return "", fmt.Errorf("failed to marshal doc ids: %w", err)
	}
	return string(data), nil
}

func decodeState(id models.ContentID, docIDsJSON string) (*models.TextContentState, error) {
	var byLanguage map[string][]string
	if err := json.Unmarshal([]byte(docIDsJSON), &byLanguage); err != nil {
		return nil, fmt.Errorf("failed to unmarshal doc ids: %w", err)
	}
	return models.NewTextContentState(id, byLanguage), nil
}
