package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// createdLayout is fixed-width so created_at_utc sorts lexically
const createdLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps a SQLite database connection with write serialization
type DB struct {
	conn    *sql.DB
	writeMu sync.Mutex // serializes writes; SQLite allows a single writer
}

// Connect opens a SQLite database with WAL mode enabled, creating the
// parent directory when needed
func Connect(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			logging.L().Warnf("Store: failed to set %s: %v", pragma, err)
		}
	}

	logging.L().Debugf("Store: connected to SQLite database %s", dbPath)
	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// LockWrite acquires the write mutex. Must be paired with UnlockWrite.
func (db *DB) LockWrite() {
	db.writeMu.Lock()
}

// UnlockWrite releases the write mutex
func (db *DB) UnlockWrite() {
	db.writeMu.Unlock()
}

// EnsureSchema creates tables if they don't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.LockWrite()
	defer db.UnlockWrite()

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveModel stores a fitted model. Saving the same model twice replaces
// the earlier row.
func (db *DB) SaveModel(ctx context.Context, fm *model.FittedModel) error {
	a, err := newArtifact(fm)
	if err != nil {
		return err
	}

	db.LockWrite()
	defer db.UnlockWrite()

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO model_artifacts (
			model_id, created_at_utc, data_source, observations,
			chains, draws_per_chain, metadata_json, draws_pb
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (model_id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			data_source = excluded.data_source,
			observations = excluded.observations,
			chains = excluded.chains,
			draws_per_chain = excluded.draws_per_chain,
			metadata_json = excluded.metadata_json,
			draws_pb = excluded.draws_pb,
			saved_at = datetime('now')
	`,
		a.ID,
		a.Snapshot.CreatedAt.UTC().Format(createdLayout),
		a.Snapshot.DataSource,
		a.Snapshot.Observations,
		a.Chains,
		a.DrawsPerChain,
		string(a.Metadata),
		a.Draws,
	)
	if err != nil {
		return fmt.Errorf("failed to save model %s: %w", a.ID, err)
	}

	logging.L().Infof("Store: saved model %s (%d chains x %d draws, %d bytes)",
		a.ID, a.Chains, a.DrawsPerChain, len(a.Draws))
	return nil
}

// LatestModel returns the most recently fitted model, or
// ErrModelArtifactMissing when the store is empty
func (db *DB) LatestModel(ctx context.Context) (*model.FittedModel, error) {
	var id, meta string
	var drawsPB []byte
	err := db.conn.QueryRowContext(ctx, `
		SELECT model_id, metadata_json, draws_pb
		FROM model_artifacts
		ORDER BY created_at_utc DESC, rowid DESC
		LIMIT 1
	`).Scan(&id, &meta, &drawsPB)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelArtifactMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest model: %w", err)
	}
	return decodeModel(id, []byte(meta), drawsPB)
}

// Prune deletes all but the newest keep models
func (db *DB) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}

	db.LockWrite()
	defer db.UnlockWrite()

	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM model_artifacts
		WHERE model_id NOT IN (
			SELECT model_id FROM model_artifacts
			ORDER BY created_at_utc DESC, rowid DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune model artifacts: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		logging.L().Infof("Store: pruned %d old models, kept %d", rows, keep)
	}
	return int(rows), nil
}
