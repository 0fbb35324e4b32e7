package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/model"
)

//go:embed schema_postgres.sql
var schemaPostgresSQL string

// PostgresStore keeps model artifacts in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool, pings it and ensures the schema
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaPostgresSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logging.L().Debugf("Store: connected to PostgreSQL")
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveModel stores a fitted model, replacing a row with the same ID
func (s *PostgresStore) SaveModel(ctx context.Context, fm *model.FittedModel) error {
	a, err := newArtifact(fm)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO model_artifacts (
			model_id, created_at_utc, data_source, observations,
			chains, draws_per_chain, metadata_json, draws_pb
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (model_id) DO UPDATE SET
			created_at_utc = EXCLUDED.created_at_utc,
			data_source = EXCLUDED.data_source,
			observations = EXCLUDED.observations,
			chains = EXCLUDED.chains,
			draws_per_chain = EXCLUDED.draws_per_chain,
			metadata_json = EXCLUDED.metadata_json,
			draws_pb = EXCLUDED.draws_pb,
			saved_at = NOW()
	`,
		a.ID,
		a.Snapshot.CreatedAt.UTC(),
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

// LatestModel returns the most recently fitted model
func (s *PostgresStore) LatestModel(ctx context.Context) (*model.FittedModel, error) {
	var id, meta string
	var drawsPB []byte
	err := s.pool.QueryRow(ctx, `
		SELECT model_id, metadata_json::text, draws_pb
		FROM model_artifacts
		ORDER BY created_at_utc DESC, saved_at DESC
		LIMIT 1
	`).Scan(&id, &meta, &drawsPB)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrModelArtifactMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest model: %w", err)
	}
	return decodeModel(id, []byte(meta), drawsPB)
}

// Prune deletes all but the newest keep models
func (s *PostgresStore) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM model_artifacts
		WHERE model_id NOT IN (
			SELECT model_id FROM model_artifacts
			ORDER BY created_at_utc DESC, saved_at DESC
			LIMIT $1
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune model artifacts: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		logging.L().Infof("Store: pruned %d old models, kept %d", n, keep)
	}
	return int(tag.RowsAffected()), nil
}
