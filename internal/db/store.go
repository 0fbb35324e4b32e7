package db

import (
	"context"
	"errors"
	"strings"

	"github.com/ttc-bus-delays/busdelay/internal/model"
)

// ErrModelArtifactMissing is returned when no fitted model has been stored
var ErrModelArtifactMissing = errors.New("no cached model artifact, run `busdelay fit` first")

// ArtifactStore caches fitted models between runs
type ArtifactStore interface {
	SaveModel(ctx context.Context, fm *model.FittedModel) error
	LatestModel(ctx context.Context) (*model.FittedModel, error)
	// Prune keeps the newest keep models and deletes the rest
	Prune(ctx context.Context, keep int) (int, error)
	Close() error
}

// Open picks the backend from the DSN: postgres:// and postgresql:// URLs
// use PostgreSQL, anything else is a SQLite file path (an optional
// sqlite:// prefix is stripped). The schema is created if missing.
func Open(ctx context.Context, dsn string) (ArtifactStore, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return ConnectPostgres(ctx, dsn)
	}

	db, err := Connect(strings.TrimPrefix(dsn, "sqlite://"))
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
