package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"sentinel/internal/config"
	"sentinel/internal/model"
	"sentinel/internal/pipeline"
)

// Store persists finished runs. Implementations are selected by config;
// a disabled storage section yields a nil Store and callers skip writes.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveEvents(ctx context.Context, events []model.ScoredEvent) error
	SaveSummary(ctx context.Context, summary pipeline.RunSummary) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
