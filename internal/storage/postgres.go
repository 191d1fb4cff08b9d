package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sentinel/internal/model"
	"sentinel/internal/pipeline"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/sentinel?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			entity_key TEXT NOT NULL,
			window_start TIMESTAMPTZ NOT NULL,
			window_end TIMESTAMPTZ NOT NULL,
			severity TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			agreement INTEGER NOT NULL,
			rationale_json JSONB NOT NULL,
			members_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_window_start ON events(window_start)`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_key)`,
		`CREATE TABLE IF NOT EXISTS run_summaries (
			id BIGSERIAL PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			groups INTEGER NOT NULL,
			events INTEGER NOT NULL,
			duplicates INTEGER NOT NULL,
			detectors_json JSONB NOT NULL,
			warnings_json JSONB
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveEvents(ctx context.Context, events []model.ScoredEvent) error {
	if s.db == nil || len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events
		(event_id, group_id, entity_key, window_start, window_end, severity, score, agreement, rationale_json, members_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.EventID,
			ev.Group.GroupID,
			ev.Group.EntityKey,
			ev.Group.WindowStart.UTC(),
			ev.Group.WindowEnd.UTC(),
			string(ev.Severity),
			ev.Score,
			ev.Group.Agreement,
			encodeJSON(ev.Rationale),
			encodeJSON(ev.Group.Members),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresStore) SaveSummary(ctx context.Context, summary pipeline.RunSummary) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_summaries (started_at, finished_at, groups, events, duplicates, detectors_json, warnings_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		summary.StartedAt.UTC(),
		summary.FinishedAt.UTC(),
		summary.Groups,
		summary.Events,
		summary.Duplicates,
		encodeJSON(summary.Detectors),
		encodeJSON(summary.Warnings),
	)
	return err
}
