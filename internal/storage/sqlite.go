package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"sentinel/internal/model"
	"sentinel/internal/pipeline"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:sentinel.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			entity_key TEXT NOT NULL,
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL,
			severity TEXT NOT NULL,
			score REAL NOT NULL,
			agreement INTEGER NOT NULL,
			rationale_json TEXT NOT NULL,
			members_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_window_start ON events(window_start)`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_key)`,
		`CREATE TABLE IF NOT EXISTS run_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			groups INTEGER NOT NULL,
			events INTEGER NOT NULL,
			duplicates INTEGER NOT NULL,
			detectors_json TEXT NOT NULL,
			warnings_json TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveEvents(ctx context.Context, events []model.ScoredEvent) error {
	if s.db == nil || len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO events
		(event_id, group_id, entity_key, window_start, window_end, severity, score, agreement, rationale_json, members_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
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

func (s *sqliteStore) SaveSummary(ctx context.Context, summary pipeline.RunSummary) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_summaries (started_at, finished_at, groups, events, duplicates, detectors_json, warnings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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
