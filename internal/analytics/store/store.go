// Package store keeps a history of analytics reports in PostgreSQL. Only
// request-window and event statistics are written here; the document index
// itself is never persisted.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS request_window_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    tick        BIGINT NOT NULL,
    no_result   INTEGER NOT NULL,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DefaultRetain keeps one week of minute snapshots.
const DefaultRetain = 7 * 1440

// Store persists analytics reports in the request_window_snapshots table,
// keeping at most retain rows.
type Store struct {
	db     *postgres.Client
	retain int
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(db *postgres.Client, retain int) *Store {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Store{
		db:     db,
		retain: retain,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
		},
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema creates the snapshot table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating snapshot table: %w", err)
	}
	return nil
}

// Save writes one report and prunes rows beyond the retention limit in the
// same transaction, retrying transient failures.
func (s *Store) Save(ctx context.Context, report analytics.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	err = resilience.Retry(ctx, "save-window-snapshot", s.retry, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO request_window_snapshots (tick, no_result, data, captured_at) VALUES ($1, $2, $3, $4)`,
				report.Window.Tick, report.Window.NoResult, data, report.Window.TakenAt,
			); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`DELETE FROM request_window_snapshots WHERE id NOT IN (
					SELECT id FROM request_window_snapshots ORDER BY captured_at DESC LIMIT $1)`,
				s.retain,
			)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("saving window snapshot: %w", err)
	}

	s.logger.Info("window snapshot saved",
		"tick", report.Window.Tick,
		"no_result_requests", report.Window.NoResult,
	)
	return nil
}

// Latest loads the most recent report. It returns nil, nil when the table
// is empty.
func (s *Store) Latest(ctx context.Context) (*analytics.Report, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM request_window_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var report analytics.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &report, nil
}

// List returns the last limit reports, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]analytics.Report, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM request_window_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var reports []analytics.Report
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var report analytics.Report
		if err := json.Unmarshal(data, &report); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// StartPeriodicSave saves source() every interval until ctx is cancelled,
// then once more on the way out.
func (s *Store) StartPeriodicSave(ctx context.Context, source func() analytics.Report, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Save(ctx, source()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.Save(shutdownCtx, source()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
