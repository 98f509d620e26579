package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/shii9/reconprobe/internal/recon"
)

// ErrNotFound is returned when no report is stored for a target.
var ErrNotFound = errors.New("report not found")

const createReportsTable = `
CREATE TABLE IF NOT EXISTS recon_reports (
	id SERIAL PRIMARY KEY,
	target TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	open_ports INTEGER[] NOT NULL DEFAULT '{}',
	report JSONB NOT NULL
)`

const createTargetIndex = `
CREATE INDEX IF NOT EXISTS idx_recon_reports_target ON recon_reports(target, finished_at DESC)`

// Store persists finished reports in Postgres.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to dsn, checks the connection and creates the schema.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, stmt := range []string{createReportsTable, createTargetIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", describe(err))
		}
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "store"))}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts rep and returns the new row id.
func (s *Store) Save(ctx context.Context, rep *recon.Report) (int64, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return 0, fmt.Errorf("encode report: %w", err)
	}
	open := make([]int64, 0, len(rep.Ports))
	for p := range rep.Ports {
		open = append(open, int64(p))
	}
	sort.Slice(open, func(i, j int) bool { return open[i] < open[j] })

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO recon_reports (target, started_at, finished_at, open_ports, report)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		rep.Target, rep.StartedAt, rep.FinishedAt, pq.Array(open), body,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", describe(err))
	}
	s.logger.Info("report stored", zap.Int64("id", id), zap.String("target", rep.Target))
	return id, nil
}

// Latest returns the most recently finished report for target.
func (s *Store) Latest(ctx context.Context, target string) (*recon.Report, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM recon_reports WHERE target = $1 ORDER BY finished_at DESC, id DESC LIMIT 1`,
		target,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", target, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select report: %w", describe(err))
	}
	var rep recon.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

// OpenPorts returns the open ports recorded in the latest report for target.
func (s *Store) OpenPorts(ctx context.Context, target string) ([]int64, error) {
	var open []int64
	err := s.db.QueryRowContext(ctx,
		`SELECT open_ports FROM recon_reports WHERE target = $1 ORDER BY finished_at DESC, id DESC LIMIT 1`,
		target,
	).Scan(pq.Array(&open))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", target, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select open ports: %w", describe(err))
	}
	return open, nil
}

// describe adds the Postgres error code to server errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (code %s)", err, pqErr.Code)
	}
	return err
}
