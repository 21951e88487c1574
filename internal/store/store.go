package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed schema.sql
var schemaSQL string

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrNoRuns is returned when the database holds no page reports at all.
var ErrNoRuns = errors.New("no runs recorded")

const (
	sqlUpsertPage = `
        INSERT INTO pages (run_id, url, final_url, status_code, started_at, duration_ms, screenshot, error, report)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (run_id, url) DO UPDATE SET
            final_url = EXCLUDED.final_url,
            status_code = EXCLUDED.status_code,
            started_at = EXCLUDED.started_at,
            duration_ms = EXCLUDED.duration_ms,
            screenshot = EXCLUDED.screenshot,
            error = EXCLUDED.error,
            report = EXCLUDED.report;
    `
	sqlDeleteFindings = `DELETE FROM findings WHERE run_id = $1 AND url = $2;`
	sqlDeleteAudits   = `DELETE FROM audits WHERE run_id = $1 AND url = $2;`
	sqlUpsertAudit    = `
        INSERT INTO audits (run_id, url, audit, score, grade, error)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (run_id, url, audit) DO UPDATE SET
            score = EXCLUDED.score,
            grade = EXCLUDED.grade,
            error = EXCLUDED.error;
    `
	sqlReportsByRun = `
        SELECT report
        FROM pages
        WHERE run_id = $1
        ORDER BY started_at ASC, url ASC;
    `
	sqlLatestRun = `SELECT run_id FROM pages ORDER BY started_at DESC LIMIT 1;`
)

var findingColumns = []string{
	"run_id", "url", "audit", "check_id", "category", "severity",
	"message", "description", "recommendation", "nodes",
}

// Store provides a PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Store = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the pages, audits and findings tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// PersistReport writes one page report in a single transaction. Persisting
// the same run and URL again replaces the earlier rows.
func (s *Store) PersistReport(ctx context.Context, report *schemas.PageReport) error {
	if report == nil {
		return errors.New("cannot persist a nil page report")
	}
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode page report: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful Commit returns ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlUpsertPage,
		report.RunID, report.URL, report.FinalURL, report.StatusCode,
		report.StartedAt.UTC(), report.Duration.Milliseconds(),
		report.Screenshot, report.Error, doc,
	); err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteFindings, report.RunID, report.URL); err != nil {
		return fmt.Errorf("failed to clear previous findings: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteAudits, report.RunID, report.URL); err != nil {
		return fmt.Errorf("failed to clear previous audits: %w", err)
	}

	if err := s.persistAudits(ctx, tx, report); err != nil {
		return err
	}
	if err := s.persistFindings(ctx, tx, report); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Persisted page report.", zap.String("run_id", report.RunID), zap.String("url", report.URL))
	return nil
}

func (s *Store) persistAudits(ctx context.Context, tx pgx.Tx, report *schemas.PageReport) error {
	names := report.AuditNames()
	if len(names) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, name := range names {
		res := report.Audits[name]
		batch.Queue(sqlUpsertAudit, report.RunID, report.URL, name, res.Score, string(res.Grade), res.Error)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for _, name := range names {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert %s audit: %w", name, err)
		}
	}
	return nil
}

func (s *Store) persistFindings(ctx context.Context, tx pgx.Tx, report *schemas.PageReport) error {
	var rows [][]interface{}
	for _, name := range report.AuditNames() {
		for _, f := range report.Audits[name].Findings.All() {
			nodes := f.Nodes
			if nodes == nil {
				nodes = []schemas.Node{}
			}
			nodesJSON, err := json.Marshal(nodes)
			if err != nil {
				return fmt.Errorf("failed to encode nodes for %s: %w", f.ID, err)
			}
			rows = append(rows, []interface{}{
				report.RunID, report.URL, name, f.ID, string(f.Category), string(f.Severity),
				f.Message, f.Description, f.Recommendation, nodesJSON,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"findings"}, findingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy findings: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

// GetReportsByRunID returns the stored page reports of a run, oldest first.
func (s *Store) GetReportsByRunID(ctx context.Context, runID string) ([]schemas.PageReport, error) {
	rows, err := s.pool.Query(ctx, sqlReportsByRun, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query page reports: %w", err)
	}
	defer rows.Close()

	var reports []schemas.PageReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan page report row: %w", err)
		}
		var report schemas.PageReport
		if err := json.Unmarshal(doc, &report); err != nil {
			return nil, fmt.Errorf("failed to decode page report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return reports, nil
}

// LatestRunID returns the run id of the most recently started page.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	if err := s.pool.QueryRow(ctx, sqlLatestRun).Scan(&runID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoRuns
		}
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return runID, nil
}

// Connect opens a pgx pool, verifies it and ensures the schema exists. The
// returned close function releases the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := newPool(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}
