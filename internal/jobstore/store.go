package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sheetfetch/internal/config"
	"sheetfetch/internal/sheet"
)

// timeLayout keeps fractional seconds fixed-width so stored timestamps sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrBatchNotFound reports an unknown batch id or prefix.
var ErrBatchNotFound = errors.New("batch not found")

// Store manages batch history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the job database under the log directory.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return OpenPath(cfg.JobStorePath())
}

// OpenPath opens the database at path, creating it and its directory when
// missing.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create job store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateBatch records a new running batch with one pending row per entry.
func (s *Store) CreateBatch(ctx context.Context, name, source, rootDir string, entries []sheet.Entry) (*Batch, error) {
	now := s.now().UTC()
	batch := &Batch{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    source,
		RootDir:   rootDir,
		Status:    BatchRunning,
		StartedAt: now,
	}
	timestamp := now.Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (id, name, source, root_dir, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, name, nullableString(source), rootDir, batch.Status, timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	for i, entry := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (batch_id, position, title, instrument, song_key, status, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			batch.ID, i+1, entry.Title, entry.Instrument, entry.Key, StatusPending, timestamp,
		); err != nil {
			return nil, fmt.Errorf("insert entry %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return batch, nil
}

// RecordOutcome stores the outcome of the entry at the 1-based position.
func (s *Store) RecordOutcome(ctx context.Context, batchID string, position int, outcome Outcome) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries
         SET status = ?, detail = ?, candidate = ?, output_path = ?, updated_at = ?
         WHERE batch_id = ? AND position = ?`,
		outcome.Status,
		nullableString(outcome.Detail),
		nullableString(outcome.Candidate),
		nullableString(outcome.OutputPath),
		s.now().UTC().Format(timeLayout),
		batchID,
		position,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record outcome: entry %d of batch %s: %w", position, batchID, ErrBatchNotFound)
	}
	return nil
}

// FinishBatch marks the batch finished with status.
func (s *Store) FinishBatch(ctx context.Context, batchID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, finished_at = ? WHERE id = ?`,
		status, s.now().UTC().Format(timeLayout), batchID,
	)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	return nil
}

const batchColumns = "id, name, source, root_dir, status, started_at, finished_at"

// Batches returns up to limit batches, newest first. A limit of zero or less
// returns every batch.
func (s *Store) Batches(ctx context.Context, limit int) ([]*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// FindBatch resolves a batch by id or unique id prefix. "latest" returns the
// newest batch.
func (s *Store) FindBatch(ctx context.Context, ref string) (*Batch, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "latest" {
		batches, err := s.Batches(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(batches) == 0 {
			return nil, ErrBatchNotFound
		}
		return batches[0], nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id LIKE ? || '%' ORDER BY started_at DESC, rowid DESC LIMIT 2`, ref)
	if err != nil {
		return nil, fmt.Errorf("find batch: %w", err)
	}
	defer rows.Close()

	var found []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("batch reference %q is ambiguous", ref)
	}
}

// Records returns a batch's entries in input order.
func (s *Store) Records(ctx context.Context, batchID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, position, title, instrument, song_key, status, detail, candidate, output_path, updated_at
         FROM entries WHERE batch_id = ? ORDER BY position`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			rec        Record
			status     string
			detail     sql.NullString
			candidate  sql.NullString
			outputPath sql.NullString
			updatedRaw string
		)
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.Position, &rec.Entry.Title, &rec.Entry.Instrument,
			&rec.Entry.Key, &status, &detail, &candidate, &outputPath, &updatedRaw); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		rec.Detail = detail.String
		rec.Candidate = candidate.String
		rec.OutputPath = outputPath.String
		rec.UpdatedAt = parseTime(updatedRaw)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Stats returns a count of a batch's entries grouped by status.
func (s *Store) Stats(ctx context.Context, batchID string) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM entries WHERE batch_id = ? GROUP BY status`, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Prune deletes batches started before cutoff, with their entries, and
// returns how many batches went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	stamp := cutoff.UTC().Format(timeLayout)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE batch_id IN (SELECT id FROM batches WHERE started_at < ?)`, stamp); err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE started_at < ?`, stamp)
	if err != nil {
		return 0, fmt.Errorf("prune batches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n, nil
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		batch       Batch
		source      sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(&batch.ID, &batch.Name, &source, &batch.RootDir, &batch.Status, &startedRaw, &finishedRaw); err != nil {
		return nil, err
	}
	batch.Source = source.String
	batch.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid && finishedRaw.String != "" {
		finished := parseTime(finishedRaw.String)
		batch.FinishedAt = &finished
	}
	return &batch, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
