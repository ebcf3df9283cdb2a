package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemapper/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "sitemapper.db"

// ErrRunNotFound is returned when a run ID is not in the history.
var ErrRunNotFound = errors.New("crawl run not found")

// CrawlDB stores crawl runs in a single SQLite file.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if they
	// don't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		domain TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		stopped INTEGER NOT NULL DEFAULT 0,
		graph_enabled INTEGER NOT NULL DEFAULT 0,
		visited INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		stats TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Pages visited by a run, in visitation order (seq).
	CREATE TABLE IF NOT EXISTS pages (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		url TEXT NOT NULL,
		requested_url TEXT,
		depth INTEGER,
		status_code INTEGER,
		content_type TEXT,
		title TEXT,
		size INTEGER,
		raw_hash TEXT,
		out_links INTEGER,
		fetched_at TEXT,
		PRIMARY KEY (run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);

	CREATE TABLE IF NOT EXISTS edges (
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		PRIMARY KEY (run_id, source, target)
	);

	CREATE TABLE IF NOT EXISTS failures (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		url TEXT NOT NULL,
		error TEXT,
		status_code INTEGER,
		attempts INTEGER,
		PRIMARY KEY (run_id, url)
	);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a complete crawl report in one transaction. Saving the
// same run twice replaces the earlier copy.
func (cdb *CrawlDB) SaveRun(ctx context.Context, report *model.CrawlReport) (err error) {
	if report == nil || report.RunID == "" {
		return errors.New("report has no run id")
	}

	statsJSON, err := json.Marshal(report.Stats)
	if err != nil {
		return fmt.Errorf("failed to serialize stats: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = deleteRun(ctx, tx, report.RunID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, seed, domain, started_at, finished_at, stopped, graph_enabled, visited, failed, stats)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.Seed,
		report.Domain,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Stopped,
		report.GraphEnabled,
		len(report.Pages),
		len(report.Failures),
		string(statsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO pages (run_id, seq, url, requested_url, depth, status_code, content_type, title, size, raw_hash, out_links, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	for i, p := range report.Pages {
		if _, err = pageStmt.ExecContext(ctx,
			report.RunID, i, p.URL, p.RequestedURL, p.Depth, p.StatusCode,
			p.ContentType, p.Title, p.Size, p.Hash, p.OutLinks, formatTimestamp(p.FetchedAt),
		); err != nil {
			return fmt.Errorf("failed to insert page %s: %w", p.URL, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO edges (run_id, source, target) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range report.Edges {
		if _, err = edgeStmt.ExecContext(ctx, report.RunID, e.From, e.To); err != nil {
			return fmt.Errorf("failed to insert edge: %w", err)
		}
	}

	for i, f := range report.Failures {
		if _, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO failures (run_id, seq, url, error, status_code, attempts)
		VALUES (?, ?, ?, ?, ?, ?)`,
			report.RunID, i, f.URL, f.Error, f.StatusCode, f.Attempts,
		); err != nil {
			return fmt.Errorf("failed to insert failure %s: %w", f.URL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunSummary is the metadata of one stored run.
type RunSummary struct {
	ID         string
	Seed       string
	Domain     string
	StartedAt  time.Time
	FinishedAt time.Time
	Stopped    bool
	Visited    int
	Failed     int
}

// Duration returns the wall time of the run.
func (r RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ListRuns returns stored runs, newest first. An empty seed lists runs of
// every seed. limit <= 0 means no limit.
func (cdb *CrawlDB) ListRuns(ctx context.Context, seed string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, seed, domain, started_at, finished_at, stopped, visited, failed
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)
	if seed != "" {
		query += " AND seed = ?"
		args = append(args, seed)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var domain sql.NullString
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Seed, &domain, &started, &finished, &r.Stopped, &r.Visited, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Domain = domain.String
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest run for seed, or ErrRunNotFound.
func (cdb *CrawlDB) LatestRun(ctx context.Context, seed string) (*RunSummary, error) {
	runs, err := cdb.ListRuns(ctx, seed, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs for %s", ErrRunNotFound, seed)
	}
	return &runs[0], nil
}

// GetRun loads a stored run back into a CrawlReport.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*model.CrawlReport, error) {
	report := &model.CrawlReport{
		Pages:    make([]model.PageRecord, 0),
		Edges:    make([]model.Edge, 0),
		Failures: make([]model.Failure, 0),
	}
	var domain, statsJSON sql.NullString
	var started, finished string

	err := cdb.db.QueryRowContext(ctx, `
	SELECT id, seed, domain, started_at, finished_at, stopped, graph_enabled, stats
	FROM runs WHERE id = ?`, id).Scan(
		&report.RunID, &report.Seed, &domain, &started, &finished,
		&report.Stopped, &report.GraphEnabled, &statsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	report.Domain = domain.String
	report.StartedAt = parseTimestamp(started)
	report.FinishedAt = parseTimestamp(finished)
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &report.Stats); err != nil {
			return nil, fmt.Errorf("failed to parse stats: %w", err)
		}
	}

	if report.Pages, err = cdb.pages(ctx, id); err != nil {
		return nil, err
	}
	if report.Edges, err = cdb.edges(ctx, id); err != nil {
		return nil, err
	}
	if report.Failures, err = cdb.failures(ctx, id); err != nil {
		return nil, err
	}
	return report, nil
}

func (cdb *CrawlDB) pages(ctx context.Context, runID string) ([]model.PageRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, requested_url, depth, status_code, content_type, title, size, raw_hash, out_links, fetched_at
	FROM pages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	pages := make([]model.PageRecord, 0)
	for rows.Next() {
		var p model.PageRecord
		var requested, contentType, title, hash, fetched sql.NullString
		if err := rows.Scan(&p.URL, &requested, &p.Depth, &p.StatusCode, &contentType,
			&title, &p.Size, &hash, &p.OutLinks, &fetched); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.RequestedURL = requested.String
		p.ContentType = contentType.String
		p.Title = title.String
		p.Hash = hash.String
		p.FetchedAt = parseTimestamp(fetched.String)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (cdb *CrawlDB) edges(ctx context.Context, runID string) ([]model.Edge, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT source, target FROM edges WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	edges := make([]model.Edge, 0)
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (cdb *CrawlDB) failures(ctx context.Context, runID string) ([]model.Failure, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, error, status_code, attempts FROM failures WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	failures := make([]model.Failure, 0)
	for rows.Next() {
		var f model.Failure
		var msg sql.NullString
		if err := rows.Scan(&f.URL, &msg, &f.StatusCode, &f.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Error = msg.String
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// DeleteRun removes a run and everything recorded with it.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id string) error {
	n, err := deleteRun(ctx, cdb.db, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// deleteRun removes a run with its pages, edges and failures.
func deleteRun(ctx context.Context, db execer, id string) (int64, error) {
	for _, table := range []string{"pages", "edges", "failures"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", id); err != nil {
			return 0, err
		}
	}
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasRecentRun reports whether seed was crawled within d.
func (cdb *CrawlDB) HasRecentRun(ctx context.Context, seed string, d time.Duration) (bool, error) {
	var count int
	err := cdb.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE seed = ? AND started_at > ?`,
		seed, formatTimestamp(time.Now().Add(-d)),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent run: %w", err)
	}
	return count > 0, nil
}

// storedTimestamp is the layout timestamps are written with. It is fixed
// width and UTC so that text comparison orders chronologically.
const storedTimestamp = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestamp)
}

// timestampFormats contains the layouts parseTimestamp accepts, most
// specific first.
var timestampFormats = []string{
	storedTimestamp,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses s with the first matching layout and returns the
// zero time when none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
