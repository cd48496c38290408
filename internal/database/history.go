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

	"github.com/nao1215/vulnmerge/internal/merge"
	"github.com/nao1215/vulnmerge/internal/model"
)

// DefaultFileName is the name of the database file inside the data directory.
const DefaultFileName = "vulnmerge.db"

// storedTimeLayout is fixed width so stored timestamps sort as text.
const storedTimeLayout = "2006-01-02 15:04:05.000000"

// ErrRunNotFound is returned when a requested run does not exist.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB provides SQLite-based storage for merge runs.
//
// Records are stored as JSON blobs next to their fingerprint and family.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DefaultFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
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

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (h *HistoryDB) createTables() error {
	schema := `
	-- Runs store one merge batch each
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		min_risk TEXT,
		total_records INTEGER DEFAULT 0,
		merged_count INTEGER DEFAULT 0,
		filtered_count INTEGER DEFAULT 0,
		risk_summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Run families record which scanner families a run covered
	CREATE TABLE IF NOT EXISTS run_families (
		run_id TEXT NOT NULL,
		family TEXT NOT NULL,
		PRIMARY KEY (run_id, family)
	);

	CREATE INDEX IF NOT EXISTS idx_run_families_family ON run_families(family);

	-- Findings store the merged records of a run as JSON
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		family TEXT NOT NULL,
		severity INTEGER NOT NULL,
		name TEXT NOT NULL,
		record_json TEXT NOT NULL,
		UNIQUE(run_id, fingerprint)
	);

	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id, family);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// RunSummary describes a stored run without its records.
type RunSummary struct {
	// ID is the database row id, usable with GetRunByID.
	ID    int64
	RunID string

	StartedAt  time.Time
	FinishedAt time.Time

	Families      []model.Family
	MinRisk       string
	TotalRecords  int
	MergedCount   int
	FilteredCount int

	// RiskSummary counts the merged records per severity label.
	RiskSummary map[string]int
}

// runFamilies returns the families a run covered: those of the readable
// input files and those present in the merged records.
func runFamilies(result *model.BatchResult) []model.Family {
	seen := make(map[model.Family]bool)
	for _, f := range result.Files {
		if f.Status != model.FileSkipped {
			seen[f.Family] = true
		}
	}
	for _, f := range result.Families() {
		seen[f] = true
	}
	var out []model.Family
	for _, f := range model.AllFamilies() {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out
}

// riskSummary counts records per severity label.
func riskSummary(records []model.Record) map[string]int {
	out := make(map[string]int)
	for s, n := range model.CountBySeverity(records) {
		if n > 0 {
			out[s.Label()] = n
		}
	}
	return out
}

// SaveRun stores a finished run and all of its merged records.
func (h *HistoryDB) SaveRun(ctx context.Context, result *model.BatchResult) (err error) {
	summaryJSON, err := json.Marshal(riskSummary(result.Merged))
	if err != nil {
		return fmt.Errorf("failed to serialize risk summary: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, started_at, finished_at, min_risk, total_records, merged_count, filtered_count, risk_summary)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID,
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
		result.MinRisk,
		result.TotalRecords,
		result.MergedCount,
		result.FilteredCount,
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, f := range runFamilies(result) {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO run_families (run_id, family) VALUES (?, ?)`,
			result.RunID, string(f),
		); err != nil {
			return fmt.Errorf("failed to save run family: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO findings (run_id, fingerprint, family, severity, name, record_json)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare finding insert: %w", err)
	}
	defer stmt.Close()

	for i := range result.Merged {
		r := &result.Merged[i]
		var recordJSON []byte
		recordJSON, err = json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to serialize record: %w", err)
		}
		if _, err = stmt.ExecContext(ctx,
			result.RunID,
			merge.Fingerprint(r),
			string(r.Family),
			int(r.Severity),
			r.VulnerabilityName,
			string(recordJSON),
		); err != nil {
			return fmt.Errorf("failed to save finding: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// LatestRecords returns, for each family, the records stored by the most
// recent run that covered that family.
func (h *HistoryDB) LatestRecords(ctx context.Context, families []model.Family) ([]model.Record, error) {
	var out []model.Record
	for _, f := range families {
		var runID string
		err := h.db.QueryRowContext(ctx, `
		SELECT r.run_id FROM runs r
		JOIN run_families rf ON rf.run_id = r.run_id
		WHERE rf.family = ?
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT 1
		`, string(f)).Scan(&runID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find latest run for %s: %w", f, err)
		}

		recs, err := h.queryRecords(ctx,
			`SELECT record_json FROM findings WHERE run_id = ? AND family = ? ORDER BY id`,
			runID, string(f),
		)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// RunRecords returns every record stored for a run, in stored order.
func (h *HistoryDB) RunRecords(ctx context.Context, runID string) ([]model.Record, error) {
	return h.queryRecords(ctx,
		`SELECT record_json FROM findings WHERE run_id = ? ORDER BY id`,
		runID,
	)
}

func (h *HistoryDB) queryRecords(ctx context.Context, query string, args ...any) ([]model.Record, error) {
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		var r model.Record
		if err := json.Unmarshal([]byte(recordJSON), &r); err != nil {
			return nil, fmt.Errorf("failed to parse finding: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRuns returns every stored run, newest first.
func (h *HistoryDB) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT id, run_id, started_at, finished_at, min_risk, total_records, merged_count, filtered_count, risk_summary
	FROM runs
	ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var runs []RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range runs {
		fams, err := h.families(ctx, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Families = fams
	}
	return runs, nil
}

// GetRunByID returns the run with the given row id.
func (h *HistoryDB) GetRunByID(ctx context.Context, id int64) (*RunSummary, error) {
	return h.getRun(ctx, `WHERE id = ?`, id)
}

// GetRun returns the run with the given run id.
func (h *HistoryDB) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	return h.getRun(ctx, `WHERE run_id = ?`, runID)
}

func (h *HistoryDB) getRun(ctx context.Context, where string, arg any) (*RunSummary, error) {
	row := h.db.QueryRowContext(ctx, `
	SELECT id, run_id, started_at, finished_at, min_risk, total_records, merged_count, filtered_count, risk_summary
	FROM runs `+where, arg)
	s, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Families, err = h.families(ctx, s.RunID)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (h *HistoryDB) families(ctx context.Context, runID string) ([]model.Family, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT family FROM run_families WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run families: %w", err)
	}
	defer rows.Close()

	seen := make(map[model.Family]bool)
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan run family: %w", err)
		}
		seen[model.Family(f)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []model.Family
	for _, f := range model.AllFamilies() {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunSummary, error) {
	var (
		s           RunSummary
		started     string
		finished    sql.NullString
		minRisk     sql.NullString
		summaryJSON sql.NullString
	)
	err := row.Scan(&s.ID, &s.RunID, &started, &finished, &minRisk,
		&s.TotalRecords, &s.MergedCount, &s.FilteredCount, &summaryJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("failed to scan run: %w", err)
	}

	s.StartedAt = parseTimestamp(started)
	if finished.Valid {
		s.FinishedAt = parseTimestamp(finished.String)
	}
	s.MinRisk = minRisk.String
	s.RiskSummary = make(map[string]int)
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &s.RiskSummary); err != nil {
			s.RiskSummary = make(map[string]int)
		}
	}
	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimeLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
