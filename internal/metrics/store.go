package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Surface identifies where a search was submitted from.
type Surface string

const (
	SurfaceWeb Surface = "web"
	SurfaceAPI Surface = "api"
	SurfaceCLI Surface = "cli"
	SurfaceMCP Surface = "mcp"
)

// Outcome is the result of a single search.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeRejected   Outcome = "rejected"
	OutcomeSuperseded Outcome = "superseded" // replaced by a newer session submission
)

// AllSurfaces lists every surface in display order.
var AllSurfaces = []Surface{SurfaceWeb, SurfaceAPI, SurfaceCLI, SurfaceMCP}

// AllOutcomes lists every outcome in display order.
var AllOutcomes = []Outcome{OutcomeSuccess, OutcomeFailure, OutcomeRejected, OutcomeSuperseded}

// Totals holds cumulative counts per outcome for one surface.
type Totals map[Outcome]int64

// Sum returns the number of searches across all outcomes.
func (t Totals) Sum() int64 {
	var sum int64
	for _, n := range t {
		sum += n
	}
	return sum
}

// DailyCount is the number of searches for a surface on one day.
type DailyCount struct {
	Date    string
	Surface Surface
	Outcome Outcome
	Count   int64
}

// Store manages SQLite persistence for search counts.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.searchchat/stats.db.
func DefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".searchchat", "stats.db"), nil
}

// NewStore creates a new Store with the database at ~/.searchchat/stats.db.
func NewStore() (*Store, error) {
	dbPath, err := DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return NewStoreWithPath(dbPath)
}

// NewStoreWithPath creates a new Store with a custom database path.
// The parent directory is created if it does not exist.
func NewStoreWithPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS search_counts (
			surface TEXT NOT NULL,
			outcome TEXT NOT NULL,
			date TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			PRIMARY KEY (surface, outcome, date)
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Increment increments the count for surface and outcome for today's date.
func (s *Store) Increment(surface Surface, outcome Outcome) error {
	return s.incrementOn(surface, outcome, time.Now())
}

func (s *Store) incrementOn(surface Surface, outcome Outcome, day time.Time) error {
	upsertSQL := `
		INSERT INTO search_counts (surface, outcome, date, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(surface, outcome, date) DO UPDATE SET count = count + 1;
	`
	_, err := s.db.Exec(upsertSQL, string(surface), string(outcome), day.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to increment count: %w", err)
	}
	return nil
}

// GetTotals returns cumulative counts for a surface across all dates.
func (s *Store) GetTotals(surface Surface) (Totals, error) {
	totals := newTotals()

	rows, err := s.db.Query(
		"SELECT outcome, COALESCE(SUM(count), 0) FROM search_counts WHERE surface = ? GROUP BY outcome",
		string(surface),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals for %s: %w", surface, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var outcome string
		var total int64
		if err := rows.Scan(&outcome, &total); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		totals[Outcome(outcome)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return totals, nil
}

// GetAllTotals returns cumulative counts for every surface. Surfaces and
// outcomes that were never recorded are reported as zero.
func (s *Store) GetAllTotals() (map[Surface]Totals, error) {
	result := make(map[Surface]Totals, len(AllSurfaces))
	for _, surface := range AllSurfaces {
		result[surface] = newTotals()
	}

	rows, err := s.db.Query(
		"SELECT surface, outcome, COALESCE(SUM(count), 0) FROM search_counts GROUP BY surface, outcome",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var surface, outcome string
		var total int64
		if err := rows.Scan(&surface, &outcome, &total); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		totals, ok := result[Surface(surface)]
		if !ok {
			totals = newTotals()
			result[Surface(surface)] = totals
		}
		totals[Outcome(outcome)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// GetCountByDate returns the count for a surface, outcome and date (YYYY-MM-DD).
func (s *Store) GetCountByDate(surface Surface, outcome Outcome, date string) (int64, error) {
	var count int64
	row := s.db.QueryRow(
		"SELECT COALESCE(count, 0) FROM search_counts WHERE surface = ? AND outcome = ? AND date = ?",
		string(surface), string(outcome), date,
	)
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get count: %w", err)
	}
	return count, nil
}

// GetDailyCounts returns per-day counts for the last days days, newest first.
func (s *Store) GetDailyCounts(days int) ([]DailyCount, error) {
	if days < 1 {
		days = 1
	}
	since := time.Now().AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	rows, err := s.db.Query(
		`SELECT date, surface, outcome, count FROM search_counts
		 WHERE date >= ? ORDER BY date DESC, surface, outcome`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []DailyCount
	for rows.Next() {
		var dc DailyCount
		var surface, outcome string
		if err := rows.Scan(&dc.Date, &surface, &outcome, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		dc.Surface = Surface(surface)
		dc.Outcome = Outcome(outcome)
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func newTotals() Totals {
	totals := make(Totals, len(AllOutcomes))
	for _, outcome := range AllOutcomes {
		totals[outcome] = 0
	}
	return totals
}
