package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aatumaykin/outreach/internal/logger"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsSQL string

// SQLiteStore keeps the ledger in a SQLite table that only ever receives INSERTs.
type SQLiteStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// OpenSQLite opens (or creates) a SQLite ledger at path and applies the schema.
func OpenSQLite(path string, log *logger.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite ledger path is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single writer per run.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(migrationsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, logger: log}, nil
}

// LoadDoneSet implements Store.
func (s *SQLiteStore) LoadDoneSet(ctx context.Context, campaignKey string) (map[string]struct{}, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT target_id FROM ledger_entries WHERE campaign_key = ? AND outcome = ?`,
		campaignKey, string(OutcomeDone))
	if err != nil {
		return nil, fmt.Errorf("query done set: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan done set: %w", err)
		}
		done[id] = struct{}{}
	}
	return done, rows.Err()
}

// FailedAttempts implements Store.
func (s *SQLiteStore) FailedAttempts(ctx context.Context, campaignKey string) (map[string]int, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id, COUNT(*) FROM ledger_entries WHERE campaign_key = ? AND outcome = ? GROUP BY target_id`,
		campaignKey, string(OutcomeFailed))
	if err != nil {
		return nil, fmt.Errorf("query failed attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan failed attempts: %w", err)
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// Entries implements Store.
func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id, recipient_label, campaign_key, outcome, at_ms FROM ledger_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			outcome string
			atMS    int64
		)
		if err := rows.Scan(&e.TargetID, &e.RecipientLabel, &e.CampaignKey, &outcome, &atMS); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.Timestamp = time.UnixMilli(atMS).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if strings.TrimSpace(e.TargetID) == "" {
		return fmt.Errorf("ledger entry requires target_id")
	}
	if !e.Outcome.Valid() {
		return fmt.Errorf("ledger entry has invalid outcome %q", e.Outcome)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	label := e.RecipientLabel
	if label == "" {
		label = e.TargetID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (target_id, recipient_label, campaign_key, outcome, at_ms) VALUES (?, ?, ?, ?, ?)`,
		e.TargetID, label, e.CampaignKey, string(e.Outcome), e.Timestamp.UTC().UnixMilli())
	if err != nil {
		s.logger.Error("failed to insert ledger entry", err,
			logger.Field{Key: "target_id", Value: e.TargetID})
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
