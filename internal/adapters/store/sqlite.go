package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"go.uber.org/zap"
)

// SQLiteStore is a SQLite implementation of the HistoryStore and RuleStore
// interfaces.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// History is append-only; rows are never updated or deleted except by
	// an explicit Clear.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email_id TEXT,
			sender TEXT,
			subject TEXT,
			category TEXT,
			source TEXT,
			confidence REAL,
			classified_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_history_email_id ON history(email_id)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			field TEXT,
			match_type TEXT,
			pattern TEXT,
			category TEXT
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rules table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Append adds one history record
func (s *SQLiteStore) Append(ctx context.Context, rec *core.HistoryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (email_id, sender, subject, category, source, confidence, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.EmailID, rec.From, rec.Subject, rec.Category, string(rec.Source), rec.Confidence,
		rec.ClassifiedAt.Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, most recent first
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*core.HistoryRecord, error) {
	query := `
		SELECT email_id, sender, subject, category, source, confidence, classified_at
		FROM history
		ORDER BY id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*core.HistoryRecord
	for rows.Next() {
		rec, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Seen reports whether an email identity already has a record
func (s *SQLiteStore) Seen(ctx context.Context, emailID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM history WHERE email_id = ?)
	`, emailID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return exists, nil
}

// Clear drops all history records
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Rules returns all rules in insertion order
func (s *SQLiteStore) Rules(ctx context.Context) ([]*core.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field, match_type, pattern, category
		FROM rules
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*core.Rule
	for rows.Next() {
		rule, err := scanRuleRow(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// AddRule adds a rule at the end of the order
func (s *SQLiteStore) AddRule(ctx context.Context, rule *core.Rule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (field, match_type, pattern, category)
		VALUES (?, ?, ?, ?)
	`, string(rule.Field), string(rule.Type), rule.Pattern, rule.Category)

	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHistoryRow(row rowScanner) (*core.HistoryRecord, error) {
	var rec core.HistoryRecord
	var source, classifiedAt string

	if err := row.Scan(&rec.EmailID, &rec.From, &rec.Subject, &rec.Category,
		&source, &rec.Confidence, &classifiedAt); err != nil {
		return nil, fmt.Errorf("failed to scan history row: %w", err)
	}

	rec.Source = core.Source(source)
	ts, err := time.Parse(time.RFC3339, classifiedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse classified_at timestamp: %w", err)
	}
	rec.ClassifiedAt = ts
	return &rec, nil
}

func scanRuleRow(row rowScanner) (*core.Rule, error) {
	var rule core.Rule
	var field, matchType string

	if err := row.Scan(&field, &matchType, &rule.Pattern, &rule.Category); err != nil {
		return nil, fmt.Errorf("failed to scan rule row: %w", err)
	}

	rule.Field = core.MatchField(field)
	rule.Type = core.MatchType(matchType)
	return &rule, nil
}
