package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of the HistoryStore and RuleStore
// interfaces.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			email_id VARCHAR(128),
			sender VARCHAR(512),
			subject VARCHAR(1024),
			category VARCHAR(128),
			source VARCHAR(16),
			confidence DOUBLE,
			classified_at TIMESTAMP,
			INDEX idx_history_email_id (email_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rules (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			field VARCHAR(16),
			match_type VARCHAR(16),
			pattern VARCHAR(1024),
			category VARCHAR(128)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rules table: %w", err)
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// Append adds one history record
func (s *MySQLStore) Append(ctx context.Context, rec *core.HistoryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (email_id, sender, subject, category, source, confidence, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.EmailID, rec.From, rec.Subject, rec.Category, string(rec.Source), rec.Confidence,
		rec.ClassifiedAt.UTC().Format("2006-01-02 15:04:05"))

	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, most recent first
func (s *MySQLStore) Recent(ctx context.Context, limit int) ([]*core.HistoryRecord, error) {
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
		rec, err := scanMySQLHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Seen reports whether an email identity already has a record
func (s *MySQLStore) Seen(ctx context.Context, emailID string) (bool, error) {
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
func (s *MySQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Rules returns all rules in insertion order
func (s *MySQLStore) Rules(ctx context.Context) ([]*core.Rule, error) {
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
func (s *MySQLStore) AddRule(ctx context.Context, rule *core.Rule) error {
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
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func scanMySQLHistoryRow(row rowScanner) (*core.HistoryRecord, error) {
	var rec core.HistoryRecord
	var source, classifiedAt string

	if err := row.Scan(&rec.EmailID, &rec.From, &rec.Subject, &rec.Category,
		&source, &rec.Confidence, &classifiedAt); err != nil {
		return nil, fmt.Errorf("failed to scan history row: %w", err)
	}

	rec.Source = core.Source(source)
	ts, err := time.Parse("2006-01-02 15:04:05", classifiedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse classified_at timestamp: %w", err)
	}
	rec.ClassifiedAt = ts
	return &rec, nil
}
