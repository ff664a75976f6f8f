package core

import (
	"context"
)

// ChatClient defines the interface for posting a prompt to a chat-completion
// endpoint and receiving raw completion text.
type ChatClient interface {
	// Complete sends a system and user prompt and returns the completion text.
	Complete(ctx context.Context, system, user string) (string, error)

	// Model returns the name of the underlying model, for decision provenance.
	Model() string
}

// HistoryStore is the append-only record of classification decisions.
type HistoryStore interface {
	// Append adds one record. Records are never rewritten in place.
	Append(ctx context.Context, rec *HistoryRecord) error

	// Recent returns up to limit records, most recent first. limit <= 0
	// returns everything.
	Recent(ctx context.Context, limit int) ([]*HistoryRecord, error)

	// Seen reports whether an email identity already has a record.
	Seen(ctx context.Context, emailID string) (bool, error)

	// Clear drops all records.
	Clear(ctx context.Context) error
}

// RuleStore holds the ordered deterministic rule set.
type RuleStore interface {
	// Rules returns all rules in insertion order.
	Rules(ctx context.Context) ([]*Rule, error)

	// AddRule adds a rule at the end of the order.
	AddRule(ctx context.Context, rule *Rule) error
}

// Mailbox is the mail-server collaborator. The core only consumes Email
// snapshots from it and requests moves.
type Mailbox interface {
	// ListFolders returns all folder paths in the mailbox.
	ListFolders(ctx context.Context) ([]string, error)

	// Fetch returns up to limit candidate emails from a folder.
	Fetch(ctx context.Context, folder string, limit int) ([]*Email, error)

	// Move files an email into the destination folder.
	Move(ctx context.Context, email *Email, folder string) error
}
