package store

import (
	"github.com/mikey/llm-mail-sorter/internal/core"
)

// Store combines the history and rule persistence interfaces; every backend
// in this package implements both over the same underlying storage.
type Store interface {
	core.HistoryStore
	core.RuleStore
}
