package worker

import (
	"strings"

	"gorm.io/gorm"
)

// Advisory lock classes. The two-key form of pg_advisory_xact_lock keeps
// conversation and user locks in separate namespaces.
const (
	lockClassConversation = 1
	lockClassUser         = 2
)

// acquireAdvisoryLock takes a transaction-scoped exclusive lock keyed by
// (class, id). It is released automatically at commit or rollback.
// pg_advisory_xact_lock exists only on Postgres; on other dialects the call
// is a no-op and plain transaction isolation applies.
func acquireAdvisoryLock(tx *gorm.DB, class int, id uint) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", class, int64(id)).Error
}

// stopKeywords end a conversation immediately, skipping the agent entirely
var stopKeywords = map[string]struct{}{
	"stop":   {},
	"quit":   {},
	"cancel": {},
	"end":    {},
}

// IsStopKeyword reports whether an inbound body is an opt-out request.
// Matching is case-insensitive and exact after trimming whitespace.
func IsStopKeyword(body string) bool {
	_, ok := stopKeywords[strings.ToLower(strings.TrimSpace(body))]
	return ok
}
