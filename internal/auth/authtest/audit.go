package authtest

import (
	"sync"

	"github.com/stagehand/adminauth/internal/db/models"
)

// AuditSink records audit entries in memory.
type AuditSink struct {
	mu      sync.Mutex
	entries []*models.AdminAuditLog
}

// Record appends entry.
func (s *AuditSink) Record(entry *models.AdminAuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// Entries returns the recorded entries in order.
func (s *AuditSink) Entries() []*models.AdminAuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AdminAuditLog(nil), s.entries...)
}

// Count returns the number of entries with actionType.
func (s *AuditSink) Count(actionType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.ActionType == actionType {
			n++
		}
	}
	return n
}

// Last returns the most recent entry, or nil.
func (s *AuditSink) Last() *models.AdminAuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}
