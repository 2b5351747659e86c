package audit_test

import (
	"context"
	"errors"
	"sync"

	"github.com/stagehand/adminauth/internal/audit"
	"github.com/stagehand/adminauth/internal/db/models"
)

// memWriter is an in-memory audit.Writer
type memWriter struct {
	mu      sync.Mutex
	entries []*models.AdminAuditLog
	err     error
	block   chan struct{} // when non-nil, writes wait for it to close
	started chan struct{} // receives once per write attempt, if non-nil
}

func (w *memWriter) CreateAuditLog(ctx context.Context, log *models.AdminAuditLog) error {
	if w.started != nil {
		w.started <- struct{}{}
	}
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, log)
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// memShipper records shipped entries
type memShipper struct {
	mu      sync.Mutex
	entries []*audit.LogEntry
	err     error
	closed  bool
}

func (s *memShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *memShipper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memShipper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memShipper) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var errWrite = errors.New("write failed")

func strPtr(s string) *string { return &s }
