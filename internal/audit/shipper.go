// Package audit persists and ships the admin audit trail. Entries are accepted
// without blocking the request path, written to admin_audit_logs by background
// workers, and then forwarded to any configured shippers: an HTTP webhook (for a
// SIEM), an append-only JSON lines file, or batched NDJSON objects in an object
// store. Shipping failures are logged and counted, never surfaced to callers.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stagehand/adminauth/internal/config"
	"github.com/stagehand/adminauth/internal/db/models"
)

// LogEntry is the wire form of an audit record sent to shippers
type LogEntry struct {
	ID           string                 `json:"id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	AdminID      string                 `json:"admin_id,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	Success      bool                   `json:"success"`
	Error        string                 `json:"error,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// NewLogEntry flattens a stored audit row into its shipping form
func NewLogEntry(log *models.AdminAuditLog) *LogEntry {
	return &LogEntry{
		ID:           log.ID,
		Timestamp:    log.CreatedAt.UTC(),
		Action:       log.ActionType,
		AdminID:      deref(log.AdminID),
		SessionID:    deref(log.SessionID),
		ResourceType: deref(log.ResourceType),
		ResourceID:   deref(log.ResourceID),
		IPAddress:    deref(log.IPAddress),
		UserAgent:    deref(log.UserAgent),
		Success:      log.Success,
		Error:        deref(log.ErrorMessage),
		Details:      log.Details,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Shipper delivers audit entries to an external destination
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close flushes buffered entries and releases resources
	Close() error
}

// MultiShipper fans an entry out to every configured destination
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper builds shippers from configuration. Extra shippers built
// elsewhere (the object-storage archive) are appended as given.
func NewMultiShipper(configs []config.AuditShipperConfig, extra ...Shipper) (*MultiShipper, error) {
	ms := &MultiShipper{shippers: make([]Shipper, 0, len(configs)+len(extra))}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				err = fmt.Errorf("webhook config is required for webhook shipper")
				break
			}
			shipper, err = NewWebhookShipper(&WebhookConfig{
				URL:           cfg.Webhook.URL,
				Headers:       cfg.Webhook.Headers,
				Timeout:       time.Duration(cfg.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     cfg.Webhook.BatchSize,
				FlushInterval: time.Duration(cfg.Webhook.FlushInterval) * time.Second,
			})
		case "file":
			if cfg.File == nil {
				err = fmt.Errorf("file config is required for file shipper")
				break
			}
			shipper, err = NewFileShipper(&FileConfig{
				Path:       cfg.File.Path,
				MaxSizeMB:  cfg.File.MaxSizeMB,
				MaxBackups: cfg.File.MaxBackups,
			})
		default:
			err = fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			_ = ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}
		ms.shippers = append(ms.shippers, shipper)
	}

	for _, s := range extra {
		if s != nil {
			ms.shippers = append(ms.shippers, s)
		}
	}
	return ms, nil
}

// Len reports how many destinations are active
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to all configured shippers, continuing past failures.
// The returned error joins every failure.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var errs []error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			slog.Warn("audit shipper error", "shipper", fmt.Sprintf("%T", shipper), "action", entry.Action, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var errs []error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
