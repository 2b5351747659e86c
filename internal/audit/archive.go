package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/google/uuid"

	"github.com/stagehand/adminauth/internal/config"
	"github.com/stagehand/adminauth/internal/safego"
	"github.com/stagehand/adminauth/internal/storage"
	"github.com/stagehand/adminauth/internal/telemetry"
)

const (
	defaultArchiveBatchSize     = 500
	defaultArchiveFlushInterval = time.Minute
	archiveUploadTimeout        = 30 * time.Second
	// failed batches are retried on the next flush up to this many batches' worth of entries
	archiveRetainBatches = 10
)

// ArchiveConfig configures the object-storage archive shipper
type ArchiveConfig struct {
	Prefix        string
	BatchSize     int
	FlushInterval time.Duration
	Clock         clock.Clock
}

// ArchiveConfigFrom maps application configuration onto ArchiveConfig
func ArchiveConfigFrom(cfg *config.AuditArchiveConfig) ArchiveConfig {
	return ArchiveConfig{
		Prefix:        cfg.Prefix,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}
}

// ArchiveShipper buffers entries and writes them as NDJSON objects keyed by
// date under the configured prefix. Each object's SHA-256 is recorded by the
// storage backend.
type ArchiveShipper struct {
	store  storage.Storage
	cfg    ArchiveConfig
	clock  clock.Clock
	mu     sync.Mutex
	buf    []*LogEntry
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewArchiveShipper starts the periodic flush loop
func NewArchiveShipper(store storage.Storage, cfg ArchiveConfig) *ArchiveShipper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultArchiveBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultArchiveFlushInterval
	}
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	a := &ArchiveShipper{
		store:  store,
		cfg:    cfg,
		clock:  clk,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	ticker := clk.Ticker(cfg.FlushInterval)
	safego.Go(func() { a.loop(ticker) })
	return a
}

func (a *ArchiveShipper) loop(ticker *clock.Ticker) {
	defer close(a.doneCh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), archiveUploadTimeout)
			_ = a.Flush(ctx)
			cancel()
		case <-a.stopCh:
			return
		}
	}
}

// Ship buffers the entry and uploads once a full batch has accumulated
func (a *ArchiveShipper) Ship(ctx context.Context, entry *LogEntry) error {
	a.mu.Lock()
	a.buf = append(a.buf, entry)
	full := len(a.buf) >= a.cfg.BatchSize
	a.mu.Unlock()

	if full {
		return a.Flush(ctx)
	}
	return nil
}

// Pending reports how many entries are buffered
func (a *ArchiveShipper) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// Flush uploads everything buffered as one object. On failure the entries are
// returned to the buffer, bounded so a dead backend cannot grow it without limit.
func (a *ArchiveShipper) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.buf
	a.buf = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			slog.Error("failed to encode audit entry for archive", "action", e.Action, "error", err)
		}
	}

	path := a.objectPath()
	result, err := a.store.Upload(ctx, path, &body)
	if err != nil {
		telemetry.AuditWriteErrorsTotal.WithLabelValues("archive").Inc()
		a.requeue(batch)
		slog.Warn("audit archive upload failed", "path", path, "entries", len(batch), "error", err)
		return fmt.Errorf("archive upload %s: %w", path, err)
	}

	slog.Debug("audit batch archived", "path", result.Path, "entries", len(batch), "bytes", result.Size, "sha256", result.Checksum)
	return nil
}

func (a *ArchiveShipper) requeue(batch []*LogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	merged := append(batch, a.buf...)
	limit := a.cfg.BatchSize * archiveRetainBatches
	if over := len(merged) - limit; over > 0 {
		telemetry.AuditEntriesDroppedTotal.Add(float64(over))
		merged = merged[over:]
	}
	a.buf = merged
}

func (a *ArchiveShipper) objectPath() string {
	now := a.clock.Now().UTC()
	return fmt.Sprintf("%s%s/%s-%s.ndjson",
		a.cfg.Prefix,
		now.Format("2006/01/02"),
		now.Format("150405.000000000"),
		uuid.NewString(),
	)
}

// Close stops the flush loop and uploads whatever remains
func (a *ArchiveShipper) Close() error {
	a.once.Do(func() { close(a.stopCh) })
	<-a.doneCh

	ctx, cancel := context.WithTimeout(context.Background(), archiveUploadTimeout)
	defer cancel()
	return a.Flush(ctx)
}
