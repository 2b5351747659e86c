package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/safego"
	"github.com/stagehand/adminauth/internal/telemetry"
)

const (
	DefaultQueueSize    = 1024
	DefaultWorkers      = 2
	DefaultWriteTimeout = 5 * time.Second
	DefaultShipTimeout  = 30 * time.Second
)

// Writer persists an audit row
type Writer interface {
	CreateAuditLog(ctx context.Context, log *models.AdminAuditLog) error
}

// Config sizes the logger's queue and worker pool
type Config struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
	// ShipTimeout bounds delivery to the shippers, separately from the database write
	ShipTimeout time.Duration
	Clock       clock.Clock
}

// Logger accepts audit entries without blocking and persists them from a
// fixed pool of background workers.
type Logger struct {
	writer  Writer
	shipper Shipper
	cfg     Config
	clock   clock.Clock

	queue  chan *models.AdminAuditLog
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLogger starts cfg.Workers goroutines draining the queue. shipper may be nil.
func NewLogger(writer Writer, shipper Shipper, cfg Config) *Logger {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ShipTimeout <= 0 {
		cfg.ShipTimeout = DefaultShipTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	l := &Logger{
		writer:  writer,
		shipper: shipper,
		cfg:     cfg,
		clock:   clk,
		queue:   make(chan *models.AdminAuditLog, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		l.wg.Add(1)
		safego.Go(l.work)
	}
	return l
}

// Record enqueues the entry. It never blocks: a full queue or a closed logger
// drops the entry and counts it.
func (l *Logger) Record(entry *models.AdminAuditLog) {
	if entry == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.clock.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.drop(entry, "logger closed")
		return
	}
	select {
	case l.queue <- entry:
	default:
		l.drop(entry, "queue full")
	}
}

func (l *Logger) drop(entry *models.AdminAuditLog, reason string) {
	telemetry.AuditEntriesDroppedTotal.Inc()
	slog.Warn("audit entry dropped", "reason", reason, "action", entry.ActionType)
}

func (l *Logger) work() {
	defer l.wg.Done()
	for entry := range l.queue {
		l.write(entry)
	}
}

func (l *Logger) write(entry *models.AdminAuditLog) {
	l.persist(entry)
	if l.shipper != nil {
		l.ship(entry)
	}
}

func (l *Logger) persist(entry *models.AdminAuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
	defer cancel()

	if err := l.writer.CreateAuditLog(ctx, entry); err != nil {
		telemetry.AuditWriteErrorsTotal.WithLabelValues("database").Inc()
		slog.Error("failed to persist audit entry", "action", entry.ActionType, "error", err)
	}
}

func (l *Logger) ship(entry *models.AdminAuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ShipTimeout)
	defer cancel()

	if err := l.shipper.Ship(ctx, NewLogEntry(entry)); err != nil {
		slog.Debug("audit entry not shipped to every destination", "action", entry.ActionType, "error", err)
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx to
// end, then closes the shipper.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if l.shipper != nil {
		return l.shipper.Close()
	}
	return nil
}
