package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/stagehand/adminauth/internal/safego"
	"github.com/stagehand/adminauth/internal/telemetry"
)

const (
	defaultWebhookTimeout       = 10 * time.Second
	defaultWebhookFlushInterval = 5 * time.Second
	webhookQueueSize            = 1000
)

// WebhookConfig holds webhook shipper configuration
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// BatchSize is how many entries to batch before sending (0 = no batching)
	BatchSize     int
	FlushInterval time.Duration
}

// WebhookShipper POSTs entries as JSON, one per request or as an array per batch
type WebhookShipper struct {
	cfg       WebhookConfig
	client    *http.Client
	batchCh   chan *LogEntry
	batch     []*LogEntry
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a new webhook shipper
func NewWebhookShipper(cfg *WebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = defaultWebhookTimeout
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultWebhookFlushInterval
	}

	ws := &WebhookShipper{
		cfg:     c,
		client:  &http.Client{Timeout: c.Timeout},
		batchCh: make(chan *LogEntry, webhookQueueSize),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if c.BatchSize > 0 {
		safego.Go(ws.processBatches)
	} else {
		close(ws.doneCh)
	}
	return ws, nil
}

func (ws *WebhookShipper) processBatches() {
	defer close(ws.doneCh)

	ticker := time.NewTicker(ws.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-ws.batchCh:
			ws.batch = append(ws.batch, entry)
			if len(ws.batch) >= ws.cfg.BatchSize {
				ws.flushBatch()
			}
		case <-ticker.C:
			ws.flushBatch()
		case <-ws.closeCh:
			for {
				select {
				case entry := <-ws.batchCh:
					ws.batch = append(ws.batch, entry)
				default:
					ws.flushBatch()
					return
				}
			}
		}
	}
}

func (ws *WebhookShipper) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}
	defer func() { ws.batch = ws.batch[:0] }()

	data, err := json.Marshal(ws.batch)
	if err != nil {
		slog.Error("failed to marshal audit batch", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.cfg.Timeout)
	defer cancel()

	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditWriteErrorsTotal.WithLabelValues("webhook").Inc()
		slog.Warn("failed to send audit batch", "entries", len(ws.batch), "error", err)
	}
}

// Ship sends an entry to the webhook, or queues it when batching is enabled.
// A full batch queue falls back to a direct send.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.cfg.BatchSize > 0 && !ws.closed() {
		select {
		case ws.batchCh <- entry:
			return nil
		default:
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditWriteErrorsTotal.WithLabelValues("webhook").Inc()
		return err
	}
	return nil
}

func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (ws *WebhookShipper) closed() bool {
	select {
	case <-ws.closeCh:
		return true
	default:
		return false
	}
}

// Close flushes any batched entries and waits for the batch loop to exit
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	<-ws.doneCh
	return nil
}
