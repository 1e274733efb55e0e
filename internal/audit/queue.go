package audit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"clinicapi/internal/infrastructure"
	"clinicapi/pkg/contracts/domain"
)

// Writer persists audit entries
type Writer interface {
	Insert(ctx context.Context, entry *domain.AuditLogEntry) error
}

// QueueConfig sizes the queue
type QueueConfig struct {
	Size         int
	Workers      int
	WriteTimeout time.Duration
}

type job struct {
	entry   domain.AuditLogEntry
	traceID string
}

// Queue persists audit entries on background workers
type Queue struct {
	mu     sync.RWMutex
	closed bool
	jobs   chan job

	workers      int
	writeTimeout time.Duration
	wg           sync.WaitGroup

	writer  Writer
	logger  *slog.Logger
	metrics *infrastructure.BusinessMetrics
}

// NewQueue creates a queue. Call Start before enqueueing.
func NewQueue(writer Writer, cfg QueueConfig, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Size <= 0 {
		cfg.Size = cfg.Workers * 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &Queue{
		jobs:         make(chan job, cfg.Size),
		workers:      cfg.Workers,
		writeTimeout: cfg.WriteTimeout,
		writer:       writer,
		logger:       infrastructure.WithComponent(logger, "audit_queue"),
		metrics:      metrics,
	}
}

// Start launches the workers
func (q *Queue) Start() {
	q.logger.Info("starting audit queue",
		slog.Int("workers", q.workers),
		slog.Int("capacity", cap(q.jobs)))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Enqueue hands entry to the workers without blocking. It reports false
// when the entry was dropped because the queue is full or stopped.
func (q *Queue) Enqueue(ctx context.Context, entry domain.AuditLogEntry) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	reason := "queue stopped"
	if !q.closed {
		select {
		case q.jobs <- job{entry: entry, traceID: infrastructure.GetTraceID(ctx)}:
			q.metrics.RecordAudit(ctx, infrastructure.AuditEnqueued, entry.Module)
			return true
		default:
			reason = "queue full"
		}
	}

	q.metrics.RecordAudit(ctx, infrastructure.AuditDropped, entry.Module)
	q.logger.WarnContext(ctx, "audit entry dropped",
		slog.String("reason", reason),
		slog.String("action", string(entry.Action)),
		slog.String("module", entry.Module),
		slog.String("resource_id", entry.ResourceID),
		slog.String("user", entry.User))
	return false
}

// Len returns the number of entries waiting to be written
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Stop refuses new entries and waits up to timeout for queued ones to be written
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.logger.Info("draining audit queue", slog.Int("pending", len(q.jobs)))

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("audit queue stopped")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("audit queue drain timeout exceeded", slog.Int("pending", len(q.jobs)))
		return fmt.Errorf("timeout draining audit queue, %d entries pending", len(q.jobs))
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	logger := q.logger.With(slog.Int("worker_id", id))

	for j := range q.jobs {
		q.write(j, logger)
	}
	logger.Debug("worker stopped")
}

// write persists one entry. It runs detached from the request, so the
// request's cancellation never aborts it.
func (q *Queue) write(j job, logger *slog.Logger) {
	ctx := context.Background()
	if j.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, j.traceID)
	}
	ctx, cancel := context.WithTimeout(ctx, q.writeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.metrics.RecordAudit(ctx, infrastructure.AuditFailed, j.entry.Module)
			logger.ErrorContext(ctx, "audit writer panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	entry := j.entry
	if err := q.writer.Insert(ctx, &entry); err != nil {
		q.metrics.RecordAudit(ctx, infrastructure.AuditFailed, entry.Module)
		logger.ErrorContext(ctx, "audit write failed",
			slog.String("error", err.Error()),
			slog.String("action", string(entry.Action)),
			slog.String("module", entry.Module),
			slog.String("resource_id", entry.ResourceID))
		return
	}

	q.metrics.RecordAudit(ctx, infrastructure.AuditWritten, entry.Module)
	logger.DebugContext(ctx, "audit entry written",
		slog.String("action", string(entry.Action)),
		slog.String("module", entry.Module))
}
