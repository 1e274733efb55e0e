package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/internal/shared/testutil"
	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

type writerFunc func(ctx context.Context, entry *domain.AuditLogEntry) error

func (f writerFunc) Insert(ctx context.Context, entry *domain.AuditLogEntry) error {
	return f(ctx, entry)
}

func entry(module string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		Action:       domain.AuditActionCreate,
		Module:       module,
		ResourceType: "Patient",
		Timestamp:    time.Now().UTC(),
	}
}

func TestQueueWritesEntries(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	repo := storage.NewMemoryAuditRepository()
	q := NewQueue(repo, QueueConfig{Size: 32, Workers: 3}, logger, nil)
	q.Start()

	for i := 0; i < 20; i++ {
		require.True(t, q.Enqueue(context.Background(), entry("patients")))
	}
	require.NoError(t, q.Stop(5*time.Second))

	entries, err := repo.List(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestQueueDropsWhenFull(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	repo := storage.NewMemoryAuditRepository()
	q := NewQueue(repo, QueueConfig{Size: 1, Workers: 1}, logger, nil)

	assert.True(t, q.Enqueue(context.Background(), entry("patients")))
	assert.False(t, q.Enqueue(context.Background(), entry("billing")))
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "audit entry dropped")
	testutil.AssertLogAttr(t, handler, "reason", "queue full")
	assert.Equal(t, 1, q.Len())

	q.Start()
	require.NoError(t, q.Stop(5*time.Second))

	entries, err := repo.List(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "patients", entries[0].Module)
}

func TestQueueRejectsAfterStop(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	q := NewQueue(storage.NewMemoryAuditRepository(), QueueConfig{}, logger, nil)
	q.Start()
	require.NoError(t, q.Stop(time.Second))
	require.NoError(t, q.Stop(time.Second), "stop is idempotent")

	assert.False(t, q.Enqueue(context.Background(), entry("patients")))
	testutil.AssertLogAttr(t, handler, "reason", "queue stopped")
}

func TestQueueWriteFailureIsLogged(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	q := NewQueue(writerFunc(func(context.Context, *domain.AuditLogEntry) error {
		return errors.New("disk full")
	}), QueueConfig{Workers: 1}, logger, nil)
	q.Start()

	assert.True(t, q.Enqueue(context.Background(), entry("patients")))
	require.NoError(t, q.Stop(5*time.Second))

	testutil.AssertLogContains(t, handler, slog.LevelError, "audit write failed")
}

func TestQueueRecoversWriterPanic(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	var mu sync.Mutex
	written := 0
	q := NewQueue(writerFunc(func(_ context.Context, e *domain.AuditLogEntry) error {
		if e.Module == "boom" {
			panic("writer bug")
		}
		mu.Lock()
		written++
		mu.Unlock()
		return nil
	}), QueueConfig{Workers: 1}, logger, nil)
	q.Start()

	q.Enqueue(context.Background(), entry("boom"))
	q.Enqueue(context.Background(), entry("patients"))
	require.NoError(t, q.Stop(5*time.Second))

	testutil.AssertLogContains(t, handler, slog.LevelError, "audit writer panicked")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, written, "the worker survives a panic")
}

func TestQueueWriteOutlivesRequestContext(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	var ctxErr error
	done := make(chan struct{})
	q := NewQueue(writerFunc(func(ctx context.Context, _ *domain.AuditLogEntry) error {
		ctxErr = ctx.Err()
		close(done)
		return nil
	}), QueueConfig{Workers: 1}, logger, nil)
	q.Start()
	defer q.Stop(time.Second)

	reqCtx, cancel := context.WithCancel(context.Background())
	require.True(t, q.Enqueue(reqCtx, entry("patients")))
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("entry was not written")
	}
	assert.NoError(t, ctxErr)
}

func TestQueueStopTimeout(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	release := make(chan struct{})
	started := make(chan struct{})
	q := NewQueue(writerFunc(func(context.Context, *domain.AuditLogEntry) error {
		close(started)
		<-release
		return nil
	}), QueueConfig{Workers: 1, WriteTimeout: time.Minute}, logger, nil)
	q.Start()

	q.Enqueue(context.Background(), entry("patients"))
	<-started

	err := q.Stop(20 * time.Millisecond)
	assert.Error(t, err)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "drain timeout")
	close(release)
}
