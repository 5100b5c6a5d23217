package history_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/quotagate/pkg/history"
)

type failingStorage struct {
	calls atomic.Int32
}

func (f *failingStorage) StoreBatch(context.Context, []history.Entry) error {
	f.calls.Add(1)
	return errors.New("disk full")
}

func (f *failingStorage) List(context.Context, uuid.UUID, int) ([]history.Entry, error) {
	return nil, nil
}

type blockingStorage struct {
	release chan struct{}
}

func (b *blockingStorage) StoreBatch(ctx context.Context, _ []history.Entry) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func (b *blockingStorage) List(context.Context, uuid.UUID, int) ([]history.Entry, error) {
	return nil, nil
}

func TestNewWriter(t *testing.T) {
	t.Parallel()

	_, err := history.NewWriter(nil, history.WriterOptions{})
	assert.ErrorIs(t, err, history.ErrStorageRequired)
}

func TestWriter_FlushesOnBatchSize(t *testing.T) {
	t.Parallel()

	storage := history.NewMemoryStorage()
	w, err := history.NewWriter(storage, history.WriterOptions{BatchSize: 5, BatchTimeout: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	userID := uuid.New()
	for range 5 {
		require.NoError(t, w.Append(context.Background(), history.Entry{UserID: userID, Action: "merge", FileCount: 2}))
	}

	assert.Eventually(t, func() bool { return storage.Len() == 5 }, time.Second, 5*time.Millisecond)

	entries, err := storage.List(context.Background(), userID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.NotEqual(t, uuid.Nil, entries[0].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestWriter_FlushesOnTimeout(t *testing.T) {
	t.Parallel()

	storage := history.NewMemoryStorage()
	w, err := history.NewWriter(storage, history.WriterOptions{BatchSize: 100, BatchTimeout: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	require.NoError(t, w.Append(context.Background(), history.Entry{UserID: uuid.New(), Action: "split"}))

	assert.Eventually(t, func() bool { return storage.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWriter_CloseDrains(t *testing.T) {
	t.Parallel()

	storage := history.NewMemoryStorage()
	w, err := history.NewWriter(storage, history.WriterOptions{BatchSize: 1000, BatchTimeout: time.Hour})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Append(context.Background(), history.Entry{UserID: uuid.New(), Action: "compress"}))
		}()
	}
	wg.Wait()

	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, 20, storage.Len())

	err = w.Append(context.Background(), history.Entry{UserID: uuid.New(), Action: "compress"})
	assert.ErrorIs(t, err, history.ErrWriterClosed)
	assert.NoError(t, w.Close(context.Background()))
}

func TestWriter_RejectsInvalidEntry(t *testing.T) {
	t.Parallel()

	w, err := history.NewWriter(history.NewMemoryStorage(), history.WriterOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	err = w.Append(context.Background(), history.Entry{Action: "merge"})
	assert.ErrorIs(t, err, history.ErrInvalidEntry)

	err = w.Append(context.Background(), history.Entry{UserID: uuid.New()})
	assert.ErrorIs(t, err, history.ErrInvalidEntry)
}

func TestWriter_BufferFull(t *testing.T) {
	t.Parallel()

	storage := &blockingStorage{release: make(chan struct{})}
	w, err := history.NewWriter(storage, history.WriterOptions{BufferSize: 1, BatchSize: 1, BatchTimeout: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() {
		close(storage.release)
		_ = w.Close(context.Background())
	})

	userID := uuid.New()
	var full bool
	for range 10 {
		if errors.Is(w.Append(context.Background(), history.Entry{UserID: userID, Action: "merge"}), history.ErrBufferFull) {
			full = true
			break
		}
	}
	assert.True(t, full)
}

func TestWriter_StorageFailureDoesNotBlock(t *testing.T) {
	t.Parallel()

	storage := &failingStorage{}
	w, err := history.NewWriter(storage, history.WriterOptions{BatchSize: 1, BatchTimeout: time.Hour})
	require.NoError(t, err)

	require.NoError(t, w.Append(context.Background(), history.Entry{UserID: uuid.New(), Action: "merge"}))
	assert.Eventually(t, func() bool { return storage.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Close(context.Background()))
}
