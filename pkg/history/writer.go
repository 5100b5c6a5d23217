package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/metrics"
)

// WriterOptions configures batching of the async writer.
type WriterOptions struct {
	BufferSize     int           // Max entries queued before Append reports ErrBufferFull
	BatchSize      int           // Entries per StoreBatch call
	BatchTimeout   time.Duration // Max time a partial batch waits
	StorageTimeout time.Duration // Per-batch storage timeout
}

// Writer queues entries and flushes them to Storage in batches from a single
// background goroutine. Append never blocks on storage.
type Writer struct {
	storage Storage
	entries chan Entry
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	opts    WriterOptions
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets the logger used for failed batches.
func WithLogger(log *slog.Logger) WriterOption {
	return func(w *Writer) {
		if log != nil {
			w.log = log
		}
	}
}

// WithMetrics counts written and dropped entries.
func WithMetrics(m *metrics.Metrics) WriterOption {
	return func(w *Writer) {
		w.metrics = m
	}
}

// NewWriter starts an async writer over storage.
func NewWriter(storage Storage, opts WriterOptions, options ...WriterOption) (*Writer, error) {
	if storage == nil {
		return nil, ErrStorageRequired
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 500 * time.Millisecond
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}

	w := &Writer{
		storage: storage,
		entries: make(chan Entry, opts.BufferSize),
		done:    make(chan struct{}),
		opts:    opts,
		log:     logger.Discard(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range options {
		opt(w)
	}
	w.log = w.log.With(logger.Component("history"))

	w.wg.Add(1)
	go w.worker()

	return w, nil
}

// Append validates e and queues it for storage.
func (w *Writer) Append(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	e.normalize(w.now())

	select {
	case <-w.done:
		return ErrWriterClosed
	default:
	}

	select {
	case w.entries <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		w.metrics.HistoryDropped(1)
		return ErrBufferFull
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()

	batch := make([]Entry, 0, w.opts.BatchSize)
	ticker := time.NewTicker(w.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.opts.StorageTimeout)
		defer cancel()

		if err := w.storage.StoreBatch(ctx, batch); err != nil {
			w.log.Error("failed to store file history batch",
				slog.Int("entries", len(batch)), logger.Error(err))
			w.metrics.HistoryDropped(len(batch))
		} else {
			w.metrics.HistoryWritten(len(batch))
		}

		clear(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e := <-w.entries:
			batch = append(batch, e)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-w.done:
			for {
				select {
				case e := <-w.entries:
					batch = append(batch, e)
					if len(batch) >= w.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting entries and flushes what is queued.
// If ctx expires first, queued entries may be lost.
func (w *Writer) Close(ctx context.Context) error {
	w.once.Do(func() { close(w.done) })

	drained := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
