package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/quotagate/pkg/history"
	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/metrics"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

// Recording paths reported to metrics.
const (
	pathAtomic   = "atomic"
	pathFallback = "fallback"
)

// Default retry policy of the atomic increment.
const (
	DefaultRetries = 3
	DefaultBackoff = 50 * time.Millisecond
)

// HistoryAppender receives file history entries; *history.Writer satisfies it.
type HistoryAppender interface {
	Append(ctx context.Context, e history.Entry) error
}

// Recorder persists usage events against the current billing period.
type Recorder struct {
	store   subscription.Store
	history HistoryAppender
	log     *slog.Logger
	metrics *metrics.Metrics
	retries uint64
	backoff time.Duration
	now     func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithHistory appends file_processed events with an action to h.
func WithHistory(h HistoryAppender) RecorderOption {
	return func(r *Recorder) {
		r.history = h
	}
}

// WithLogger sets the logger for retries, fallbacks and failures.
func WithLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics counts recorded, retried and failed events.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithRetry sets how often the atomic increment is retried and the initial
// backoff, which doubles on each attempt.
func WithRetry(retries uint64, backoff time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.retries = retries
		if backoff > 0 {
			r.backoff = backoff
		}
	}
}

// WithClock overrides the time source that selects the billing period.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store subscription.Store, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	r := &Recorder{
		store:   store,
		log:     logger.Discard(),
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("usage"))
	return r, nil
}

// Record adds amount units of ut to the user's counters for the current period.
//
// The atomic increment is retried with exponential backoff. When every attempt
// fails and the store offers a read-modify-write path, the increment is
// persisted through it so the event is not lost; concurrent fallback writes
// may undercount. A non-positive amount records nothing.
func (r *Recorder) Record(ctx context.Context, userID uuid.UUID, ut UsageType, amount int64, meta Metadata) error {
	delta, err := ut.Delta(amount)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return nil
	}

	period := subscription.PeriodOf(r.now())
	log := r.log.With(logger.UserID(userID), logger.UsageType(ut.String()), logger.Amount(amount))

	if err := r.increment(ctx, userID, period, ut, delta); err != nil {
		if errors.Is(err, subscription.ErrNegativeDelta) || ctx.Err() != nil {
			r.metrics.UsageFailed(ut.String())
			log.ErrorContext(ctx, "usage increment failed", logger.Error(err))
			return errors.Join(ErrRecordingFailed, err)
		}

		log.WarnContext(ctx, "atomic usage increment unavailable, using non-atomic fallback", logger.Error(err))
		if ferr := r.fallback(ctx, userID, period, delta); ferr != nil {
			r.metrics.UsageFailed(ut.String())
			log.ErrorContext(ctx, "usage event lost", logger.Error(ferr))
			return errors.Join(ErrRecordingFailed, err, ferr)
		}
		r.metrics.UsageRecorded(ut.String(), pathFallback)
	} else {
		r.metrics.UsageRecorded(ut.String(), pathAtomic)
	}

	if ut == FileProcessed && meta.Action != "" && r.history != nil {
		entry := history.Entry{
			UserID:    userID,
			Action:    meta.Action,
			FileCount: amount,
			Bytes:     meta.Bytes,
			RequestID: meta.RequestID,
			Metadata:  meta.Extra,
		}
		if err := r.history.Append(ctx, entry); err != nil {
			log.WarnContext(ctx, "failed to append file history", logger.Error(err))
		}
	}

	return nil
}

func (r *Recorder) increment(ctx context.Context, userID uuid.UUID, period subscription.Period, ut UsageType, delta subscription.Delta) error {
	attempt := 0
	backoff := retry.WithMaxRetries(r.retries, retry.NewExponential(r.backoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.metrics.UsageRetried(ut.String())
		}
		err := r.store.IncrementUsage(ctx, userID, period, delta)
		if err == nil || errors.Is(err, subscription.ErrNegativeDelta) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (r *Recorder) fallback(ctx context.Context, userID uuid.UUID, period subscription.Period, delta subscription.Delta) error {
	fb, ok := r.store.(subscription.FallbackIncrementer)
	if !ok {
		return subscription.ErrFallbackUnsupported
	}
	return fb.IncrementUsageNonAtomic(ctx, userID, period, delta)
}
