package usage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/quota"
	"github.com/dmitrymomot/quotagate/pkg/requestid"
)

// AmountFunc computes the amount to record once the handler has responded.
type AmountFunc func(r *http.Request) (int64, error)

// MetadataFunc describes the operation being recorded.
type MetadataFunc func(r *http.Request) Metadata

// Tracker meters successful responses.
type Tracker struct {
	recorder   *Recorder
	dispatcher *Dispatcher
	log        *slog.Logger
}

// NewTracker creates a Tracker recording through recorder on dispatcher.
func NewTracker(recorder *Recorder, dispatcher *Dispatcher, log *slog.Logger) (*Tracker, error) {
	if recorder == nil {
		return nil, ErrRecorderRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatchRequired
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Tracker{
		recorder:   recorder,
		dispatcher: dispatcher,
		log:        log.With(logger.Component("usage_tracker")),
	}, nil
}

// Wrap returns middleware recording ut after the handler answered with 2xx.
// Recording runs in the background and never changes the response.
// An invalid ut panics at wiring time.
func (t *Tracker) Wrap(ut UsageType, amount AmountFunc, metadata MetadataFunc) func(http.Handler) http.Handler {
	if !ut.Valid() {
		panic(fmt.Sprintf("usage: %v: %q", ErrInvalidUsageType, ut))
	}
	if amount == nil {
		amount = Fixed(1)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			if !sw.successful() {
				return
			}

			ctx := r.Context()
			userID, ok := gate.UserIDFromContext(ctx)
			if !ok {
				t.log.WarnContext(ctx, "successful response without identity, usage not recorded",
					logger.UsageType(ut.String()))
				return
			}

			n, err := amount(r)
			if err != nil {
				t.log.ErrorContext(ctx, "failed to compute usage amount",
					logger.UsageType(ut.String()), logger.Error(err))
				return
			}
			if n <= 0 {
				return
			}

			var meta Metadata
			if metadata != nil {
				meta = metadata(r)
			}
			if meta.RequestID == "" {
				meta.RequestID = requestid.FromContext(ctx)
			}

			err = t.dispatcher.Go(ctx, "record_usage", func(ctx context.Context) error {
				return t.recorder.Record(ctx, userID, ut, n, meta)
			})
			if err != nil {
				t.log.ErrorContext(ctx, "usage not scheduled", logger.UsageType(ut.String()), logger.Error(err))
			}
		})
	}
}

// FromDecision records the amount admitted by the quota guard for lt.
func FromDecision(lt quota.LimitType) AmountFunc {
	return func(r *http.Request) (int64, error) {
		state, ok := gate.FromContext(r.Context())
		if !ok {
			return 0, gate.ErrNoState
		}
		d, ok := state.Decision(lt)
		if !ok {
			return 0, fmt.Errorf("no admitted decision for %s", lt)
		}
		return d.Requested, nil
	}
}

// Fixed records n units per successful request.
func Fixed(n int64) AmountFunc {
	return func(*http.Request) (int64, error) {
		return n, nil
	}
}

// Action tags the recorded event with a history action.
func Action(name string) MetadataFunc {
	return func(r *http.Request) Metadata {
		meta := Metadata{Action: name}
		if state, ok := gate.FromContext(r.Context()); ok {
			if d, ok := state.Decision(quota.Storage); ok {
				meta.Bytes = d.Requested
			}
		}
		return meta
	}
}
