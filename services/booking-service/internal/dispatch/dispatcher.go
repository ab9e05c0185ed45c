package dispatch

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/anathi-mjali/branchbook/libs/otel"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/event"
)

// Dispatcher delivers domain events at least once. A failed publish parks the
// event in the retry store; the sweeper redelivers with exponential backoff
// and quarantines events that exhaust the budget. Callers never see delivery
// errors: a booking stands even when its event is still in flight.
type Dispatcher struct {
	pub    Publisher
	store  RetryStore
	dead   DeadLetterSink
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(pub Publisher, store RetryStore, dead DeadLetterSink, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pub:    pub,
		store:  store,
		dead:   dead,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, evt event.Event) Result {
	meta := event.MetaOf(evt)

	payload, err := evt.Payload()
	if err != nil {
		// Marshal failure is permanent; retrying cannot help.
		d.logger.Error("event payload marshal failed", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		rec := RetryRecord{EventID: meta.EventID, EventType: meta.EventType, AggregateID: meta.AggregateID}
		if qerr := d.dead.Quarantine(ctx, rec, "payload marshal failed"); qerr != nil {
			d.logger.Error("dead letter quarantine failed", "err", qerr, "event_id", meta.EventID)
		}
		return Result{Outcome: DeadLettered}
	}

	if err := d.pub.Publish(ctx, meta.EventType, meta.AggregateID, meta.EventID, payload); err == nil {
		return Result{Outcome: Delivered}
	} else {
		d.logger.Warn("event publish failed, scheduling retry",
			"err", err, "event_id", meta.EventID, "event_type", meta.EventType)
	}

	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	nextRetryAt := d.now().Add(backoffDelay(1))
	rec := RetryRecord{
		EventID:     meta.EventID,
		EventType:   meta.EventType,
		AggregateID: meta.AggregateID,
		Payload:     payload,
		Attempts:    1,
		NextRetryAt: nextRetryAt,
		Traceparent: traceparent,
		Tracestate:  tracestate,
	}
	if err := d.store.Insert(ctx, rec); err != nil {
		// The event can neither be delivered nor parked. Quarantine so an
		// operator can replay it instead of losing it silently.
		d.logger.Error("retry store insert failed", "err", err, "event_id", meta.EventID)
		if qerr := d.dead.Quarantine(ctx, rec, "retry store unavailable"); qerr != nil {
			d.logger.Error("dead letter quarantine failed", "err", qerr, "event_id", meta.EventID)
		}
		return Result{Outcome: DeadLettered}
	}
	return Result{Outcome: Scheduled, NextRetryAt: nextRetryAt}
}

// RetryDue redelivers every claimed due event once. Records that fail again
// are pushed out per the backoff schedule; records past the budget are
// quarantined and marked dead.
func (d *Dispatcher) RetryDue(ctx context.Context, batchSize int) error {
	recs, err := d.store.FetchDue(ctx, d.now(), batchSize)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		recCtx := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)

		err := d.pub.Publish(recCtx, rec.EventType, rec.AggregateID, rec.EventID, rec.Payload)
		if err == nil {
			if derr := d.store.Delete(ctx, rec.ID); derr != nil {
				d.logger.Error("retry record delete failed", "err", derr, "event_id", rec.EventID)
			}
			continue
		}

		attempts := rec.Attempts + 1
		if attempts > MaxRetries {
			if merr := d.store.MarkDead(ctx, rec.ID, err.Error()); merr != nil {
				d.logger.Error("mark dead failed", "err", merr, "event_id", rec.EventID)
				continue
			}
			if qerr := d.dead.Quarantine(recCtx, rec, "retry budget exhausted"); qerr != nil {
				d.logger.Error("dead letter quarantine failed", "err", qerr, "event_id", rec.EventID)
			}
			d.logger.Error("event dead-lettered",
				"event_id", rec.EventID, "event_type", rec.EventType, "attempts", rec.Attempts)
			continue
		}

		nextRetryAt := d.now().Add(backoffDelay(attempts))
		if merr := d.store.MarkFailed(ctx, rec.ID, attempts, nextRetryAt, err.Error()); merr != nil {
			d.logger.Error("mark failed update failed", "err", merr, "event_id", rec.EventID)
		}
	}
	return nil
}

// Sweeper periodically redelivers due retry records.
type Sweeper struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
}

func NewSweeper(d *Dispatcher, logger *slog.Logger, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Sweeper{dispatcher: d, logger: logger, interval: interval, batchSize: batchSize}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.dispatcher.RetryDue(ctx, s.batchSize); err != nil {
				s.logger.Error("retry sweep failed", "err", err)
			}
		}
	}
}
