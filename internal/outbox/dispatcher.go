package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talentpool-backend/internal/pools"
	"talentpool-backend/internal/queue"
	"talentpool-backend/internal/shared/metrics"
	"talentpool-backend/internal/shared/telemetry"
)

const (
	DefaultBatchSize = 100
	DefaultInterval  = 2 * time.Second
)

// Source is the store side of the outbox.
type Source interface {
	PendingEffects(ctx context.Context, limit int) (pools.Effects, error)
	MarkDispatched(ctx context.Context, eventIDs, payoutIDs []string) error
}

// EventPublisher announces a single event.
type EventPublisher interface {
	Publish(ctx context.Context, ev pools.Event) error
}

// Result counts what one flush delivered.
type Result struct {
	Events  int
	Payouts int
}

// Dispatcher drains committed effects. Delivery is at-least-once: an item is
// marked dispatched only after its sink accepted it, and a crash in between
// causes a redelivery that downstream consumers dedupe by id.
type Dispatcher struct {
	Source    Source
	Events    EventPublisher
	Payouts   queue.Client
	BatchSize int
}

// Flush delivers one batch of pending effects in commit order. It stops at the
// first failing item so later items are never delivered ahead of it.
func (d *Dispatcher) Flush(ctx context.Context) (Result, error) {
	if d.Source == nil || d.Events == nil || d.Payouts == nil {
		return Result{}, errors.New("outbox dispatcher not configured")
	}
	limit := d.BatchSize
	if limit <= 0 {
		limit = DefaultBatchSize
	}

	pending, err := d.Source.PendingEffects(ctx, limit)
	if err != nil {
		return Result{}, fmt.Errorf("load pending effects: %w", err)
	}

	var (
		eventIDs  []string
		payoutIDs []string
		sendErr   error
	)
	for _, ev := range pending.Events {
		if err := d.Events.Publish(ctx, ev); err != nil {
			sendErr = fmt.Errorf("publish event %s: %w", ev.ID, err)
			break
		}
		eventIDs = append(eventIDs, ev.ID)
	}
	if sendErr == nil {
		for _, p := range pending.Payouts {
			if err := d.Payouts.Send(ctx, queue.FromIntent(p)); err != nil {
				sendErr = fmt.Errorf("ship payout %s: %w", p.ID, err)
				break
			}
			payoutIDs = append(payoutIDs, p.ID)
		}
	}

	res := Result{Events: len(eventIDs), Payouts: len(payoutIDs)}
	if len(eventIDs) > 0 || len(payoutIDs) > 0 {
		if err := d.Source.MarkDispatched(ctx, eventIDs, payoutIDs); err != nil {
			metrics.IncOutboxFailure()
			return res, errors.Join(sendErr, fmt.Errorf("mark dispatched: %w", err))
		}
	}
	metrics.AddOutboxEvents(res.Events)
	metrics.AddOutboxPayouts(res.Payouts)
	if sendErr != nil {
		metrics.IncOutboxFailure()
		return res, sendErr
	}
	return res, nil
}

// Run flushes on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	telemetry.Info("outbox.started", map[string]any{"interval_ms": interval.Milliseconds()})
	for {
		select {
		case <-ctx.Done():
			telemetry.Info("outbox.stopped", nil)
			return
		case <-ticker.C:
		}
		res, err := d.Flush(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.Error("outbox.flush_failed", map[string]any{
				"error":   err.Error(),
				"events":  res.Events,
				"payouts": res.Payouts,
			})
			continue
		}
		if res.Events > 0 || res.Payouts > 0 {
			telemetry.Info("outbox.flushed", map[string]any{
				"events":  res.Events,
				"payouts": res.Payouts,
			})
		}
	}
}
