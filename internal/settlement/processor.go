package settlement

import (
	"context"
	"errors"
	"fmt"

	"talentpool-backend/internal/queue"
	"talentpool-backend/internal/shared/metrics"
	"talentpool-backend/internal/shared/telemetry"
)

// Outcome describes what happened to a payout message.
type Outcome string

const (
	OutcomeExecuted  Outcome = "executed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// ErrProcess indicates a transient failure after successful parsing; the
// message should be retried.
type ErrProcess struct {
	IntentID string
	Err      error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "settle payout"
	}
	return "settle payout: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// IsPermanent reports whether err can never succeed on redelivery.
func IsPermanent(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		invalid ErrInvalidMessage
	)
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &invalid)
}

// Processor executes each payout intent at most once. The lock only
// serializes concurrent attempts; duplicates are detected by the ledger, so an
// attempt that dies after locking leaves nothing behind once the lock expires.
type Processor struct {
	Locks  Locker
	Ledger Ledger
}

// Process parses body and settles it.
func (p *Processor) Process(ctx context.Context, body string) (Outcome, error) {
	msg, _, err := ParseMessage(body)
	if err != nil {
		metrics.IncSettlement(string(OutcomeFailed))
		return OutcomeFailed, err
	}
	return p.Settle(ctx, msg)
}

// Settle executes an already decoded message.
func (p *Processor) Settle(ctx context.Context, msg queue.Message) (Outcome, error) {
	if p.Locks == nil || p.Ledger == nil {
		return OutcomeFailed, errors.New("settlement processor not configured")
	}
	held, err := p.Locks.Acquire(ctx, msg.IntentID)
	if err != nil {
		metrics.IncSettlement(string(OutcomeFailed))
		return OutcomeFailed, ErrProcess{IntentID: msg.IntentID, Err: err}
	}
	if !held {
		metrics.IncSettlement(string(OutcomeFailed))
		return OutcomeFailed, ErrProcess{IntentID: msg.IntentID, Err: ErrInFlight}
	}
	defer func() {
		if relErr := p.Locks.Release(context.WithoutCancel(ctx), msg.IntentID); relErr != nil {
			telemetry.Error("settlement.release_failed", map[string]any{
				"intent_id": msg.IntentID,
				"error":     relErr.Error(),
			})
		}
	}()

	applied, err := p.Ledger.Execute(ctx, msg)
	if err != nil {
		metrics.IncSettlement(string(OutcomeFailed))
		return OutcomeFailed, ErrProcess{IntentID: msg.IntentID, Err: err}
	}
	if !applied {
		metrics.IncSettlement(string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}
	metrics.IncSettlement(string(OutcomeExecuted))
	return OutcomeExecuted, nil
}

// DirectClient settles payouts in-process. It lets a single binary run
// without a queue between the outbox and the ledger.
type DirectClient struct {
	Processor *Processor
}

// Send implements queue.Client.
func (d DirectClient) Send(ctx context.Context, msg queue.Message) error {
	outcome, err := d.Processor.Settle(ctx, msg)
	if err != nil {
		return fmt.Errorf("direct settle: %w", err)
	}
	telemetry.Info("settlement.direct", map[string]any{
		"intent_id": msg.IntentID,
		"outcome":   string(outcome),
	})
	return nil
}

var _ queue.Client = DirectClient{}
