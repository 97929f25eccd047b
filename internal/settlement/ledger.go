package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"talentpool-backend/internal/queue"
	"talentpool-backend/internal/shared/telemetry"
)

// Ledger moves value for a payout and is the record of settled intents.
// Execute reports applied=false when the ledger already holds the intent.
type Ledger interface {
	Execute(ctx context.Context, msg queue.Message) (applied bool, err error)
}

// PGLedger records settlements in Postgres; the intent id is the primary key.
type PGLedger struct {
	DB  *sql.DB
	Now func() time.Time
}

// Execute implements Ledger.
func (l *PGLedger) Execute(ctx context.Context, msg queue.Message) (bool, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	const query = `
INSERT INTO settlements (intent_id, pool_id, recipient, amount, kind, settled_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (intent_id) DO NOTHING`
	res, err := l.DB.ExecContext(ctx, query,
		msg.IntentID,
		msg.PoolID,
		msg.Recipient,
		msg.Amount,
		msg.Kind,
		now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert settlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settlement rows affected: %w", err)
	}
	return n == 1, nil
}

// MemoryLedger logs transfers and remembers settled intents in process
// memory. It is used in development.
type MemoryLedger struct {
	mu      sync.Mutex
	settled map[string]struct{}
}

// NewMemoryLedger constructs a MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{settled: make(map[string]struct{})}
}

// Execute implements Ledger.
func (l *MemoryLedger) Execute(ctx context.Context, msg queue.Message) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.settled[msg.IntentID]; ok {
		return false, nil
	}
	l.settled[msg.IntentID] = struct{}{}
	telemetry.Info("settlement.transfer", map[string]any{
		"intent_id": msg.IntentID,
		"pool_id":   msg.PoolID,
		"recipient": msg.Recipient,
		"amount":    msg.Amount,
		"kind":      msg.Kind,
	})
	return true, nil
}

var (
	_ Ledger = (*PGLedger)(nil)
	_ Ledger = (*MemoryLedger)(nil)
)
