package pools

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a transition notification.
type EventType string

const (
	EventPoolCreated          EventType = "PoolCreated"
	EventApplicationSubmitted EventType = "ApplicationSubmitted"
	EventMatchMade            EventType = "MatchMade"
	EventPoolCompleted        EventType = "PoolCompleted"
	EventPoolCancelled        EventType = "PoolCancelled"
	EventPoolExpired          EventType = "PoolExpired"
	EventApplicationWithdrawn EventType = "ApplicationWithdrawn"
	EventApplicationRejected  EventType = "ApplicationRejected"
	EventStakeWithdrawn       EventType = "StakeWithdrawn"
	EventPlatformFeeUpdated   EventType = "PlatformFeeUpdated"
	EventFeeCollectorUpdated  EventType = "FeeCollectorUpdated"
	EventMinimumStakeUpdated  EventType = "MinimumStakeUpdated"
	EventPaused               EventType = "Paused"
	EventUnpaused             EventType = "Unpaused"
	EventRoleGranted          EventType = "RoleGranted"
	EventRoleRevoked          EventType = "RoleRevoked"
)

// Event carries enough to reconstruct a transition without re-querying state.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	PoolID     int64     `json:"poolId,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Account    string    `json:"account,omitempty"`
	Candidate  string    `json:"candidate,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Fee        int64     `json:"fee,omitempty"`
	MatchScore int       `json:"matchScore,omitempty"`
	OldValue   string    `json:"oldValue,omitempty"`
	NewValue   string    `json:"newValue,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PayoutKind labels why value moves.
type PayoutKind string

const (
	PayoutCandidateStake PayoutKind = "candidate_stake"
	PayoutCompanyStake   PayoutKind = "company_stake"
	PayoutPlatformFee    PayoutKind = "platform_fee"
	PayoutPenalty        PayoutKind = "withdrawal_penalty"
	PayoutRefund         PayoutKind = "refund"
)

// PayoutIntent is a value movement the ledger must execute exactly once.
type PayoutIntent struct {
	ID        string     `json:"id"`
	PoolID    int64      `json:"poolId"`
	Recipient string     `json:"recipient"`
	Amount    int64      `json:"amount"`
	Kind      PayoutKind `json:"kind"`
	Memo      string     `json:"memo"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Effects is what a transition decided besides its state change.
type Effects struct {
	Events  []Event
	Payouts []PayoutIntent
}

// Released sums the payout amounts.
func (e Effects) Released() int64 {
	var total int64
	for _, p := range e.Payouts {
		total += p.Amount
	}
	return total
}

type effectsBuilder struct {
	now time.Time
	out Effects
}

func (b *effectsBuilder) event(ev Event) {
	ev.ID = uuid.NewString()
	ev.OccurredAt = b.now
	b.out.Events = append(b.out.Events, ev)
}

// payout records an intent plus its StakeWithdrawn notification. Zero amounts are skipped.
func (b *effectsBuilder) payout(poolID int64, recipient string, amount int64, kind PayoutKind, memo string) {
	if amount <= 0 {
		return
	}
	b.out.Payouts = append(b.out.Payouts, PayoutIntent{
		ID:        uuid.NewString(),
		PoolID:    poolID,
		Recipient: recipient,
		Amount:    amount,
		Kind:      kind,
		Memo:      memo,
		CreatedAt: b.now,
	})
	b.event(Event{
		Type:      EventStakeWithdrawn,
		PoolID:    poolID,
		Recipient: recipient,
		Amount:    amount,
		NewValue:  string(kind),
	})
}
