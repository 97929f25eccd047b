package queue

import (
	"encoding/json"
	"time"

	"talentpool-backend/internal/pools"
)

// MessageVersion is the payout message schema version.
const MessageVersion = 1

// Message is a payout intent as carried to the settler.
type Message struct {
	IntentID  string `json:"intentId"`
	PoolID    int64  `json:"poolId"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	Memo      string `json:"memo,omitempty"`
	CreatedAt string `json:"createdAt"`
	Version   int    `json:"version"`
}

// FromIntent builds the queue message for a payout intent.
func FromIntent(p pools.PayoutIntent) Message {
	return Message{
		IntentID:  p.ID,
		PoolID:    p.PoolID,
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Kind:      string(p.Kind),
		Memo:      p.Memo,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		Version:   MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
