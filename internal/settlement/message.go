package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"talentpool-backend/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrInvalidMessage indicates a decoded message that can never be settled.
type ErrInvalidMessage struct {
	Meta     MessageMeta
	IntentID string
	Reason   string
}

func (e ErrInvalidMessage) Error() string { return "invalid payout message: " + e.Reason }

// ParseMessage validates and decodes a payout payload. Every error it returns
// is permanent: redelivering the same body cannot succeed.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	invalid := func(reason string) error {
		return ErrInvalidMessage{Meta: meta, IntentID: msg.IntentID, Reason: reason}
	}
	switch {
	case msg.Version != queue.MessageVersion:
		return msg, meta, invalid("unsupported version")
	case !isUUID(msg.IntentID):
		return msg, meta, invalid("intent id is not a uuid")
	case strings.TrimSpace(msg.Recipient) == "":
		return msg, meta, invalid("missing recipient")
	case msg.Amount <= 0:
		return msg, meta, invalid("amount must be positive")
	case msg.PoolID <= 0:
		return msg, meta, invalid("missing pool id")
	}
	return msg, meta, nil
}

func isUUID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}
