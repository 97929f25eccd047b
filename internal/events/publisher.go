package events

import (
	"context"
	"strings"

	"talentpool-backend/internal/pools"
	"talentpool-backend/internal/shared/telemetry"
)

// Publisher announces committed pool events to off-engine consumers.
type Publisher interface {
	Publish(ctx context.Context, ev pools.Event) error
	Close() error
}

// RoutingKey returns the topic key for an event, e.g. "pool.match_made".
func RoutingKey(ev pools.Event) string {
	name := string(ev.Type)
	var b strings.Builder
	b.WriteString("pool.")
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(ctx context.Context, ev pools.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	telemetry.Info("event.published", map[string]any{
		"event_id":    ev.ID,
		"routing_key": RoutingKey(ev),
		"pool_id":     ev.PoolID,
		"actor":       ev.Actor,
		"candidate":   ev.Candidate,
		"recipient":   ev.Recipient,
		"amount":      ev.Amount,
	})
	return nil
}

// Close implements Publisher.
func (LogPublisher) Close() error { return nil }

var _ Publisher = LogPublisher{}
