package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"talentpool-backend/internal/pools"
	"talentpool-backend/internal/shared/telemetry"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRoutingKey(t *testing.T) {
	cases := map[pools.EventType]string{
		pools.EventPoolCreated:         "pool.pool_created",
		pools.EventMatchMade:           "pool.match_made",
		pools.EventPaused:              "pool.paused",
		pools.EventFeeCollectorUpdated: "pool.fee_collector_updated",
		pools.EventRoleGranted:         "pool.role_granted",
	}
	for typ, want := range cases {
		if got := RoutingKey(pools.Event{Type: typ}); got != want {
			t.Fatalf("RoutingKey(%s) = %q, want %q", typ, got, want)
		}
	}
}

func TestRabbitPublisherPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitPublisher{channel: ch, exchange: DefaultExchange}
	ev := pools.Event{
		ID:         "ev-1",
		Type:       pools.EventMatchMade,
		PoolID:     4,
		Candidate:  "alice",
		MatchScore: 80,
		OccurredAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("expected one publish, got %d", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != DefaultExchange || got.key != "pool.match_made" {
		t.Fatalf("unexpected routing: %s %s", got.exchange, got.key)
	}
	if got.msg.DeliveryMode != amqp091.Persistent || got.msg.MessageId != "ev-1" {
		t.Fatalf("unexpected publishing: %+v", got.msg)
	}
	var decoded pools.Event
	if err := json.Unmarshal(got.msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.PoolID != 4 || decoded.MatchScore != 80 {
		t.Fatalf("unexpected body: %+v", decoded)
	}

	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("expected channel closed, err=%v", err)
	}
}

func TestRabbitPublisherWrapsErrors(t *testing.T) {
	boom := errors.New("channel closed")
	p := &RabbitPublisher{channel: &fakeChannel{err: boom}, exchange: DefaultExchange}
	err := p.Publish(context.Background(), pools.Event{Type: pools.EventPoolCreated})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestLogPublisherWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	restore := telemetry.SetOutput(&buf)
	defer restore()

	if err := (LogPublisher{}).Publish(context.Background(), pools.Event{ID: "ev-9", Type: pools.EventPoolCompleted, PoolID: 2}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !strings.Contains(buf.String(), `"routing_key":"pool.pool_completed"`) {
		t.Fatalf("unexpected log: %s", buf.String())
	}
}
