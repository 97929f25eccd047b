package queue

import "context"

// Client ships payout messages to the settler.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
