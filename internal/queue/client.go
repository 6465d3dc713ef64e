package queue

import "context"

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// BodyHandler consumes one raw message body. Returning an error leaves
// redelivery to the backend.
type BodyHandler func(ctx context.Context, body string) error
