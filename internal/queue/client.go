package queue

import "context"

// Client delivers reconcile requests to whichever process runs the loops.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f ClientFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
