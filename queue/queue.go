// Package queue provides the FIFO, per-group-exclusive message queue the
// write pipeline uses to hand WriteJob blob references from a WriterClient
// to a WriterWorker. Messages sharing a group id (the index_id) are
// delivered in submission order, and at most one in-flight message per
// group is handed out at a time, the way an SQS FIFO queue's message-group
// id behaves.
package queue

import "context"

// Message is one delivered queue item. Callers must call Ack (success) or
// Nack (failure, redeliver later) exactly once.
type Message struct {
	GroupID string
	Body    []byte
	Ack     func() error
	Nack    func() error
}

// Queue is the FIFO per-group queue abstraction.
type Queue interface {
	// Publish enqueues body under groupID, preserving submission order
	// relative to other messages in the same group.
	Publish(ctx context.Context, groupID string, body []byte) error
	// Receive blocks until a message is available or ctx is done. While a
	// received message is un-acked, no other message from the same group
	// is delivered by this Queue value. NatsQueue tracks in-flight groups
	// per NatsQueue value, so two processes receiving from the same stream
	// can each hold a message of the same group.
	Receive(ctx context.Context) (*Message, error)
}
