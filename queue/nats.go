package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsQueue implements Queue over a JetStream stream. Per-group FIFO order
// comes from JetStream's per-subject ordering within a stream; the
// "single in-flight message per group" guarantee an SQS FIFO message-group
// id provides is enforced two ways, matching the two ways a real
// deployment consumes this queue:
//
//   - ReceiveGroup binds (and caches) a durable consumer filtered to one
//     group's subject with MaxAckPending: 1 — the shape a worker pinned to
//     a single index_id (as a FIFO-triggered batch invocation naturally is)
//     uses.
//   - Receive pulls from one shared wildcard consumer across every group
//     and tracks in-flight groups in-process, Nak'ing (for fast
//     redelivery) any message whose group already has an un-acked message
//     out — the shape a long-lived multi-tenant worker process uses.
type NatsQueue struct {
	js            jetstream.JetStream
	stream        string
	subjectPrefix string

	consumersMu sync.Mutex
	consumers   map[string]jetstream.Consumer
	all         jetstream.Consumer

	inFlightMu sync.Mutex
	inFlight   mapset.Set[string]
}

func NewNatsQueue(ctx context.Context, nc *nats.Conn, stream, subjectPrefix string) (*NatsQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{subjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %q: %w", stream, err)
	}

	return &NatsQueue{
		js:            js,
		stream:        stream,
		subjectPrefix: subjectPrefix,
		consumers:     make(map[string]jetstream.Consumer),
		inFlight:      mapset.NewThreadUnsafeSet[string](),
	}, nil
}

func (q *NatsQueue) subject(groupID string) string {
	return q.subjectPrefix + "." + groupID
}

func (q *NatsQueue) groupFromSubject(subject string) string {
	return strings.TrimPrefix(subject, q.subjectPrefix+".")
}

func (q *NatsQueue) Publish(ctx context.Context, groupID string, body []byte) error {
	_, err := q.js.Publish(ctx, q.subject(groupID), body)
	if err != nil {
		return fmt.Errorf("publish to group %q: %w", groupID, err)
	}
	return nil
}

// ReceiveGroup fetches the next message for one known group id, the shape
// a worker pinned to a single index_id uses.
func (q *NatsQueue) ReceiveGroup(ctx context.Context, groupID string) (*Message, error) {
	cons, err := q.consumerFor(ctx, groupID)
	if err != nil {
		return nil, err
	}

	msg, err := cons.Next(jetstream.FetchMaxWait(5 * time.Second))
	if err != nil {
		return nil, err
	}

	return &Message{
		GroupID: groupID,
		Body:    msg.Data(),
		Ack:     msg.Ack,
		Nack:    func() error { return msg.Nak() },
	}, nil
}

// Receive pulls from the shared wildcard consumer, skipping (Nak'ing back
// for fast redelivery) any message whose group already has an un-acked
// message outstanding in this process, so a single multi-tenant worker
// process never processes two messages for the same index_id concurrently.
func (q *NatsQueue) Receive(ctx context.Context) (*Message, error) {
	cons, err := q.consumerForAll(ctx)
	if err != nil {
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		msg, err := cons.Next(jetstream.FetchMaxWait(5 * time.Second))
		if err != nil {
			return nil, err
		}
		groupID := q.groupFromSubject(msg.Subject())

		q.inFlightMu.Lock()
		busy := q.inFlight.Contains(groupID)
		if !busy {
			q.inFlight.Add(groupID)
		}
		q.inFlightMu.Unlock()

		if busy {
			if err := msg.Nak(); err != nil {
				return nil, fmt.Errorf("nak busy-group message: %w", err)
			}
			continue
		}

		return &Message{
			GroupID: groupID,
			Body:    msg.Data(),
			Ack: func() error {
				err := msg.Ack()
				q.clearInFlight(groupID)
				return err
			},
			Nack: func() error {
				err := msg.Nak()
				q.clearInFlight(groupID)
				return err
			},
		}, nil
	}
}

func (q *NatsQueue) clearInFlight(groupID string) {
	q.inFlightMu.Lock()
	q.inFlight.Remove(groupID)
	q.inFlightMu.Unlock()
}

func (q *NatsQueue) consumerFor(ctx context.Context, groupID string) (jetstream.Consumer, error) {
	q.consumersMu.Lock()
	defer q.consumersMu.Unlock()

	if c, ok := q.consumers[groupID]; ok {
		return c, nil
	}

	c, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       "writer-" + groupID,
		FilterSubject: q.subject(groupID),
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for group %q: %w", groupID, err)
	}
	q.consumers[groupID] = c
	return c, nil
}

// consumerForAll lazily creates the shared wildcard consumer every Receive
// call pulls from. MaxAckPending is left at JetStream's default: per-group
// exclusivity is enforced in-process (see Receive), not by this consumer's
// ack-pending bound.
func (q *NatsQueue) consumerForAll(ctx context.Context) (jetstream.Consumer, error) {
	q.consumersMu.Lock()
	defer q.consumersMu.Unlock()

	if q.all != nil {
		return q.all, nil
	}

	c, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       "all-groups",
		FilterSubject: q.subjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create wildcard consumer: %w", err)
	}
	q.all = c
	return c, nil
}
