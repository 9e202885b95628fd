package queue

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Memory is an in-process Queue preserving per-group FIFO order and
// single-in-flight-per-group exclusivity, used by tests and single-process
// dev deployments.
type Memory struct {
	mu       sync.Mutex
	groups   map[string][][]byte
	order    []string
	inFlight mapset.Set[string]
}

func NewMemory() *Memory {
	return &Memory{groups: make(map[string][][]byte), inFlight: mapset.NewThreadUnsafeSet[string]()}
}

func (q *Memory) Publish(_ context.Context, groupID string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.groups[groupID]; !ok {
		q.order = append(q.order, groupID)
	}
	q.groups[groupID] = append(q.groups[groupID], body)
	return nil
}

// Receive returns the oldest message from the first group that has a
// message queued and isn't already in flight, blocking until one becomes
// available or ctx is done.
func (q *Memory) Receive(ctx context.Context) (*Message, error) {
	const pollInterval = 10 * time.Millisecond

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q.mu.Lock()
		for _, g := range q.order {
			if q.inFlight.Contains(g) {
				continue
			}
			msgs := q.groups[g]
			if len(msgs) == 0 {
				continue
			}

			body := msgs[0]
			q.groups[g] = msgs[1:]
			q.inFlight.Add(g)
			q.mu.Unlock()

			return &Message{
				GroupID: g,
				Body:    body,
				Ack:     func() error { return q.finish(g) },
				Nack:    func() error { return q.requeue(g, body) },
			}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *Memory) finish(groupID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight.Remove(groupID)
	return nil
}

func (q *Memory) requeue(groupID string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.groups[groupID] = append([][]byte{body}, q.groups[groupID]...)
	q.inFlight.Remove(groupID)
	return nil
}
