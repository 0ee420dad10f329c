// Package queue holds inbound events and releases them to workers so that
// events of one conversation are never in flight together and leave in
// arrival order, while different conversations proceed in parallel.
package queue

import (
	"context"
	"sync"
	"time"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/ids"
	"github.com/drblury/botflow/internal/runtime/update"
)

// Queued is an event accepted by the queue together with its resolved
// ordering key.
type Queued struct {
	ID         string
	Event      *update.Event
	Kind       update.Kind
	Key        update.Key
	EnqueuedAt time.Time
}

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	Ready         int
	InFlight      int
	Conversations int
	Backlogged    int
}

// Queue is a global ready FIFO plus one backlog per occupied conversation.
// A conversation is occupied while exactly one of its events is ready or in
// flight; further events for it wait in the backlog until Complete.
type Queue struct {
	mu       sync.Mutex
	ready    []*Queued
	backlogs map[int64][]*Queued
	inFlight int
	closed   bool
	// wake is closed and replaced on every state change so that blocked
	// Take and Drain callers re-check.
	wake chan struct{}
}

func New() *Queue {
	return &Queue{
		backlogs: make(map[int64][]*Queued),
		wake:     make(chan struct{}),
	}
}

// Submit classifies the event and either makes it ready or parks it behind
// the event its conversation already has in flight.
func (q *Queue) Submit(event *update.Event) (*Queued, error) {
	kind := event.Kind()
	if kind == update.KindUnknown {
		return nil, errspkg.ErrUnsupportedUpdate
	}

	item := &Queued{
		ID:         ids.NewEventID(),
		Event:      event,
		Kind:       kind,
		Key:        event.Key(),
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, errspkg.ErrQueueClosed
	}

	if item.Key.HasConversation {
		cid := item.Key.ConversationID
		if backlog, occupied := q.backlogs[cid]; occupied {
			q.backlogs[cid] = append(backlog, item)
			return item, nil
		}
		q.backlogs[cid] = nil
	}

	q.ready = append(q.ready, item)
	q.broadcastLocked()
	return item, nil
}

// Take blocks until an event is ready, ctx is done, or the queue is closed
// with nothing left to hand out.
func (q *Queue) Take(ctx context.Context) (*Queued, error) {
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			item := q.ready[0]
			q.ready[0] = nil
			q.ready = q.ready[1:]
			q.inFlight++
			q.mu.Unlock()
			return item, nil
		}
		if q.closed && q.inFlight == 0 {
			q.mu.Unlock()
			return nil, errspkg.ErrQueueClosed
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Complete releases the conversation slot held by item, promoting the next
// backlogged event of the same conversation. It must be called exactly once
// for every event returned by Take, whether or not processing succeeded.
func (q *Queue) Complete(item *Queued) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inFlight > 0 {
		q.inFlight--
	}

	if item.Key.HasConversation {
		cid := item.Key.ConversationID
		if backlog, occupied := q.backlogs[cid]; occupied {
			if len(backlog) > 0 {
				next := backlog[0]
				backlog[0] = nil
				q.backlogs[cid] = backlog[1:]
				q.ready = append(q.ready, next)
			} else {
				delete(q.backlogs, cid)
			}
		}
	}

	q.broadcastLocked()
}

// Drain blocks until every submitted event has been taken and completed.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.ready) == 0 && q.inFlight == 0 && len(q.backlogs) == 0 {
			q.mu.Unlock()
			return nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Close stops accepting new events. Events already accepted are still
// handed out; Take reports ErrQueueClosed once they are all completed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Ready:         len(q.ready),
		InFlight:      q.inFlight,
		Conversations: len(q.backlogs),
	}
	for _, backlog := range q.backlogs {
		stats.Backlogged += len(backlog)
	}
	return stats
}

func (q *Queue) broadcastLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}
