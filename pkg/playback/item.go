// ABOUTME: Playback items, results and the priority queue
// ABOUTME: Orders pending items by priority then arrival sequence
package playback

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// Item is one unit of audio to play
type Item struct {
	// ID identifies the item in logs (generated when empty)
	ID string

	// Payload is decoded on demand unless Buffer is set
	Payload audio.Payload
	Buffer  *audio.Buffer

	Priority audio.Priority

	// EnqueuedAt defaults to the time of Enqueue
	EnqueuedAt time.Time

	// Delay holds the item back until EnqueuedAt+Delay even if the
	// channel is idle
	Delay time.Duration

	// Label describes the item in logs ("welcome", "translation", ...)
	Label string
}

// startAt is the earliest time the item may start
func (i Item) startAt() time.Time {
	return i.EnqueuedAt.Add(i.Delay)
}

// Result completes once when its item finishes, fails or is canceled
type Result struct {
	id   string
	done chan struct{}
	once sync.Once
	err  error
}

func newResult(id string) *Result {
	return &Result{id: id, done: make(chan struct{})}
}

func (r *Result) complete(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// ID returns the item ID
func (r *Result) ID() string {
	return r.id
}

// Done is closed when the item's outcome is known
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err returns the outcome. Only valid after Done is closed.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the item completes or ctx ends
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pending is a queued item with its result and arrival sequence
type pending struct {
	item   Item
	result *Result
	seq    uint64
}

// itemQueue implements heap.Interface
type itemQueue []*pending

func (q itemQueue) Len() int { return len(q) }

func (q itemQueue) Less(i, j int) bool {
	if q[i].item.Priority != q[j].item.Priority {
		return q[i].item.Priority > q[j].item.Priority
	}
	return q[i].seq < q[j].seq
}

func (q itemQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *itemQueue) Push(x interface{}) {
	*q = append(*q, x.(*pending))
}

func (q *itemQueue) Pop() interface{} {
	old := *q
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return p
}

// ready returns the index of the best item whose start time has passed.
// When none is due it returns -1 and the earliest start time.
func (q itemQueue) ready(now time.Time) (int, time.Time) {
	best := -1
	var earliest time.Time
	for i, p := range q {
		if at := p.item.startAt(); at.After(now) {
			if earliest.IsZero() || at.Before(earliest) {
				earliest = at
			}
			continue
		}
		if best < 0 || q.Less(i, best) {
			best = i
		}
	}
	return best, earliest
}

// removeWhere drops matching items and returns them in pop order
func (q *itemQueue) removeWhere(match func(*pending) bool) []*pending {
	var removed, kept []*pending
	for q.Len() > 0 {
		p := heap.Pop(q).(*pending)
		if match(p) {
			removed = append(removed, p)
		} else {
			kept = append(kept, p)
		}
	}
	for _, p := range kept {
		heap.Push(q, p)
	}
	return removed
}
