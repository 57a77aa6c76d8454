// internal/event/memory.go
package event

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryFeed is an in-process change feed implementing both the producing
// and consuming sides. It's intended for development and testing; delivery
// order matches publish order and Nak puts a batch back at the head of the
// queue.
type MemoryFeed struct {
	mu      sync.Mutex
	pending []Change      // Undelivered events in publish order
	notify  chan struct{} // Signalled on publish so Next can wake early

	batch   int           // Maximum events per micro-batch
	maxWait time.Duration // Longest time Next blocks waiting for a first event
}

// NewMemoryFeed creates an in-process feed with the given micro-batch bounds.
func NewMemoryFeed(batch int, maxWait time.Duration) *MemoryFeed {
	if batch <= 0 {
		batch = 100
	}
	if maxWait <= 0 {
		maxWait = 50 * time.Millisecond
	}
	return &MemoryFeed{
		notify:  make(chan struct{}, 1),
		batch:   batch,
		maxWait: maxWait,
	}
}

// PublishChange implements Publisher.
func (f *MemoryFeed) PublishChange(ctx context.Context, kind ChangeKind, newImage []byte) error {
	image := make(json.RawMessage, len(newImage))
	copy(image, newImage)

	f.mu.Lock()
	f.pending = append(f.pending, Change{
		EventID:    ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(crand.Reader, 0)).String(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		NewImage:   image,
	})
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}

// Next implements Feed. It returns whatever is pending immediately, or an
// empty batch once the max-wait window elapses with nothing published.
func (f *MemoryFeed) Next(ctx context.Context) (*Batch, error) {
	deadline := time.NewTimer(f.maxWait)
	defer deadline.Stop()

	for {
		f.mu.Lock()
		if len(f.pending) > 0 {
			n := len(f.pending)
			if n > f.batch {
				n = f.batch
			}
			inflight := make([]Change, n)
			copy(inflight, f.pending[:n])
			f.pending = append([]Change(nil), f.pending[n:]...)
			f.mu.Unlock()

			return &Batch{
				Events: inflight,
				ack:    func() error { return nil },
				nak: func() error {
					f.mu.Lock()
					f.pending = append(append([]Change(nil), inflight...), f.pending...)
					f.mu.Unlock()
					select {
					case f.notify <- struct{}{}:
					default:
					}
					return nil
				},
			}, nil
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return &Batch{}, nil
		case <-f.notify:
		}
	}
}

// Close implements both Publisher and Feed.
func (f *MemoryFeed) Close() error { return nil }
