// internal/event/nats.go
// Package event provides the change feed of the ingestion record store.
// Every successful record write is published as a change event; the batch
// loader consumes those events in micro-batches with at-least-once delivery.
package event

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// ChangeKind distinguishes first writes from overwrites of a record.
type ChangeKind string

const (
	KindInsert ChangeKind = "insert" // First save of a record
	KindUpdate ChangeKind = "update" // Any subsequent overwrite
)

// Change is the event envelope carried on the feed. NewImage is the full
// post-change record serialized as JSON; it stays raw so the consumer
// controls numeric decoding.
type Change struct {
	EventID    string          `json:"event_id"`    // ULID, time-ordered within a shard
	Kind       ChangeKind      `json:"kind"`        // insert or update
	OccurredAt time.Time       `json:"occurred_at"` // When the write happened
	NewImage   json.RawMessage `json:"new_image"`   // Post-change record image
}

// Publisher interface defines the feed's producing side.
type Publisher interface {
	// PublishChange emits one change event carrying the new record image.
	PublishChange(ctx context.Context, kind ChangeKind, newImage []byte) error

	// Close closes the publisher connection.
	Close() error
}

// Batch is one micro-batch of feed events. Ack marks every event in the
// batch consumed; Nak requests prompt redelivery. A batch that is neither
// acked nor naked is redelivered after the feed's ack deadline.
type Batch struct {
	Events []Change

	ack func() error
	nak func() error
}

// Ack marks the whole batch consumed.
func (b *Batch) Ack() error {
	if b.ack == nil {
		return nil
	}
	return b.ack()
}

// Nak asks the feed to redeliver the whole batch.
func (b *Batch) Nak() error {
	if b.nak == nil {
		return nil
	}
	return b.nak()
}

// Feed interface defines the feed's consuming side.
type Feed interface {
	// Next blocks up to the feed's max-wait window and returns the next
	// micro-batch. An empty batch (no events arrived inside the window) is
	// returned with no error.
	Next(ctx context.Context) (*Batch, error)

	// Close closes the feed connection.
	Close() error
}

// noop is a no-op Publisher for when NATS is not configured. Writes still
// succeed; they simply produce no feed events, so the loader never sees them.
type noop struct{}

// Close implements Publisher.
func (n *noop) Close() error { return nil }

// PublishChange implements Publisher. It does nothing and always returns nil.
func (n *noop) PublishChange(ctx context.Context, kind ChangeKind, newImage []byte) error {
	return nil
}

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc *nats.Conn            // NATS connection
	js nats.JetStreamContext // JetStream context for stream operations
}

// NewPublisherFromEnv creates a publisher based on environment configuration.
// It reads INGEST_NATS_URL; when unset or unreachable the returned publisher
// is a no-op and the service runs without a change feed.
func NewPublisherFromEnv() Publisher {
	url := os.Getenv("INGEST_NATS_URL")
	if url == "" {
		return &noop{}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStream(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{nc: nc, js: js}
}

// initStream initializes the change-feed stream. Events are retained for 24
// hours independent of consumption; the durable consumer tracks its own
// position inside that window.
func initStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "INGEST_CHANGES",             // Stream name
		Subjects:  []string{"ingest.changes.*"}, // One subject per change kind
		Retention: nats.LimitsPolicy,            // Retention policy
		MaxAge:    24 * time.Hour,               // Keep events for 24 hours
		Discard:   nats.DiscardOld,              // Discard old messages when limits reached
		Storage:   nats.FileStorage,             // Use file storage for persistence
	})
	if err != nil {
		return fmt.Errorf("failed to create INGEST_CHANGES stream: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// PublishChange publishes one change event to the feed stream.
func (p *natsPub) PublishChange(ctx context.Context, kind ChangeKind, newImage []byte) error {
	subject := fmt.Sprintf("ingest.changes.%s", kind)

	change := Change{
		EventID:    ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(crand.Reader, 0)).String(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		NewImage:   newImage,
	}

	b, err := json.Marshal(change)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(subject, b)
	return err
}

// natsFeed is the NATS JetStream pull-consumer implementation of Feed.
// Each Fetch round is one micro-batch; unacked messages redeliver after the
// consumer's ack deadline, which gives the feed its at-least-once property.
type natsFeed struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	batch   int           // Maximum events per micro-batch
	maxWait time.Duration // Longest time Next blocks waiting for a first event
}

// NewPullFeed connects a durable pull consumer to the change-feed stream.
// batch and maxWait bound each micro-batch's size and assembly window.
func NewPullFeed(url, durable string, batch int, maxWait time.Duration) (Feed, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := initStream(js); err != nil {
		nc.Close()
		return nil, err
	}

	sub, err := js.PullSubscribe("ingest.changes.*", durable, nats.BindStream("INGEST_CHANGES"))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create pull subscription: %w", err)
	}

	if batch <= 0 {
		batch = 100
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}

	return &natsFeed{nc: nc, sub: sub, batch: batch, maxWait: maxWait}, nil
}

// Close drains the subscription and closes the connection.
func (f *natsFeed) Close() error {
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
	}
	if f.nc != nil {
		f.nc.Close()
	}
	return nil
}

// Next fetches the next micro-batch. A fetch that times out with no events
// returns an empty batch, not an error.
func (f *natsFeed) Next(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs, err := f.sub.Fetch(f.batch, nats.MaxWait(f.maxWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return &Batch{}, nil
		}
		return nil, fmt.Errorf("failed to fetch change events: %w", err)
	}

	events := make([]Change, 0, len(msgs))
	for _, msg := range msgs {
		var change Change
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			// A malformed envelope can never succeed on redelivery; drop it.
			slog.Warn("dropping undecodable change event", "error", err)
			_ = msg.Term()
			continue
		}
		events = append(events, change)
	}

	return &Batch{
		Events: events,
		ack: func() error {
			for _, msg := range msgs {
				if err := msg.Ack(); err != nil {
					return err
				}
			}
			return nil
		},
		nak: func() error {
			for _, msg := range msgs {
				if err := msg.Nak(); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}
