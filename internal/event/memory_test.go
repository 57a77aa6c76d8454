// internal/event/memory_test.go
package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMemoryFeedDeliversInPublishOrder(t *testing.T) {
	feed := NewMemoryFeed(10, 20*time.Millisecond)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		image, _ := json.Marshal(map[string]string{"id": id})
		if err := feed.PublishChange(ctx, KindInsert, image); err != nil {
			t.Fatalf("PublishChange: %v", err)
		}
	}

	batch, err := feed.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch.Events) != 3 {
		t.Fatalf("batch size = %d, want 3", len(batch.Events))
	}
	for i, want := range []string{"a", "b", "c"} {
		var img map[string]string
		if err := json.Unmarshal(batch.Events[i].NewImage, &img); err != nil {
			t.Fatalf("decode new image: %v", err)
		}
		if img["id"] != want {
			t.Errorf("event %d id = %q, want %q", i, img["id"], want)
		}
	}
	if err := batch.Ack(); err != nil {
		t.Errorf("Ack: %v", err)
	}
}

func TestMemoryFeedRespectsBatchSize(t *testing.T) {
	feed := NewMemoryFeed(2, 20*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := feed.PublishChange(ctx, KindInsert, []byte(`{}`)); err != nil {
			t.Fatalf("PublishChange: %v", err)
		}
	}

	var sizes []int
	for {
		batch, err := feed.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if len(batch.Events) == 0 {
			break
		}
		sizes = append(sizes, len(batch.Events))
		_ = batch.Ack()
	}
	want := []int{2, 2, 1}
	if len(sizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("batch %d size = %d, want %d", i, sizes[i], want[i])
		}
	}
}

func TestMemoryFeedEmptyAfterMaxWait(t *testing.T) {
	feed := NewMemoryFeed(10, 10*time.Millisecond)

	start := time.Now()
	batch, err := feed.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch.Events) != 0 {
		t.Errorf("batch size = %d, want 0", len(batch.Events))
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Next returned after %v, want at least the max-wait window", elapsed)
	}
}

func TestMemoryFeedNakRedelivers(t *testing.T) {
	feed := NewMemoryFeed(10, 20*time.Millisecond)
	ctx := context.Background()

	image, _ := json.Marshal(map[string]string{"id": "x"})
	if err := feed.PublishChange(ctx, KindUpdate, image); err != nil {
		t.Fatalf("PublishChange: %v", err)
	}

	first, err := feed.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(first.Events) != 1 {
		t.Fatalf("first batch size = %d, want 1", len(first.Events))
	}
	if err := first.Nak(); err != nil {
		t.Fatalf("Nak: %v", err)
	}

	second, err := feed.Next(ctx)
	if err != nil {
		t.Fatalf("Next after nak: %v", err)
	}
	if len(second.Events) != 1 {
		t.Fatalf("redelivered batch size = %d, want 1", len(second.Events))
	}
	if second.Events[0].EventID != first.Events[0].EventID {
		t.Errorf("redelivered event id = %q, want %q", second.Events[0].EventID, first.Events[0].EventID)
	}
}

func TestMemoryFeedContextCancellation(t *testing.T) {
	feed := NewMemoryFeed(10, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := feed.Next(ctx); err == nil {
		t.Fatal("Next with cancelled context did not fail")
	}
}
