package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	applogger "RateGate/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      chan kafka.Message
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type recordingHandler struct {
	mu       sync.Mutex
	calls    int
	failFor  int
	eventIDs []string
	done     chan struct{}
	want     int
}

func (h *recordingHandler) Topic() string { return "limits" }

func (h *recordingHandler) Handle(ctx context.Context, _ []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.failFor {
		return errors.New("transient")
	}
	h.eventIDs = append(h.eventIDs, EventID(ctx))
	if len(h.eventIDs) == h.want {
		close(h.done)
	}
	return nil
}

func newTestConsumer(t *testing.T, r reader, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(applogger.Nop(), opts...)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	c.newReader = func(string) reader { return r }
	return c
}

func TestConsumerRetriesAndCommits(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Offset: 1, Headers: []kafka.Header{{Key: HeaderEventID, Value: []byte("ev-1")}}},
		kafka.Message{Offset: 2},
	)
	h := &recordingHandler{failFor: 2, want: 2, done: make(chan struct{})}

	c := newTestConsumer(t, r)
	c.WithConsumerHook(EventIDHook())
	c.RegisterHandler(h)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not receive both messages")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if got := r.commits(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected commits %v", got)
	}
	if h.eventIDs[0] != "ev-1" || h.eventIDs[1] != "" {
		t.Fatalf("unexpected event ids %v", h.eventIDs)
	}
	if !r.closed {
		t.Fatalf("reader not closed")
	}
}

func TestConsumerStartWithoutHandlers(t *testing.T) {
	c := newTestConsumer(t, newFakeReader())
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected error without handlers")
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		if d <= 0 || d > 100*time.Millisecond {
			t.Fatalf("attempt %d: backoff %s out of range", attempt, d)
		}
	}
}
