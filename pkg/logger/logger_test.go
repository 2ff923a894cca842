package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewWriterEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf).With(String("component", "admission"))
	l.Warn("request rejected", String("key", "1.2.3.4"), Int("status", 403), Error(errors.New("boom")))

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if m["component"] != "admission" || m["key"] != "1.2.3.4" || m["error"] != "boom" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["status"].(float64) != 403 {
		t.Fatalf("unexpected status: %v", m["status"])
	}
}

type capturePublisher struct {
	mu    sync.Mutex
	topic string
	batch LogBatch
	calls int
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.topic = topic
	p.batch = payload.(LogBatch)
	return nil
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		c.AddLog("error", "lookup failed", map[string]interface{}{"key": "42"}, "x.go:1")
	}
	c.AddLog("error", "other", nil, "x.go:2")
	if got := c.Pending(); got != 2 {
		t.Fatalf("expected 2 unique entries, got %d", got)
	}
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.calls != 1 || pub.topic != "logs" {
		t.Fatalf("expected one publish to logs, got calls=%d topic=%s", pub.calls, pub.topic)
	}
	if pub.batch.Service != "rategate" || len(pub.batch.Entries) != 2 {
		t.Fatalf("unexpected batch: %+v", pub.batch)
	}
	for _, e := range pub.batch.Entries {
		if strings.HasPrefix(e.Message, "lookup") && e.Count != 3 {
			t.Fatalf("expected count 3, got %d", e.Count)
		}
	}
}

func TestCollectorFlushesEarlyAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", map[string]interface{}{"k": 1, "j": "v"}, "x.go:2")

	deadline := time.Now().Add(2 * time.Second)
	for {
		pub.mu.Lock()
		calls := pub.calls
		pub.mu.Unlock()
		if calls == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("threshold did not trigger a flush")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.Pending(); got != 0 {
		t.Fatalf("expected empty collector after flush, got %d", got)
	}
}

func TestEntryKeyIgnoresFieldOrder(t *testing.T) {
	a := entryKey("error", "m", map[string]interface{}{"x": 1, "y": "2"}, "c")
	b := entryKey("error", "m", map[string]interface{}{"y": "2", "x": 1}, "c")
	if a != b {
		t.Fatalf("keys differ for equal fields")
	}
	if a == entryKey("warn", "m", map[string]interface{}{"x": 1, "y": "2"}, "c") {
		t.Fatalf("level must be part of the key")
	}
}
