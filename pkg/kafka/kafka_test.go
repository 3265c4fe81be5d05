package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
)

type flakyHandler struct {
	failures int
	calls    int
	panics   bool
}

func (h *flakyHandler) Topic() string { return "pattas.scan" }

func (h *flakyHandler) Handle(_ context.Context, _ []byte) error {
	h.calls++
	if h.panics {
		panic("bad payload")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, retryMax int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retryMax, time.Millisecond, 2*time.Millisecond),
		WithConsumerRegisterer(prometheus.NewRegistry()),
	)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return c
}

func TestProcessRetries(t *testing.T) {
	c := newTestConsumer(t, 2)

	h := &flakyHandler{failures: 2}
	if err := c.process(context.Background(), h, nil); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.calls != 3 {
		t.Errorf("calls = %d, want 3", h.calls)
	}

	h = &flakyHandler{failures: 5}
	if err := c.process(context.Background(), h, nil); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if h.calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + RetryMax)", h.calls)
	}
}

func TestProcessRecoversPanic(t *testing.T) {
	c := newTestConsumer(t, 0)

	err := c.process(context.Background(), &flakyHandler{panics: true}, nil)
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumeCommitsEveryMessage(t *testing.T) {
	c := newTestConsumer(t, 0)
	h := &flakyHandler{failures: 1}
	c.RegisterHandler(h)

	r := &fakeReader{
		msgs:   []kafka.Message{{Offset: 1}, {Offset: 2}},
		cancel: c.cancel,
	}
	c.wg.Add(1)
	c.consume(h.Topic(), r)

	if len(r.committed) != 2 {
		t.Fatalf("committed = %v, want both offsets", r.committed)
	}
	if got := testutil.ToFloat64(c.metrics.handled.WithLabelValues(h.Topic(), "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.metrics.handled.WithLabelValues(h.Topic(), "ok")); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		if d <= 0 || d > 100*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(WithProducerRegisterer(prometheus.NewRegistry())); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]string{"run_id": "r1"})
	if err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	if string(b) != `{"run_id":"r1"}` {
		t.Errorf("encodeValue = %s", b)
	}
	if b, _ := encodeValue("raw"); string(b) != "raw" {
		t.Errorf("string passthrough = %s", b)
	}
}
