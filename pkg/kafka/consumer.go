package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	applogger "Pattas/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// reader is the part of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads each registered topic with its own reader and handles
// messages one at a time per topic, committing after handling.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	readers  map[string]reader
	handlers map[string]MessageHandler
	metrics  *consumerMetrics

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "default",
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   1,
		MaxBytes:   1e6,
		Registerer: prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		readers:  make(map[string]reader),
		handlers: make(map[string]MessageHandler),
		metrics:  newConsumerMetrics(cfg.Registerer),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// RegisterHandler registers a message handler for a specific topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start creates the readers and starts one consume loop per topic.
func (c *Consumer) Start() error {
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.log.Info("kafka consumer: registered", applogger.String("topic", topic))
	}

	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.consume(topic, r)
	}

	c.log.Info("kafka consumer: started", applogger.Int("topics", len(c.readers)))
	return nil
}

// Stop cancels in-flight handlers and waits for the loops to exit.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		c.log.Info("kafka consumer: stopping")
		c.cancel()

		stopErr = c.waitForWg(ctx)

		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Warn("kafka consumer: close reader",
					applogger.String("topic", topic),
					applogger.Error(err),
				)
			}
		}

		if stopErr == nil {
			c.log.Info("kafka consumer: stopped")
		}
	})

	return stopErr
}

func (c *Consumer) waitForWg(ctx context.Context) error {
	doneChan := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(doneChan)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-doneChan:
		return nil
	}
}

func (c *Consumer) consume(topic string, r reader) {
	defer c.wg.Done()

	handler := c.handlers[topic]
	for {
		msg, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka consumer: fetch failed",
				applogger.String("topic", topic),
				applogger.Error(err),
			)
			select {
			case <-time.After(c.cfg.BackoffMax):
			case <-c.ctx.Done():
				return
			}
			continue
		}

		start := time.Now()
		err = c.process(c.ctx, handler, msg.Value)
		c.metrics.observe(topic, time.Since(start), err)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("kafka consumer: message dropped",
				applogger.String("topic", topic),
				applogger.Int64("offset", msg.Offset),
				applogger.Error(err),
			)
		}

		// Commit after success or exhausted retries to avoid poison loops.
		if err := c.commitWithRetry(r, msg, 3); err != nil {
			c.log.Error("kafka consumer: commit failed",
				applogger.String("topic", topic),
				applogger.Error(err),
			)
		}
	}
}

// process runs handler with retries and panic recovery.
func (c *Consumer) process(ctx context.Context, handler MessageHandler, data []byte) (err error) {
	attempts := 0
	for {
		attempts++
		err = safeHandle(ctx, handler, data)
		if err == nil || attempts > c.cfg.RetryMax {
			return err
		}

		sleep := backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func safeHandle(ctx context.Context, handler MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler for topic %s: %v", handler.Topic(), r)
		}
	}()
	return handler.Handle(ctx, data)
}

// commitWithRetry commits a single message offset with bounded retries.
func (c *Consumer) commitWithRetry(r reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	return err
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// jitter up to 50%
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp - jitter
}

type consumerMetrics struct {
	handled *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		handled: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattas_kafka_consumer_messages_total",
				Help: "Messages handled by topic and result",
			},
			[]string{"topic", "result"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pattas_kafka_consumer_handle_seconds",
				Help:    "Handling time per message",
				Buckets: []float64{0.01, 0.1, 1, 10, 60, 300, 900},
			},
			[]string{"topic"},
		),
	}
}

func (m *consumerMetrics) observe(topic string, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.handled.WithLabelValues(topic, result).Inc()
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
