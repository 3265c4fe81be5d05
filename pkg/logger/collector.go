package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

const publishTimeout = 30 * time.Second

// Publisher ships a batch of aggregated entries.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush at least this often
	CountThreshold int           // flush early once this many distinct entries are pending
	Topic          string
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Two error lines are the same entry when all four parts match. Fields are
// compared in their JSON form, which has sorted keys.
type entryKey struct {
	level, message, caller, fields string
}

// LogCollector counts repeated error lines and publishes the counts in
// batches, so a failing dependency produces one message per interval
// instead of one per request.
type LogCollector struct {
	cfg     CollectionConfig
	mu      sync.Mutex
	pending map[entryKey]*AggregatedLogEntry

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}

	c := &LogCollector{
		cfg:     cfg,
		pending: make(map[entryKey]*AggregatedLogEntry),
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	encoded, _ := json.Marshal(fields)
	key := entryKey{level: level, message: message, caller: caller, fields: string(encoded)}
	now := time.Now()

	c.mu.Lock()
	e, ok := c.pending[key]
	if !ok {
		e = &AggregatedLogEntry{Level: level, Message: message, Fields: fields, Caller: caller, FirstSeen: now}
		c.pending[key] = e
	}
	e.Count++
	e.LastSeen = now

	var batch []AggregatedLogEntry
	if len(c.pending) >= c.cfg.CountThreshold {
		batch = c.takeLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.publish(batch)
		}()
	}
}

// Pending returns the number of distinct entries waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *LogCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()
	c.publish(batch)
}

func (c *LogCollector) takeLocked() []AggregatedLogEntry {
	if len(c.pending) == 0 {
		return nil
	}
	batch := make([]AggregatedLogEntry, 0, len(c.pending))
	for _, e := range c.pending {
		batch = append(batch, *e)
	}
	c.pending = make(map[entryKey]*AggregatedLogEntry)
	return batch
}

func (c *LogCollector) publish(batch []AggregatedLogEntry) {
	if len(batch) == 0 || c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	// Logging this failure through the logger would feed it back in here.
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch), err)
	}
}

// Close publishes what is pending and waits for in-flight batches.
func (c *LogCollector) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}
