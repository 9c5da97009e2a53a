package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventResponseCompleted EventType = "response_completed"
	EventRequestFailed     EventType = "request_failed"
	EventHealthChanged     EventType = "health_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Duration   time.Duration
	StatusCode int
	Bytes      int64
	Failure    FailureKind
	Healthy    bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit queues event unless the buffer is full, in which case it is dropped.
// It never blocks the request path.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

// Run processes events until ctx is done, then drains what is left.
func (c *Collector) Run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests()

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Duration, event.StatusCode, event.Bytes)

	case EventRequestFailed:
		c.metrics.RecordFailure(event.Failure)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Healthy)

	default:
		c.logger.Debug("Ignoring unknown metric event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(destination string) Snapshot {
	return c.metrics.Snapshot(destination)
}
