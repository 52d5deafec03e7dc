package events

import (
	"context"
	"sync/atomic"

	"github.com/skinscan/skinscan/internal/logger"
)

// DefaultQueueSize bounds events waiting for delivery.
const DefaultQueueSize = 256

// Dispatcher decouples request handling from delivery. Enqueue never
// blocks; when the queue is full the event is dropped and counted.
type Dispatcher struct {
	publisher Publisher
	queue     chan Event
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewDispatcher wraps publisher with a queue of size entries.
func NewDispatcher(publisher Publisher, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		publisher: publisher,
		queue:     make(chan Event, size),
	}
}

// Enqueue schedules event for delivery and reports whether it was accepted.
func (d *Dispatcher) Enqueue(event Event) bool {
	select {
	case d.queue <- event:
		return true
	default:
		d.dropped.Add(1)
		GetLogger().Warn("Event queue full, dropping event",
			logger.String("label", event.PredictedCondition))
		return false
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued with the same publisher and closes it.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.publisher.Close()

	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
	defer cancel()
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.failed.Add(1)
		GetLogger().Warn("Failed to publish classification event",
			logger.String("label", event.PredictedCondition),
			logger.Error(err))
	}
}

// Close releases the publisher of a dispatcher that will never Run.
func (d *Dispatcher) Close() {
	d.publisher.Close()
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Failed returns how many deliveries returned an error.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }
