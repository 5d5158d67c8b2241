package dispatch

import (
	"github.com/teslashibe/go-follower/pkg/protocol"
)

// Dispatcher drains a Queue once per tick and hands every batch to the
// registered subscribers. It must only be driven from the tick goroutine.
type Dispatcher struct {
	queue *Queue[protocol.Batch]
	subs  Registry[protocol.Batch]

	ticking   bool
	ticks     uint64
	delivered uint64
}

// New creates a dispatcher reading from queue.
func New(queue *Queue[protocol.Batch]) *Dispatcher {
	return &Dispatcher{queue: queue}
}

// Subscribe registers fn to receive every delivered batch.
func (d *Dispatcher) Subscribe(fn func(protocol.Batch)) Handle {
	return d.subs.Add(fn)
}

// Unsubscribe removes a subscriber.
func (d *Dispatcher) Unsubscribe(h Handle) bool {
	return d.subs.Remove(h)
}

// Tick delivers everything queued since the previous tick, oldest first.
// Each batch reaches all subscribers before the next batch is delivered.
// A Tick issued from inside a subscriber is ignored and returns 0.
// Returns the number of batches delivered.
func (d *Dispatcher) Tick() int {
	if d.ticking || d.queue == nil {
		return 0
	}
	d.ticking = true
	defer func() { d.ticking = false }()

	d.ticks++
	batches := d.queue.Drain()
	for _, b := range batches {
		d.subs.Notify(b)
		d.delivered++
	}
	return len(batches)
}

// Pending returns the number of batches waiting for the next tick.
func (d *Dispatcher) Pending() int {
	if d.queue == nil {
		return 0
	}
	return d.queue.Len()
}

// Delivered returns the total number of batches delivered.
func (d *Dispatcher) Delivered() uint64 {
	return d.delivered
}

// Ticks returns how many ticks have run.
func (d *Dispatcher) Ticks() uint64 {
	return d.ticks
}

// Subscribers returns the number of registered subscribers.
func (d *Dispatcher) Subscribers() int {
	return d.subs.Len()
}
