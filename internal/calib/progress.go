package calib

import (
	"sync/atomic"
)

// Progress is one step notification of a calibration run.
// Label is the processed image path, or empty for the final solve step.
type Progress struct {
	Step  int    `json:"step"`
	Total int    `json:"total"`
	Label string `json:"label"`
}

// ProgressSink receives step notifications. Emit is called synchronously on the
// goroutine running the calibration and must not block.
type ProgressSink interface {
	Emit(step, total int, label string)
}

// ProgressChannel is what a run consumes: progress output plus a stop flag.
type ProgressChannel interface {
	ProgressSink
	IsStopRequested() bool
}

// Channel is the default ProgressChannel. Events are queued on a buffered Go
// channel; the receiver decides when to drain it. When the buffer is full new
// events are dropped and counted rather than blocking the run.
type Channel struct {
	stop    atomic.Bool
	events  chan Progress
	dropped atomic.Uint64
}

const defaultChannelBuffer = 64

// NewChannel creates a Channel with the given event buffer size.
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = defaultChannelBuffer
	}
	return &Channel{events: make(chan Progress, buffer)}
}

// RequestStop asks the run to stop at its next check point. Safe to call from
// any goroutine, any number of times.
func (c *Channel) RequestStop() {
	c.stop.Store(true)
}

// ClearStop withdraws a pending stop request. Session.Start calls it, so a
// Channel can be reused across runs.
func (c *Channel) ClearStop() {
	c.stop.Store(false)
}

// IsStopRequested reports whether RequestStop was called.
func (c *Channel) IsStopRequested() bool {
	return c.stop.Load()
}

// Emit queues a progress event without blocking.
func (c *Channel) Emit(step, total int, label string) {
	select {
	case c.events <- Progress{Step: step, Total: total, Label: label}:
	default:
		c.dropped.Add(1)
	}
}

// Events returns the receive side of the event queue. It is never closed;
// receivers should stop reading once the run's Outcome has arrived.
func (c *Channel) Events() <-chan Progress {
	return c.events
}

// Dropped returns the number of events discarded because the buffer was full.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

// stopRequester is implemented by channels that accept external stop requests.
type stopRequester interface {
	RequestStop()
}

// stopClearer is implemented by channels whose stop flag outlives a run.
type stopClearer interface {
	ClearStop()
}

type discardChannel struct{}

func (discardChannel) Emit(int, int, string) {}
func (discardChannel) IsStopRequested() bool { return false }
