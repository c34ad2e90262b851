// Package progress fans out per-item completion events to observability
// sinks without ever blocking the batch orchestrator.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event describes one completed item within a batch.
type Event struct {
	BatchID    string
	Index      int
	URL        string
	StatusCode int
	Success    bool
	Bytes      int
	Duration   time.Duration
	Error      string
	Timestamp  time.Time
}

// Sink consumes events. Implementations must be fast; slow sinks should
// buffer internally.
type Sink interface {
	Record(event Event)
}

const (
	defaultBufferSize = 1024
	dropLogInterval   = 5 * time.Second
)

// Hub aggregates Event streams and fans them out to registered sinks. It is
// safe for concurrent use by multiple goroutines and never blocks callers.
type Hub struct {
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64
	lastLog atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
}

// NewHub starts the fan-out goroutine over the supplied sinks. The returned
// Hub is immediately ready to accept events.
func NewHub(logger *zap.Logger, sinks ...Sink) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, defaultBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
	go h.run()
	return h
}

// Emit enqueues an Event. It never blocks; if the buffer is full the event
// is dropped and a rate-limited warning is logged. Emit calls after (or
// racing) Close are silently lost; the events channel is never closed, so
// late producers cannot panic the process.
func (h *Hub) Emit(event Event) {
	if h.closed.Load() {
		return
	}
	select {
	case h.events <- event:
	default:
		dropped := h.dropped.Add(1)
		now := time.Now().UnixNano()
		last := h.lastLog.Load()
		if now-last > int64(dropLogInterval) && h.lastLog.CompareAndSwap(last, now) {
			h.logger.Warn("progress events dropped", zap.Int64("total_dropped", dropped))
		}
	}
}

// Close drains buffered events and stops the fan-out goroutine.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.stopCh)
		<-h.doneCh
	})
}

// Dropped reports how many events were discarded because the buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for {
		select {
		case event := <-h.events:
			h.dispatch(event)
		case <-h.stopCh:
			// Drain whatever was buffered before the stop.
			for {
				select {
				case event := <-h.events:
					h.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) dispatch(event Event) {
	for _, sink := range h.sinks {
		sink.Record(event)
	}
}
