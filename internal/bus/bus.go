package bus

import (
	"log/slog"
	"sync"
	"time"

	"oden/internal/domain"
)

const (
	defaultQueueSize = 1000
	slowPublishWarn  = 5 * time.Second
)

// Queue is a FIFO of message events between the transport reader and the
// single pipeline consumer. Publish blocks when the buffer is full; events
// are never dropped while the queue is open.
type Queue struct {
	events    chan domain.MessageEvent
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	logger    *slog.Logger
}

var _ domain.EventQueue = (*Queue)(nil)

// NewQueue creates a Queue with the given buffer size.
func NewQueue(bufferSize int, logger *slog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = defaultQueueSize
	}
	return &Queue{
		events: make(chan domain.MessageEvent, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Publish enqueues ev, waiting for room if the consumer is behind.
func (q *Queue) Publish(ev domain.MessageEvent) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("publish on closed queue", "group", ev.GroupTitle, "timestamp", ev.Timestamp)
		return
	}

	select {
	case q.events <- ev:
		return
	default:
	}

	q.logger.Warn("event queue full, waiting for consumer", "depth", len(q.events))
	timer := time.NewTimer(slowPublishWarn)
	defer timer.Stop()
	for {
		select {
		case q.events <- ev:
			return
		case <-q.done:
			q.logger.Error("queue closed while publishing, event lost", "group", ev.GroupTitle, "timestamp", ev.Timestamp)
			return
		case <-timer.C:
			q.logger.Warn("consumer still behind", "depth", len(q.events))
			timer.Reset(slowPublishWarn)
		}
	}
}

// Subscribe returns the receive side. It is closed by Close.
func (q *Queue) Subscribe() <-chan domain.MessageEvent {
	return q.events
}

// Len reports the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Close stops accepting events. Buffered events remain readable.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		defer q.mu.Unlock()
		q.closed = true
		close(q.events)
	})
}
