package monitor

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/HerbHall/uptimed/internal/event"
	"github.com/HerbHall/uptimed/pkg/models"
)

// Event topics published by the monitor service.
const (
	TopicCheckCompleted = "monitor.check.completed"
)

// CheckEvent is the payload of TopicCheckCompleted. Monitor is the snapshot
// taken right after the check was recorded.
type CheckEvent struct {
	Monitor models.Monitor `json:"monitor"`
	Check   models.Check   `json:"check"`
}

// CheckObserver is notified after every recorded check.
type CheckObserver interface {
	OnCheckCompleted(monitor models.Monitor, check models.Check)
}

// ObserverFunc adapts a function to CheckObserver.
type ObserverFunc func(monitor models.Monitor, check models.Check)

func (f ObserverFunc) OnCheckCompleted(monitor models.Monitor, check models.Check) {
	f(monitor, check)
}

// Compile-time interface guards.
var (
	_ CheckObserver = ObserverFunc(nil)
	_ CheckObserver = (*BusObserver)(nil)
)

const (
	busObserverWorkers   = 8
	busObserverQueueSize = 256
)

// BusObserver forwards completed checks onto the event bus. Each monitor is
// pinned to one worker, so its checks are published in record order while
// different monitors publish in parallel. A full queue drops the event
// rather than stalling the probe.
type BusObserver struct {
	bus    event.Publisher
	queues []chan event.Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewBusObserver starts the publishing workers. Call Close to stop them.
func NewBusObserver(bus event.Publisher) *BusObserver {
	o := &BusObserver{
		bus:    bus,
		queues: make([]chan event.Event, busObserverWorkers),
	}
	for i := range o.queues {
		q := make(chan event.Event, busObserverQueueSize)
		o.queues[i] = q
		o.wg.Add(1)
		go o.work(q)
	}
	return o
}

func (o *BusObserver) OnCheckCompleted(monitor models.Monitor, check models.Check) {
	e := event.Event{
		Topic:     TopicCheckCompleted,
		Source:    "monitor",
		Timestamp: check.CheckedAt,
		Payload:   &CheckEvent{Monitor: monitor, Check: check},
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.queues[shard(monitor.ID, len(o.queues))] <- e:
	default:
		eventsDroppedTotal.Inc()
	}
}

// Close publishes what is already queued and stops the workers.
func (o *BusObserver) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for _, q := range o.queues {
		close(q)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *BusObserver) work(q <-chan event.Event) {
	defer o.wg.Done()
	for e := range q {
		_ = o.bus.Publish(context.Background(), e)
	}
}

func shard(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
