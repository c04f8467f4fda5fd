package server

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/floorboard/internal/floor"
)

const (
	realtimeEventFloor     = "floor"
	realtimeEventHeartbeat = "heartbeat"
)

// RealtimeDispatcher fans every published frame out to the open floor streams.
// Slow subscribers drop frames rather than block the tick driver.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	latest      *floor.Frame
}

type realtimeSubscriber struct {
	id     int64
	stream chan floor.Frame
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  4,
	}
}

// Subscribe registers a stream that lives until ctx is done or cleanup is called.
// The most recent frame, if any, is delivered first.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan floor.Frame, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan floor.Frame, d.bufferSize),
	}
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	if d.latest != nil {
		subscriber.stream <- *d.latest
	}
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers frame to every subscriber with room in its buffer.
func (d *RealtimeDispatcher) Publish(frame floor.Frame) {
	d.mu.Lock()
	d.latest = &frame
	d.mu.Unlock()

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers {
		select {
		case subscriber.stream <- frame:
		default:
		}
	}
}

// SubscriberCount returns the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscriber, ok := d.subscribers[subscriberID]
	if !ok {
		return
	}
	delete(d.subscribers, subscriberID)
	close(subscriber.stream)
}
