package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidsafe_events_subscribers",
		Help: "Connected progress event subscribers",
	})
	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidsafe_events_dropped_total",
		Help: "Progress events not delivered because a subscriber buffer was full",
	})
)

// Event reports pipeline progress for one video. Subscribers should treat it
// as a hint and re-fetch the record for authoritative state.
type Event struct {
	VideoID   string    `json:"videoId"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Error     bool      `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus is a fire-and-forget broadcast. Publish never blocks and never fails.
type Bus interface {
	Publish(Event)
}

type Subscription struct {
	ID uuid.UUID
	C  <-chan Event

	ch      chan Event
	dropped atomic.Int64
}

// Dropped is the number of events this subscriber missed because its buffer
// was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Broker is an in-memory fan-out Bus.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscription
	log         *logrus.Entry
}

func NewBroker(logger *logrus.Logger) *Broker {
	return &Broker{
		subscribers: make(map[uuid.UUID]*Subscription),
		log:         logger.WithField("component", "events"),
	}
}

// Subscribe registers a new subscriber whose channel buffers up to buffer
// events. Events published before Subscribe returns are not delivered.
func (b *Broker) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{
		ID: uuid.Must(uuid.NewV7()),
		C:  ch,
		ch: ch,
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()
	subscribersGauge.Inc()

	b.log.Debugf("subscriber %s joined", sub.ID)
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub.ID]; !ok {
		return
	}
	delete(b.subscribers, sub.ID)
	close(sub.ch)
	subscribersGauge.Dec()
	b.log.Debugf("subscriber %s left (%d dropped)", sub.ID, sub.Dropped())
}

func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Holding the read lock keeps Unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			droppedEvents.Inc()
		}
	}
}

// Len is the current number of subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
