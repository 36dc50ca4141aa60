// Package pubsub provides the in-process change notification used by the
// local record-store drivers: subscribers get coalescing "something changed"
// signals per topic and re-read the store on each signal.
package pubsub

import "sync"

// Broker fans out change signals by topic. Signals carry no payload; a
// pending signal absorbs later ones, so a slow subscriber sees one combined
// wake-up instead of a backlog.
type Broker struct {
	mu     sync.Mutex
	nextID int
	topics map[string]map[int]chan struct{}
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[int]chan struct{})}
}

// Publish wakes every subscriber of the topic. Never blocks.
func (b *Broker) Publish(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.topics[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a listener for the topic.
func (b *Broker) Subscribe(topic string) *Listener {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int]chan struct{})
	}
	id := b.nextID
	b.nextID++
	ch := make(chan struct{}, 1)
	b.topics[topic][id] = ch

	return &Listener{broker: b, topic: topic, id: id, C: ch}
}

// Listener is a single topic subscription. C receives coalesced signals.
type Listener struct {
	broker *Broker
	topic  string
	id     int
	once   sync.Once

	C <-chan struct{}
}

// Close detaches the listener. Idempotent.
func (l *Listener) Close() {
	l.once.Do(func() {
		l.broker.mu.Lock()
		defer l.broker.mu.Unlock()

		if subs, ok := l.broker.topics[l.topic]; ok {
			delete(subs, l.id)
			if len(subs) == 0 {
				delete(l.broker.topics, l.topic)
			}
		}
	})
}
