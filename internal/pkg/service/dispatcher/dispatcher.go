package dispatcher

import (
	"sync"

	"github.com/hermeznetwork/hermez-node/log"

	"github.com/mevshield/coordinator/internal/pkg/model"
)

// Handler consumes one domain event. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(event model.Event)

type subscriber struct {
	name    string
	handler Handler
}

// Dispatcher fans domain events out to named in-process subscribers, keyed
// by topic. A panicking subscriber is isolated from the others.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriber
}

func New() *Dispatcher {
	return &Dispatcher{subscribers: make(map[string][]subscriber)}
}

// Subscribe registers handler under name for a topic. Re-subscribing with
// the same name replaces the previous handler.
func (d *Dispatcher) Subscribe(name, topic string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subscribers[topic]
	for i := range subs {
		if subs[i].name == name {
			subs[i].handler = handler
			return
		}
	}
	d.subscribers[topic] = append(subs, subscriber{name: name, handler: handler})
}

// Unsubscribe drops the named handler from a topic.
func (d *Dispatcher) Unsubscribe(name, topic string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subscribers[topic]
	for i := range subs {
		if subs[i].name == name {
			d.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers each event to every subscriber of its topic, in
// subscription order.
func (d *Dispatcher) Publish(events ...model.Event) {
	for _, event := range events {
		d.mu.RLock()
		subs := append([]subscriber{}, d.subscribers[event.GetTopic()]...)
		d.mu.RUnlock()
		for _, sub := range subs {
			d.deliver(sub, event)
		}
	}
}

func (d *Dispatcher) deliver(sub subscriber, event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("subscriber %s panicked on %s: %v", sub.name, event.GetName(), r)
		}
	}()
	sub.handler(event)
}
