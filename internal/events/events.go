// Package events is a small in-process pub/sub broker for workflow
// lifecycle notifications: the Swarm publishes a WorkflowRunTerminal event
// when a run ends, and cmd/jobmon-swarm subscribes and logs it, without
// the Swarm itself knowing who's listening. The other event types are
// defined here but nothing in this module publishes them. Grounded
// on cuemby-warren's pkg/events.Broker, same buffered-channel fan-out
// mechanics, relabeled from Warren's cluster events (service/node/secret
// lifecycle) to Jobmon's task and workflow-run lifecycle.
package events

import (
	"sync"
	"time"
)

type Type string

const (
	TaskInstanceErrored   Type = "task_instance.errored"
	TaskDone              Type = "task.done"
	TaskErrorFatal        Type = "task.error_fatal"
	WorkflowRunTerminal   Type = "workflow_run.terminal"
	DistributorInstanceGC Type = "distributor_instance.expunged"
)

// Event is one occurrence published to a Broker.
type Event struct {
	ID         string
	Type       Type
	Timestamp  time.Time
	WorkflowID int64
	EntityID   int64 // TaskID, TaskInstanceID, or WorkflowRunID depending on Type
	Message    string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan *Event
	stopCh      chan struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

func (b *Broker) Start() {
	go b.run()
}

func (b *Broker) Stop() {
	close(b.stopCh)
}

func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues an event for delivery. It is safe to call from a nil
// *Broker (a no-op), so callers that don't wire a broker in can skip a
// nil check at every call site.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
