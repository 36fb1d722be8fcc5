package engine

import (
	"sync"
	"time"

	"github.com/seantiz/botrunner/internal/model"
)

const (
	// subscriberBufferSize is how far a stream may fall behind before its
	// events are dropped. The stored history stays complete.
	subscriberBufferSize = 64

	// finishedRetention is how long a finished job's topic is remembered so
	// that a stream opened just after the job ends closes at once.
	finishedRetention = 5 * time.Minute
)

// EventBroker fans job events out to live stream subscribers, one topic per
// job. It is safe for concurrent use.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
	now    func() time.Time
}

type eventTopic struct {
	subs       map[int]chan model.JobEvent
	nextID     int
	finishedAt time.Time
}

func (t *eventTopic) finished() bool { return !t.finishedAt.IsZero() }

// NewEventBroker creates an empty broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
		now:    time.Now,
	}
}

// Subscribe returns a channel of the job's events and a function that ends
// the subscription. The channel is closed when the job finishes, or at once
// if it already has.
func (b *EventBroker) Subscribe(jobID string) (<-chan model.JobEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.JobEvent, subscriberBufferSize)
	t := b.topics[jobID]
	if t != nil && t.finished() {
		close(ch)
		return ch, func() {}
	}
	if t == nil {
		t = &eventTopic{subs: make(map[int]chan model.JobEvent)}
		b.topics[jobID] = t
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if len(t.subs) == 0 && !t.finished() && b.topics[jobID] == t {
			delete(b.topics, jobID)
		}
	}
}

// Publish delivers ev to every current subscriber of its job without
// blocking. Nothing is buffered for subscribers that arrive later.
func (b *EventBroker) Publish(ev model.JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.JobID]
	if !ok || t.finished() {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			eventsDropped.Inc()
		}
	}
}

// Close marks the job finished and closes its subscriber channels. It also
// forgets jobs that finished more than finishedRetention ago.
func (b *EventBroker) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for id, t := range b.topics {
		if t.finished() && now.Sub(t.finishedAt) > finishedRetention {
			delete(b.topics, id)
		}
	}

	t, ok := b.topics[jobID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan model.JobEvent)}
		b.topics[jobID] = t
	}
	t.finishedAt = now
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// topicCount reports how many jobs the broker is tracking.
func (b *EventBroker) topicCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
