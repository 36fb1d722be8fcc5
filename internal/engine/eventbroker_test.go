package engine_test

import (
	"testing"
	"time"

	"github.com/seantiz/botrunner/internal/engine"
	"github.com/seantiz/botrunner/internal/model"
)

func event(jobID string, seq int, kind string) model.JobEvent {
	return model.JobEvent{JobID: jobID, Seq: seq, Kind: kind, State: "init"}
}

func drain(ch <-chan model.JobEvent) []model.JobEvent {
	var got []model.JobEvent
	for ev := range ch {
		got = append(got, ev)
	}
	return got
}

func TestEventBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("j1")
	defer unsub()

	kinds := []string{model.EventEnter, model.EventDispatch, model.EventResult}
	for i, k := range kinds {
		b.Publish(event("j1", i, k))
	}
	b.Close("j1")

	got := drain(ch)
	if len(got) != len(kinds) {
		t.Fatalf("got %d events, want %d", len(got), len(kinds))
	}
	for i, ev := range got {
		if ev.Seq != i || ev.Kind != kinds[i] {
			t.Errorf("event[%d] = %d/%s, want %d/%s", i, ev.Seq, ev.Kind, i, kinds[i])
		}
	}
}

func TestEventBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewEventBroker()
	ch1, unsub1 := b.Subscribe("j1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("j1")
	defer unsub2()

	b.Publish(event("j1", 0, model.EventEnter))
	b.Close("j1")

	if got := drain(ch1); len(got) != 1 {
		t.Errorf("subscriber 1 got %d events, want 1", len(got))
	}
	if got := drain(ch2); len(got) != 1 {
		t.Errorf("subscriber 2 got %d events, want 1", len(got))
	}
}

func TestEventBrokerIsolatesJobs(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("j1")
	defer unsub()

	b.Publish(event("j2", 0, model.EventEnter))
	b.Close("j1")

	if got := drain(ch); len(got) != 0 {
		t.Errorf("got %d events from another job, want 0", len(got))
	}
}

func TestEventBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := engine.NewEventBroker()
	b.Publish(event("j1", 0, model.EventEnter))
	b.Close("j1")

	ch, unsub := b.Subscribe("j1")
	defer unsub()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("late subscriber received an event, want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("late subscriber channel not closed")
	}
}

func TestEventBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("j1")
	unsub()

	b.Publish(event("j1", 0, model.EventEnter))

	select {
	case ev := <-ch:
		t.Errorf("received %+v after unsubscribe", ev)
	default:
	}
}

func TestEventBrokerDropsForSlowSubscriber(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("j1")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := range 200 {
			b.Publish(event("j1", i, model.EventEnter))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	b.Close("j1")

	if got := drain(ch); len(got) == 0 || len(got) > 64 {
		t.Errorf("got %d events, want between 1 and 64", len(got))
	}
}
