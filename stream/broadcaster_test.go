package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/pershow/cardagent/agent"
)

func collect(t *testing.T, ch <-chan agent.StreamEvent) []agent.StreamEvent {
	t.Helper()
	var events []agent.StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining subscriber channel")
		}
	}
}

func TestBroadcasterDeliveryOrder(t *testing.T) {
	b := NewBroadcaster()
	b.Open("s1", nil)

	ch, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish("s1", agent.ToolStatusEvent("Searching"))
	b.Publish("s1", agent.ContentEvent("hello"))
	b.Publish("s1", agent.ContentEvent(" world"))
	b.Publish("s1", agent.DoneEvent())

	events := collect(t, ch)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].ToolStatus == nil || events[1].Content != "hello" || events[2].Content != " world" || !events[3].Done {
		t.Errorf("events out of order: %+v", events)
	}
	if b.SessionCount() != 0 {
		t.Error("terminal event should remove the session")
	}
}

func TestBroadcasterDropsBeforeSubscribe(t *testing.T) {
	b := NewBroadcaster()
	b.Open("s1", nil)

	// Published with no subscriber attached: lost, per at-most-once delivery.
	b.Publish("s1", agent.ContentEvent("early"))

	ch, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b.Publish("s1", agent.DoneEvent())

	events := collect(t, ch)
	if len(events) != 1 || !events[0].Done {
		t.Errorf("expected only the Done event, got %+v", events)
	}
}

func TestBroadcasterUnknownSession(t *testing.T) {
	b := NewBroadcaster()
	if _, err := b.Subscribe("missing"); err == nil {
		t.Error("subscribing to an unknown session must fail")
	}
	// Publishing into the void must not panic.
	b.Publish("missing", agent.ContentEvent("x"))
	b.Unsubscribe("missing")
}

func TestBroadcasterSingleSubscriber(t *testing.T) {
	b := NewBroadcaster()
	b.Open("s1", nil)
	if _, err := b.Subscribe("s1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := b.Subscribe("s1"); err == nil {
		t.Error("second subscriber must be rejected")
	}
}

func TestBroadcasterUnsubscribeCancels(t *testing.T) {
	b := NewBroadcaster()
	cancelled := make(chan struct{})
	b.Open("s1", func() { close(cancelled) })

	ch, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b.Unsubscribe("s1")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe must invoke the cancel hook")
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	// Late publishes go into the void without error.
	b.Publish("s1", agent.ContentEvent("late"))
}

func TestBroadcasterTerminalSurvivesFullBuffer(t *testing.T) {
	b := NewBroadcaster()
	b.Open("s1", nil)

	ch, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Overflow the buffer without draining, then finish the session. The
	// overflow events are lost but the terminal must still come through.
	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish("s1", agent.ContentEvent("chunk"))
	}
	b.Publish("s1", agent.DoneEvent())

	events := collect(t, ch)
	if len(events) == 0 {
		t.Fatal("expected buffered events")
	}
	if last := events[len(events)-1]; !last.Done {
		t.Errorf("last event must be the terminal, got %+v", last)
	}
	if b.SessionCount() != 0 {
		t.Error("terminal event should remove the session")
	}
}

func TestBroadcasterCloseAll(t *testing.T) {
	b := NewBroadcaster()
	cancelled := make(chan struct{})
	b.Open("a", func() { close(cancelled) })
	b.Open("b", nil)

	chA, err := b.Subscribe("a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b.Publish("a", agent.ContentEvent("partial"))

	b.CloseAll()

	if b.SessionCount() != 0 {
		t.Errorf("sessions still registered after CloseAll: %d", b.SessionCount())
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("CloseAll must invoke the session cancel hooks")
	}
	events := collect(t, chA)
	if len(events) != 1 || events[0].Content != "partial" {
		t.Errorf("buffered events should drain before close, got %+v", events)
	}
	// Publishing after shutdown goes into the void without error.
	b.Publish("b", agent.DoneEvent())
}

func TestBroadcasterSessionIsolation(t *testing.T) {
	b := NewBroadcaster()
	b.Open("a", nil)
	b.Open("b", nil)

	chA, _ := b.Subscribe("a")
	chB, _ := b.Subscribe("b")

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				b.Publish(id, agent.ContentEvent(id))
			}
			b.Publish(id, agent.DoneEvent())
		}(id)
	}
	wg.Wait()

	for _, ev := range collect(t, chA) {
		if ev.Content != "" && ev.Content != "a" {
			t.Errorf("session a received foreign event %+v", ev)
		}
	}
	for _, ev := range collect(t, chB) {
		if ev.Content != "" && ev.Content != "b" {
			t.Errorf("session b received foreign event %+v", ev)
		}
	}
}
