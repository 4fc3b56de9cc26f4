package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("t1")
	defer cancel()

	bus.Publish(Event{Type: Data, TabID: "t1", Data: "hi"})
	if got := receive(t, ch); got.Data != "hi" {
		t.Errorf("got %+v", got)
	}
}

func TestBus_FiltersByTab(t *testing.T) {
	bus := NewBus()
	one, cancelOne := bus.Subscribe("t1")
	defer cancelOne()
	all, cancelAll := bus.Subscribe(AllTabs)
	defer cancelAll()

	bus.Publish(Event{Type: Data, TabID: "t2"})

	if got := receive(t, all); got.TabID != "t2" {
		t.Errorf("all-tabs subscriber got %+v", got)
	}
	select {
	case e := <-one:
		t.Errorf("t1 subscriber got event for %s", e.TabID)
	default:
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("t1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
	bus.Publish(Event{TabID: "t1"})
}

func TestBus_PublishDoesNotBlockWhenFull(t *testing.T) {
	bus := NewBus()
	bus.depth = 1
	ch, cancel := bus.Subscribe("t1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{TabID: "t1", Data: "first"})
		bus.Publish(Event{TabID: "t1", Data: "second"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("publish blocked on a full subscriber")
	}
	if got := receive(t, ch); got.Data != "first" {
		t.Errorf("got %q, want first", got.Data)
	}
}

func TestBus_LifecycleEventsDisplaceOutput(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("t1")
	defer cancel()

	for i := 0; i < defaultDepth+44; i++ {
		bus.Publish(Event{Type: Data, TabID: "t1", Data: "x"})
	}
	bus.Publish(Event{Type: CommandCompleted, TabID: "t1"})
	bus.Publish(Event{Type: Disconnected, TabID: "t1"})

	var got []Type
	for len(got) < defaultDepth {
		got = append(got, receive(t, ch).Type)
	}
	if got[0] != Data {
		t.Errorf("first event = %s, want data", got[0])
	}
	tail := got[len(got)-2:]
	if tail[0] != CommandCompleted || tail[1] != Disconnected {
		t.Errorf("last events = %v, want [commandCompleted disconnected]", tail)
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected extra event %+v", e)
	default:
	}
}

func TestLifecycle(t *testing.T) {
	tests := []struct {
		typ  Type
		want bool
	}{
		{Disconnected, true},
		{Error, true},
		{CommandCompleted, true},
		{CaptureAborted, true},
		{DiagnosisReady, true},
		{DiagnosisError, true},
		{Data, false},
		{DiagnosisChunk, false},
		{EnvironmentUpdate, false},
	}
	for _, tt := range tests {
		if got := lifecycle(tt.typ); got != tt.want {
			t.Errorf("lifecycle(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
