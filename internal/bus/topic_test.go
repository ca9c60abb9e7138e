package bus

import (
	"testing"
	"time"
)

func TestTopicPublishSubscribe(t *testing.T) {
	top := NewTopic[int](1)
	id, ch := top.Subscribe()
	defer top.Unsubscribe(id)

	top.Publish(42)
	select {
	case v := <-ch:
		if v != 42 {
			t.Fatalf("got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestTopicDropsWhenFull(t *testing.T) {
	top := NewTopic[int](1)
	_, ch := top.Subscribe()

	top.Publish(1)
	top.Publish(2) // channel already full with 1; this is dropped

	if v := <-ch; v != 1 {
		t.Fatalf("got %d, want 1", v)
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected second value %d", v)
	default:
	}
}

func TestTopicUnsubscribeClosesChannel(t *testing.T) {
	top := NewTopic[int](0)
	id, ch := top.Subscribe()
	top.Unsubscribe(id)

	_, open := <-ch
	if open {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}

func TestTopicCloseClosesAllSubscribers(t *testing.T) {
	top := NewTopic[int](0)
	_, ch1 := top.Subscribe()
	_, ch2 := top.Subscribe()
	top.Close()

	for _, ch := range []<-chan int{ch1, ch2} {
		if _, open := <-ch; open {
			t.Fatal("expected channel closed after Close")
		}
	}
}
