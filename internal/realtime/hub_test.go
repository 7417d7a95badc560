package realtime

import (
	"testing"
	"time"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

func recvMessage(t *testing.T, ch <-chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return Message{}
}

func TestHubReconnectAndOrdering(t *testing.T) {
	hub := NewHub(logger.NewNop())
	channel := CourseChannel("c-1")

	first := hub.Subscribe("u-1", channel)
	hub.Broadcast(Message{Channel: channel, Event: EventScanStarted})
	hub.Broadcast(Message{Channel: channel, Event: EventScanProgress})

	if got := recvMessage(t, first.Messages(), time.Second); got.Event != EventScanStarted {
		t.Fatalf("first event: want=%s got=%s", EventScanStarted, got.Event)
	}
	if got := recvMessage(t, first.Messages(), time.Second); got.Event != EventScanProgress {
		t.Fatalf("second event: want=%s got=%s", EventScanProgress, got.Event)
	}

	hub.Unsubscribe(first)
	hub.Unsubscribe(first)
	if _, ok := <-first.Messages(); ok {
		t.Fatalf("messages should be closed after unsubscribe")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}

	// A reopened popup picks up later notifications on the same course channel.
	second := hub.Subscribe("u-1", channel)
	hub.Broadcast(Message{Channel: channel, Event: EventScanComplete})
	if got := recvMessage(t, second.Messages(), time.Second); got.Event != EventScanComplete {
		t.Fatalf("reconnect event: want=%s got=%s", EventScanComplete, got.Event)
	}
}

func TestHubIgnoresOtherChannels(t *testing.T) {
	hub := NewHub(logger.NewNop())
	s := hub.Subscribe("u-1", CourseChannel("c-1"))

	hub.Broadcast(Message{Channel: CourseChannel("c-2"), Event: EventScanStarted})
	select {
	case msg := <-s.Messages():
		t.Fatalf("unexpected message %+v", msg)
	default:
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(logger.NewNop())
	channel := CourseChannel("c-1")
	s := hub.Subscribe("u-1", channel)
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Broadcast(Message{Channel: channel, Event: EventScanProgress})
	}
	if n := len(s.Messages()); n != subscriberBuffer {
		t.Fatalf("buffered=%d", n)
	}
}
