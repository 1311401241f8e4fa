package logging_test

import (
	"context"
	"testing"
	"time"

	"veriflow/internal/logging"
)

func TestStreamHubFetchReturnsNewEvents(t *testing.T) {
	hub := logging.NewStreamHub(8)
	hub.Publish(logging.LogEvent{Message: "first"})
	hub.Publish(logging.LogEvent{Message: "second"})

	events, next, err := hub.Fetch(context.Background(), 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Message != "first" || events[1].Message != "second" {
		t.Fatalf("unexpected order: %q, %q", events[0].Message, events[1].Message)
	}
	if next != 2 {
		t.Fatalf("expected cursor 2, got %d", next)
	}

	events, _, err = hub.Fetch(context.Background(), next, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events past cursor, got %d", len(events))
	}
}

func TestStreamHubFetchWaitWakesOnPublish(t *testing.T) {
	hub := logging.NewStreamHub(8)
	done := make(chan []logging.LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(logging.LogEvent{Message: "wake"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "wake" {
			t.Fatalf("unexpected events: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchWaitHonorsContext(t *testing.T) {
	hub := logging.NewStreamHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := logging.NewStreamHub(2)
	hub.Publish(logging.LogEvent{Message: "a"})
	hub.Publish(logging.LogEvent{Message: "b"})
	hub.Publish(logging.LogEvent{Message: "c"})

	events, _ := hub.Tail(10)
	if len(events) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(events))
	}
	if events[0].Message != "b" || events[1].Message != "c" {
		t.Fatalf("expected oldest evicted, got %q, %q", events[0].Message, events[1].Message)
	}
}
