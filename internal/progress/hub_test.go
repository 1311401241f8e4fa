package progress_test

import (
	"context"
	"testing"
	"time"

	"veriflow/internal/progress"
	"veriflow/internal/task"
)

func snap(id string, status task.Status, step int) *task.Task {
	return &task.Task{ID: id, Status: status, CurrentStepIndex: step}
}

func TestSubscribeUnknownTask(t *testing.T) {
	hub := progress.NewHub()
	if _, ok := hub.Subscribe(context.Background(), "missing"); ok {
		t.Fatal("expected Subscribe to report unknown task")
	}
}

func TestSubscribeObservesTransitionsInOrder(t *testing.T) {
	hub := progress.NewHub()
	hub.Publish(snap("vt-1", task.StatusPending, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, ok := hub.Subscribe(ctx, "vt-1")
	if !ok {
		t.Fatal("expected subscription")
	}

	go func() {
		hub.Publish(snap("vt-1", task.StatusRunning, 0))
		hub.Publish(snap("vt-1", task.StatusRunning, 1))
		hub.Publish(snap("vt-1", task.StatusApproved, 2))
	}()

	var statuses []task.Status
	var steps []int
	for s := range ch {
		statuses = append(statuses, s.Status)
		steps = append(steps, s.CurrentStepIndex)
	}

	if len(statuses) != 4 {
		t.Fatalf("expected 4 snapshots, got %d (%v)", len(statuses), statuses)
	}
	if statuses[len(statuses)-1] != task.StatusApproved {
		t.Fatalf("expected terminal approved last, got %v", statuses)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i] < steps[i-1] {
			t.Fatalf("step index went backwards: %v", steps)
		}
	}
}

func TestSubscribeStartsFromCurrentSnapshot(t *testing.T) {
	hub := progress.NewHub()
	hub.Publish(snap("vt-2", task.StatusPending, 0))
	hub.Publish(snap("vt-2", task.StatusRunning, 1))
	hub.Publish(snap("vt-2", task.StatusApproved, 2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, ok := hub.Subscribe(ctx, "vt-2")
	if !ok {
		t.Fatal("expected subscription")
	}

	var got []*task.Task
	for s := range ch {
		got = append(got, s)
	}
	if len(got) != 1 {
		t.Fatalf("expected only current snapshot, got %d", len(got))
	}
	if got[0].Status != task.StatusApproved {
		t.Fatalf("expected approved snapshot, got %q", got[0].Status)
	}
}

func TestPublishAfterTerminalIsDropped(t *testing.T) {
	hub := progress.NewHub()
	hub.Publish(snap("vt-3", task.StatusFailed, 1))
	hub.Publish(snap("vt-3", task.StatusRunning, 2))

	snaps, _, done, err := hub.Fetch(context.Background(), "vt-3", 0, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !done {
		t.Fatal("expected stream done")
	}
	if len(snaps) != 1 || snaps[0].Status != task.StatusFailed {
		t.Fatalf("expected single failed snapshot, got %+v", snaps)
	}
}

func TestTwoSubscribersSeePrefixConsistentHistories(t *testing.T) {
	hub := progress.NewHub()
	hub.Publish(snap("vt-4", task.StatusPending, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chA, _ := hub.Subscribe(ctx, "vt-4")
	chB, _ := hub.Subscribe(ctx, "vt-4")

	go func() {
		hub.Publish(snap("vt-4", task.StatusRunning, 1))
		hub.Publish(snap("vt-4", task.StatusRejected, 1))
	}()

	collect := func(ch <-chan *task.Task) []task.Status {
		var out []task.Status
		for s := range ch {
			out = append(out, s.Status)
		}
		return out
	}

	a := collect(chA)
	b := collect(chB)
	if len(a) != len(b) {
		t.Fatalf("subscriber histories diverge in length: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("subscriber histories diverge at %d: %v vs %v", i, a, b)
		}
	}
}

func TestFetchLongPollWakes(t *testing.T) {
	hub := progress.NewHub()
	hub.Publish(snap("vt-5", task.StatusRunning, 0))

	snaps, next, _, err := hub.Fetch(context.Background(), "vt-5", 0, false)
	if err != nil || len(snaps) != 1 {
		t.Fatalf("initial fetch: %v %d", err, len(snaps))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		snaps, _, _, err := hub.Fetch(context.Background(), "vt-5", next, true)
		if err != nil {
			t.Errorf("Fetch failed: %v", err)
			return
		}
		if len(snaps) != 1 || snaps[0].Status != task.StatusApproved {
			t.Errorf("unexpected snapshots: %+v", snaps)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(snap("vt-5", task.StatusApproved, 1))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("long poll did not wake")
	}
}
