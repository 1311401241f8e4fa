package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"veriflow/internal/config"
	"veriflow/internal/notifications"
	"veriflow/internal/task"
)

func newConfig(endpoint string) *config.Config {
	cfg := new(config.Config)
	*cfg = config.Default()
	cfg.Notifications.NtfyTopic = endpoint
	cfg.Notifications.Started = true
	cfg.Notifications.Approved = true
	cfg.Notifications.Review = true
	cfg.Notifications.Rejected = true
	cfg.Notifications.Errors = true
	return cfg
}

func TestNotifyTaskFinishedSendsApproval(t *testing.T) {
	var gotTitle, gotPriority, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := notifications.NewService(newConfig(server.URL))
	snapshot := &task.Task{
		ID:     "0d9c2a1b-e5f3-4b6c-9a8d-7e6f5a4b3c2d",
		Status: task.StatusApproved,
		Result: &task.Result{RewardCode: "VET-1234"},
	}
	if err := svc.NotifyTaskFinished(context.Background(), snapshot); err != nil {
		t.Fatalf("NotifyTaskFinished failed: %v", err)
	}
	if gotTitle != "Veriflow - Approved" {
		t.Fatalf("unexpected title %q", gotTitle)
	}
	if gotPriority != "high" {
		t.Fatalf("expected high priority, got %q", gotPriority)
	}
	if gotBody == "" || gotBody[len(gotBody)-8:] != "VET-1234" {
		t.Fatalf("expected reward code in body, got %q", gotBody)
	}
}

func TestNotifyRespectsPreferenceGates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := newConfig(server.URL)
	cfg.Notifications.Rejected = false
	svc := notifications.NewService(cfg)

	snapshot := &task.Task{ID: "t1", Status: task.StatusRejected}
	if err := svc.NotifyTaskFinished(context.Background(), snapshot); err != nil {
		t.Fatalf("NotifyTaskFinished failed: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected gated notification to be skipped, got %d calls", calls)
	}
}

func TestNoopServiceWhenTopicUnset(t *testing.T) {
	cfg := newConfig("")
	svc := notifications.NewService(cfg)
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop service returned error: %v", err)
	}
}

func TestSendReportsServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	svc := notifications.NewService(newConfig(server.URL))
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from 403 response")
	}
}
