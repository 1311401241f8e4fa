package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"veriflow/internal/api"
	"veriflow/internal/logging"
)

func runCommand(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server, "--token", "test-token"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSubmitCommandPostsRequest(t *testing.T) {
	var got api.SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/verify" || r.Method != http.MethodPost {
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.TaskResponse{Task: api.TaskView{
			ID:      "11111111-2222-3333-4444-555555555555",
			Profile: "military",
			Status:  "pending",
		}})
	}))
	defer server.Close()

	out, err := runCommand(t, server.URL, "submit",
		"https://services.sheerid.com/verify/abc/?verificationId=68a1b2c3d4e5f60718293a4b",
		"--profile", "military",
		"--first-name", "John", "--last-name", "Doe",
		"--birth-date", "1980-04-12", "--email", "john@example.com",
		"--org-id", "4071", "--status", "VETERAN",
	)
	if err != nil {
		t.Fatalf("submit failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Submitted task 11111111-2222-3333-4444-555555555555") {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Profile != "military" || got.Subject == nil || got.Subject.OrganizationID != 4071 {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(got.VerificationURL, "verificationId=") {
		t.Fatalf("expected verification url passthrough, got %+v", got)
	}
}

func TestSubmitRequiresSubjectFlags(t *testing.T) {
	_, err := runCommand(t, "http://127.0.0.1:1", "submit", "68a1b2c3d4e5f60718293a4b", "--profile", "military")
	if err == nil || !strings.Contains(err.Error(), "subject flags are required") {
		t.Fatalf("expected subject flag error, got %v", err)
	}
}

func TestListCommandRendersRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("status") != "running" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.TaskListResponse{Tasks: []api.TaskView{{
			ID:               "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			Profile:          "military",
			Status:           "running",
			CurrentStepIndex: 1,
			TotalSteps:       2,
			CurrentAction:    "Submitting veteran personal info",
		}}})
	}))
	defer server.Close()

	out, err := runCommand(t, server.URL, "list", "--status", "running")
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "aaaaaaaa") || !strings.Contains(out, "1/2") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestListCommandRejectsUnknownStatus(t *testing.T) {
	_, err := runCommand(t, "http://127.0.0.1:1", "list", "--status", "bogus")
	if err == nil || !strings.Contains(err.Error(), `unknown status "bogus"`) {
		t.Fatalf("expected status parse error, got %v", err)
	}
}

func TestStatusCommandRendersSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{
			Running:     true,
			PID:         4242,
			ActiveTasks: 1,
			Profiles:    []string{"military", "teacher-k12"},
			StorePath:   "/tmp/veriflow.db",
		})
	}))
	defer server.Close()

	out, err := runCommand(t, server.URL, "status")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Running:      yes") || !strings.Contains(out, "military, teacher-k12") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestDaemonErrorsSurfaceToUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "not found: task nope"})
	}))
	defer server.Close()

	_, err := runCommand(t, server.URL, "show", "nope")
	if err == nil || !strings.Contains(err.Error(), "not found: task nope") {
		t.Fatalf("expected daemon error passthrough, got %v", err)
	}
}

func TestTaskSummaryPrefersActionThenResult(t *testing.T) {
	view := api.TaskView{CurrentAction: "Submitting military status"}
	if got := taskSummary(view); got != "Submitting military status" {
		t.Fatalf("unexpected summary %q", got)
	}
	view = api.TaskView{Result: &api.ResultView{RewardCode: "VET-9"}}
	if got := taskSummary(view); got != "reward VET-9" {
		t.Fatalf("unexpected summary %q", got)
	}
	view = api.TaskView{Result: &api.ResultView{Reason: "ineligible"}}
	if got := taskSummary(view); got != "ineligible" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestFormatLogEvent(t *testing.T) {
	evt := logging.LogEvent{
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Level:     "INFO",
		Component: "runner",
		Message:   "step complete",
		TaskID:    "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Step:      "collectMilitaryStatus",
		Fields:    map[string]string{"server_status": "success"},
	}
	line := formatLogEvent(evt)
	want := "2026-03-14T09:00:00Z INFO runner: step complete task=aaaaaaaa step=collectMilitaryStatus server_status=success"
	if line != want {
		t.Fatalf("unexpected line\n got %q\nwant %q", line, want)
	}
}
