package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"veriflow/internal/api"
	"veriflow/internal/config"
	"veriflow/internal/subject"
	"veriflow/internal/testsupport"
)

const testVerificationID = "68a1b2c3d4e5f60718293a4b"

// fakeVerifier approves the military flow: the status step branches to the
// veteran personal-info step, which succeeds.
func fakeVerifier(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	prefix := "/rest/v2/verification/" + testVerificationID + "/step/"
	mux.HandleFunc(prefix+"collectMilitaryStatus", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(w, map[string]any{
			"currentStep":    "collectInactiveMilitaryPersonalInfo",
			"verificationId": testVerificationID,
		})
	})
	mux.HandleFunc(prefix+"collectInactiveMilitaryPersonalInfo", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(w, map[string]any{
			"currentStep": "success",
			"redirectUrl": "https://example.com/done",
			"rewardCode":  "VET-9",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeJSONBody(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return d
}

func veteranSubject() *api.SubjectPayload {
	return &api.SubjectPayload{
		FirstName:      "John",
		LastName:       "Doe",
		BirthDate:      "1980-04-12",
		Email:          "john.doe@example.com",
		OrganizationID: 4071,
		StatusCode:     "VETERAN",
		DischargeDate:  "2005-06-30",
	}
}

func apiRequest(t *testing.T, d *Daemon, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, "http://"+d.APIAddr()+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func waitForStatus(t *testing.T, d *Daemon, taskID, want string) api.TaskView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := apiRequest(t, d, http.MethodGet, "/api/tasks/"+taskID, nil)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("describe returned %d", resp.StatusCode)
		}
		view := decodeBody[api.TaskResponse](t, resp).Task
		if view.Status == want {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", taskID, want)
	return api.TaskView{}
}

func TestDaemonLockIsExclusive(t *testing.T) {
	verifier := fakeVerifier(t)
	cfg := testsupport.NewConfig(t, testsupport.WithSheerIDBaseURL(verifier.URL))
	d := newTestDaemon(t, cfg)

	second, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second daemon start to fail while lock is held")
	}

	d.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("expected lock release to allow restart, got %v", err)
	}
	second.Stop()
}

func TestVerifyEndToEndOverHTTP(t *testing.T) {
	verifier := fakeVerifier(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithSheerIDBaseURL(verifier.URL),
		testsupport.WithWorkflowTuning(1, 5),
	)
	d := newTestDaemon(t, cfg)

	resp := apiRequest(t, d, http.MethodPost, "/api/verify", api.SubmitRequest{
		Profile:         "military",
		VerificationURL: "https://services.sheerid.com/verify/abc/?verificationId=" + testVerificationID,
		Subject:         veteranSubject(),
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit returned %d", resp.StatusCode)
	}
	submitted := decodeBody[api.TaskResponse](t, resp).Task
	if submitted.Status != "pending" || submitted.VerificationID != testVerificationID {
		t.Fatalf("unexpected submitted task %+v", submitted)
	}

	final := waitForStatus(t, d, submitted.ID, "approved")
	if final.Result == nil || final.Result.RewardCode != "VET-9" {
		t.Fatalf("unexpected result %+v", final.Result)
	}
	if final.CurrentStepIndex != 2 || final.TotalSteps != 2 {
		t.Fatalf("unexpected progress %d/%d", final.CurrentStepIndex, final.TotalSteps)
	}

	events := decodeBody[api.EventsResponse](t, apiRequest(t, d, http.MethodGet,
		"/api/tasks/"+submitted.ID+"/events?since=0", nil))
	if !events.Done || len(events.Snapshots) == 0 {
		t.Fatalf("unexpected events page %+v", events)
	}
	last := events.Snapshots[len(events.Snapshots)-1]
	if last.Status != "approved" {
		t.Fatalf("expected terminal snapshot last, got %q", last.Status)
	}

	outcomes := decodeBody[api.OutcomeListResponse](t, apiRequest(t, d, http.MethodGet, "/api/outcomes", nil))
	if len(outcomes.Outcomes) != 1 || outcomes.Outcomes[0].TaskID != submitted.ID {
		t.Fatalf("unexpected outcomes %+v", outcomes.Outcomes)
	}
}

func TestStoredSubjectIsRetiredAfterApproval(t *testing.T) {
	verifier := fakeVerifier(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithSheerIDBaseURL(verifier.URL),
		testsupport.WithWorkflowTuning(1, 5),
	)
	d := newTestDaemon(t, cfg)
	ctx := context.Background()

	rec := subject.Record{
		FirstName:      "Jane",
		LastName:       "Smith",
		BirthDate:      "1979-01-20",
		Email:          "jane.smith@example.com",
		OrganizationID: 4071,
		StatusCode:     "VETERAN",
		DischargeDate:  "2001-03-15",
	}
	subjectID, err := d.store.AddSubject(ctx, "military", rec)
	if err != nil {
		t.Fatalf("AddSubject failed: %v", err)
	}

	resp := apiRequest(t, d, http.MethodPost, "/api/verify", api.SubmitRequest{
		Profile:          "military",
		VerificationID:   testVerificationID,
		UseStoredSubject: true,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit returned %d", resp.StatusCode)
	}
	submitted := decodeBody[api.TaskResponse](t, resp).Task
	waitForStatus(t, d, submitted.ID, "approved")

	deadline := time.Now().Add(5 * time.Second)
	for {
		next, err := d.store.NextUnusedSubject(ctx, "military")
		if err != nil {
			t.Fatalf("NextUnusedSubject failed: %v", err)
		}
		if next == nil {
			break
		}
		if next.ID != subjectID {
			t.Fatalf("unexpected roster entry %+v", next)
		}
		if time.Now().After(deadline) {
			t.Fatal("subject was never marked used")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPIRejectsBadTokenAndBadInput(t *testing.T) {
	verifier := fakeVerifier(t)
	cfg := testsupport.NewConfig(t, testsupport.WithSheerIDBaseURL(verifier.URL))
	d := newTestDaemon(t, cfg)

	req, err := http.NewRequest(http.MethodGet, "http://"+d.APIAddr()+"/api/tasks", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = apiRequest(t, d, http.MethodPost, "/api/verify", api.SubmitRequest{
		Profile:        "student",
		VerificationID: testVerificationID,
		Subject:        veteranSubject(),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown profile, got %d", resp.StatusCode)
	}

	resp = apiRequest(t, d, http.MethodPost, "/api/verify", api.SubmitRequest{
		Profile:        "military",
		VerificationID: testVerificationID,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without subject, got %d", resp.StatusCode)
	}

	resp = apiRequest(t, d, http.MethodGet, "/api/tasks/nope", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", resp.StatusCode)
	}
}

func TestStatusEndpointReportsProfiles(t *testing.T) {
	verifier := fakeVerifier(t)
	cfg := testsupport.NewConfig(t, testsupport.WithSheerIDBaseURL(verifier.URL))
	d := newTestDaemon(t, cfg)

	status := decodeBody[api.DaemonStatus](t, apiRequest(t, d, http.MethodGet, "/api/status", nil))
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	if !strings.HasSuffix(status.StorePath, "veriflow.db") {
		t.Fatalf("unexpected store path %q", status.StorePath)
	}
	want := []string{"military", "teacher-k12"}
	if fmt.Sprint(status.Profiles) != fmt.Sprint(want) {
		t.Fatalf("unexpected profiles %v", status.Profiles)
	}
}
