package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"veriflow/internal/api"
	"veriflow/internal/store"
	"veriflow/internal/task"
)

// apiClient is a thin HTTP client for the daemon API. The timeout leaves
// headroom above the server's 55-second long-poll window.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base, token string) *apiClient {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 70 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `veriflowd`", base)
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return fmt.Errorf("connect to daemon at %s: %w", base, err)
}

func (c *apiClient) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

func (c *apiClient) Submit(ctx context.Context, req api.SubmitRequest) (api.TaskView, error) {
	var out api.TaskResponse
	err := c.do(ctx, http.MethodPost, "/api/verify", req, &out)
	return out.Task, err
}

func (c *apiClient) ListTasks(ctx context.Context, statuses []task.Status, profile string) ([]api.TaskView, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", string(status))
	}
	if profile != "" {
		query.Set("profile", profile)
	}
	path := "/api/tasks"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.TaskListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Tasks, err
}

func (c *apiClient) Describe(ctx context.Context, taskID string) (api.TaskView, error) {
	var out api.TaskResponse
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID), nil, &out)
	return out.Task, err
}

func (c *apiClient) Cancel(ctx context.Context, taskID, reason string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/cancel",
		api.CancelRequest{Reason: reason}, nil)
}

func (c *apiClient) Events(ctx context.Context, taskID string, since uint64, wait bool) (api.EventsResponse, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatUint(since, 10))
	if wait {
		query.Set("wait", "1")
	}
	var out api.EventsResponse
	err := c.do(ctx, http.MethodGet,
		"/api/tasks/"+url.PathEscape(taskID)+"/events?"+query.Encode(), nil, &out)
	return out, err
}

func (c *apiClient) Outcomes(ctx context.Context, filter store.OutcomeFilter) ([]api.OutcomeView, error) {
	query := url.Values{}
	for _, status := range filter.Statuses {
		query.Add("status", string(status))
	}
	if filter.Profile != "" {
		query.Set("profile", filter.Profile)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/api/outcomes"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.OutcomeListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Outcomes, err
}

func (c *apiClient) Profiles(ctx context.Context) ([]api.ProfileView, error) {
	var out api.ProfileListResponse
	err := c.do(ctx, http.MethodGet, "/api/profiles", nil, &out)
	return out.Profiles, err
}

func (c *apiClient) Logs(ctx context.Context, since uint64, limit int, follow, tail bool, taskID string) (api.LogStreamResponse, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		query.Set("follow", "1")
	}
	if tail {
		query.Set("tail", "1")
	}
	if taskID != "" {
		query.Set("task", taskID)
	}
	var out api.LogStreamResponse
	err := c.do(ctx, http.MethodGet, "/api/logs?"+query.Encode(), nil, &out)
	return out, err
}

func (c *apiClient) TestNotification(ctx context.Context) (api.NotificationTestResponse, error) {
	var out api.NotificationTestResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &out)
	return out, err
}
