package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"veriflow/internal/config"
	"veriflow/internal/task"
)

const userAgent = "Veriflow-Go/0.1.0"

// Service defines the notification surface exposed to the workflow runner.
type Service interface {
	NotifyTaskStarted(ctx context.Context, snapshot *task.Task) error
	NotifyTaskFinished(ctx context.Context, snapshot *task.Task) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		prefs:    cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	prefs    config.Notifications
}

func (n *ntfyService) NotifyTaskStarted(ctx context.Context, snapshot *task.Task) error {
	if !n.prefs.Started || snapshot == nil {
		return nil
	}
	data := payload{
		title:   "Veriflow - Verification Started",
		message: fmt.Sprintf("Started %s verification %s", snapshot.Profile, shortID(snapshot.ID)),
		tags:    []string{"veriflow", "task", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskFinished(ctx context.Context, snapshot *task.Task) error {
	if snapshot == nil {
		return nil
	}

	var data payload
	switch snapshot.Status {
	case task.StatusApproved:
		if !n.prefs.Approved {
			return nil
		}
		message := fmt.Sprintf("Verification %s approved", shortID(snapshot.ID))
		if snapshot.Result != nil && snapshot.Result.RewardCode != "" {
			message = fmt.Sprintf("%s\nReward code: %s", message, snapshot.Result.RewardCode)
		}
		data = payload{
			title:    "Veriflow - Approved",
			message:  message,
			tags:     []string{"veriflow", "task", "approved"},
			priority: "high",
		}
	case task.StatusPendingReview:
		if !n.prefs.Review {
			return nil
		}
		data = payload{
			title:   "Veriflow - Pending Review",
			message: fmt.Sprintf("Verification %s awaiting document review", shortID(snapshot.ID)),
			tags:    []string{"veriflow", "task", "review"},
		}
	case task.StatusRejected:
		if !n.prefs.Rejected {
			return nil
		}
		message := fmt.Sprintf("Verification %s rejected", shortID(snapshot.ID))
		if snapshot.Result != nil && snapshot.Result.Reason != "" {
			message = fmt.Sprintf("%s: %s", message, snapshot.Result.Reason)
		}
		data = payload{
			title:    "Veriflow - Rejected",
			message:  message,
			tags:     []string{"veriflow", "task", "rejected"},
			priority: "high",
		}
	case task.StatusFailed:
		if !n.prefs.Errors {
			return nil
		}
		message := fmt.Sprintf("Verification %s failed", shortID(snapshot.ID))
		if snapshot.Result != nil && snapshot.Result.Detail != "" {
			message = fmt.Sprintf("%s: %s", message, snapshot.Result.Detail)
		}
		data = payload{
			title:    "Veriflow - Failed",
			message:  message,
			tags:     []string{"veriflow", "task", "failed"},
			priority: "high",
		}
	default:
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.prefs.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Veriflow - Error",
		message:  builder.String(),
		tags:     []string{"veriflow", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Veriflow - Test",
		message:  "Notification system test",
		tags:     []string{"veriflow", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) NotifyTaskStarted(context.Context, *task.Task) error  { return nil }
func (noopService) NotifyTaskFinished(context.Context, *task.Task) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error     { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
