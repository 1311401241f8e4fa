package task

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a verification task.
type Status string

const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusPendingReview Status = "pending_review"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// UserCancelReason is the result detail set when a caller explicitly cancels a task.
const UserCancelReason = "Cancelled by caller"

// DaemonStopReason is the result detail set when tasks are cancelled due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusApproved,
	StatusRejected,
	StatusPendingReview,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusApproved:      {},
	StatusRejected:      {},
	StatusPendingReview: {},
	StatusFailed:        {},
	StatusCancelled:     {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is absorbing. Terminal tasks accept no
// further mutation; pending_review counts because the engine's involvement
// ends once the remote reviewer owns the verification.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// LogEntry is one timestamped progress message. Task logs are append-only.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Result carries the terminal payload for a finished task.
type Result struct {
	RedirectURL string `json:"redirect_url,omitempty"`
	RewardCode  string `json:"reward_code,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Task is one execution of a verification workflow for one subject.
type Task struct {
	ID               string
	Profile          string
	Status           Status
	CurrentStepIndex int
	TotalSteps       int
	CurrentAction    string
	Logs             []LogEntry
	VerificationID   string
	Result           *Result
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsTerminal reports whether the task has reached an absorbing status.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// AppendLog appends a timestamped message to the task log.
func (t *Task) AppendLog(message string) {
	t.Logs = append(t.Logs, LogEntry{At: time.Now().UTC(), Message: message})
}

// SetResult records the terminal payload together with the terminal status.
func (t *Task) SetResult(status Status, result Result) {
	t.Status = status
	t.Result = &result
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if len(t.Logs) > 0 {
		cp.Logs = make([]LogEntry, len(t.Logs))
		copy(cp.Logs, t.Logs)
	}
	if t.Result != nil {
		result := *t.Result
		cp.Result = &result
	}
	return &cp
}
