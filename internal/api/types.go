package api

import "veriflow/internal/logging"

// dateTimeFormat renders timestamps with millisecond precision and an
// explicit offset so JavaScript clients can parse them directly.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TaskView is the wire representation of one verification task.
type TaskView struct {
	ID               string         `json:"id"`
	Profile          string         `json:"profile"`
	Status           string         `json:"status"`
	CurrentStepIndex int            `json:"currentStepIndex"`
	TotalSteps       int            `json:"totalSteps"`
	CurrentAction    string         `json:"currentAction,omitempty"`
	VerificationID   string         `json:"verificationId,omitempty"`
	Logs             []LogEntryView `json:"logs"`
	Result           *ResultView    `json:"result,omitempty"`
	CreatedAt        string         `json:"createdAt"`
	UpdatedAt        string         `json:"updatedAt"`
}

// LogEntryView is one timestamped progress message.
type LogEntryView struct {
	At      string `json:"at"`
	Message string `json:"message"`
}

// ResultView carries the terminal payload of a finished task.
type ResultView struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
	RewardCode  string `json:"rewardCode,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// SubjectPayload is the inline subject form accepted on submission. Field
// names mirror the flattened record keys used by workflow profiles.
type SubjectPayload struct {
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	BirthDate        string `json:"birthDate"`
	Email            string `json:"email"`
	Phone            string `json:"phoneNumber,omitempty"`
	OrganizationID   int64  `json:"organizationId,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
	DischargeDate    string `json:"dischargeDate,omitempty"`
	StatusCode       string `json:"status,omitempty"`
	Country          string `json:"country,omitempty"`
	Locale           string `json:"locale,omitempty"`
}

// SubmitRequest starts a verification task. Exactly one of Subject or
// UseStoredSubject must be provided; the verification identifier may arrive
// either directly or embedded in a verification URL.
type SubmitRequest struct {
	Profile          string          `json:"profile"`
	VerificationURL  string          `json:"verificationUrl,omitempty"`
	VerificationID   string          `json:"verificationId,omitempty"`
	UseStoredSubject bool            `json:"useStoredSubject,omitempty"`
	Subject          *SubjectPayload `json:"subject,omitempty"`
}

// CancelRequest carries an optional operator-supplied cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task TaskView `json:"task"`
}

// TaskListResponse wraps a task listing.
type TaskListResponse struct {
	Tasks []TaskView `json:"tasks"`
}

// EventsResponse is one long-poll page of task snapshots. Cursor feeds the
// next request's since parameter; Done reports that the terminal snapshot
// has been delivered.
type EventsResponse struct {
	Snapshots []TaskView `json:"snapshots"`
	Cursor    uint64     `json:"cursor"`
	Done      bool       `json:"done"`
}

// OutcomeView is the wire representation of one persisted terminal outcome.
type OutcomeView struct {
	TaskID         string      `json:"taskId"`
	Profile        string      `json:"profile"`
	Status         string      `json:"status"`
	VerificationID string      `json:"verificationId,omitempty"`
	Result         *ResultView `json:"result,omitempty"`
	StepIndex      int         `json:"stepIndex"`
	TotalSteps     int         `json:"totalSteps"`
	CreatedAt      string      `json:"createdAt"`
	FinishedAt     string      `json:"finishedAt"`
}

// OutcomeListResponse wraps an outcome history listing.
type OutcomeListResponse struct {
	Outcomes []OutcomeView `json:"outcomes"`
}

// ProfileView describes one loaded workflow profile.
type ProfileView struct {
	Name       string   `json:"name"`
	EntryStep  string   `json:"entryStep"`
	StepNames  []string `json:"stepNames"`
	PathLength int      `json:"pathLength"`
}

// ProfileListResponse wraps the loaded profile listing.
type ProfileListResponse struct {
	Profiles []ProfileView `json:"profiles"`
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running      bool     `json:"running"`
	PID          int      `json:"pid"`
	StorePath    string   `json:"storePath"`
	LockFilePath string   `json:"lockFilePath"`
	ActiveTasks  int      `json:"activeTasks"`
	Profiles     []string `json:"profiles"`
}

// LogStreamResponse is one page of daemon log events. Next feeds the since
// parameter of the following request.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// NotificationTestResponse reports the result of a test notification.
type NotificationTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ErrorResponse is the uniform error body for non-2xx answers.
type ErrorResponse struct {
	Error string `json:"error"`
}
