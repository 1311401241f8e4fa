package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"veriflow/internal/backoff"
	"veriflow/internal/logging"
	"veriflow/internal/notifications"
	"veriflow/internal/registry"
	"veriflow/internal/services"
	"veriflow/internal/subject"
	"veriflow/internal/task"
)

// Document is generated upload material for an upload_document step.
type Document struct {
	FileName    string
	ContentType string
	Bytes       []byte
}

// StepRequest carries everything a step client needs for one remote call.
type StepRequest struct {
	Name           string
	Kind           Kind
	VerificationID string
	Fields         map[string]string
	Document       *Document
}

// StepOutcome is the remote's answer to one step call.
type StepOutcome struct {
	NextStepName   string
	ServerStatus   string
	SubmissionURL  string
	RedirectURL    string
	RewardCode     string
	VerificationID string
	RawFields      map[string]any
}

// StepClient performs exactly one outbound call per invocation. Retry policy
// lives in the runner so attempts land in the task log.
type StepClient interface {
	ExecuteStep(ctx context.Context, req StepRequest) (*StepOutcome, error)
}

// DocumentProvider supplies generated document bytes for upload steps.
type DocumentProvider interface {
	Generate(ctx context.Context, templateKey string, fields map[string]string) (*Document, error)
}

// OutcomeRecorder persists terminal snapshots. Called once per task, only at
// the terminal transition.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, snapshot *task.Task) error
}

// RunnerOptions wires the runner's collaborators.
type RunnerOptions struct {
	Registry  *registry.Registry
	Client    StepClient
	Documents DocumentProvider
	Outcomes  OutcomeRecorder
	Notifier  notifications.Service
	Strategy  backoff.Strategy

	// MaxAttempts bounds transport retries per step; delays come from
	// Strategy. StepTimeout caps each remote call.
	MaxAttempts int
	StepTimeout time.Duration
	Logger      *slog.Logger
}

// Runner executes workflow definitions, one goroutine per task. All step
// errors become task-state transitions; nothing escapes the run loop.
type Runner struct {
	registry    *registry.Registry
	client      StepClient
	documents   DocumentProvider
	outcomes    OutcomeRecorder
	notifier    notifications.Service
	strategy    backoff.Strategy
	maxAttempts int
	stepTimeout time.Duration
	logger      *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelCauseFunc

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
	wg      sync.WaitGroup
}

type cancelCause struct {
	reason string
}

func (c *cancelCause) Error() string { return c.reason }

// NewRunner constructs a runner. Registry and Client are required; the rest
// default to inert implementations.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Registry == nil {
		return nil, errors.New("workflow runner requires a registry")
	}
	if opts.Client == nil {
		return nil, errors.New("workflow runner requires a step client")
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	stepTimeout := opts.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = 45 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	rootCtx, rootCancel := context.WithCancelCause(context.Background())
	return &Runner{
		registry:    opts.Registry,
		client:      opts.Client,
		documents:   opts.Documents,
		outcomes:    opts.Outcomes,
		notifier:    opts.Notifier,
		strategy:    strategy,
		maxAttempts: maxAttempts,
		stepTimeout: stepTimeout,
		logger:      logger,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		cancels:     make(map[string]context.CancelCauseFunc),
	}, nil
}

// Start creates a task for the subject and launches its worker. The
// verification ID is the remote correlation identifier parsed from the
// caller's verification URL. The returned snapshot is the task's initial
// pending state. Definition problems surface here; everything after this
// point surfaces through task state.
func (r *Runner) Start(def *Definition, rec subject.Record, verificationID string) (*task.Task, error) {
	if def == nil {
		return nil, services.Wrap(services.ErrDefinition, "", "start", "nil workflow definition", nil)
	}
	if err := r.rootCtx.Err(); err != nil {
		return nil, errors.New("workflow runner is stopped")
	}

	rec = rec.Normalize()
	snapshot := r.registry.Create(def.Profile, def.PathLength(def.Entry))
	if verificationID = strings.TrimSpace(verificationID); verificationID != "" {
		snapshot, _ = r.registry.Update(snapshot.ID, func(t *task.Task) {
			t.VerificationID = verificationID
		})
	}

	taskCtx, cancel := context.WithCancelCause(r.rootCtx)
	r.mu.Lock()
	r.cancels[snapshot.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.cancels, snapshot.ID)
			r.mu.Unlock()
			cancel(nil)
		}()
		r.run(taskCtx, def, snapshot.ID, rec)
	}()

	return snapshot, nil
}

// Cancel requests cooperative cancellation of a running task. The task
// reaches cancelled at the next step boundary; an in-flight remote call runs
// to completion or its own timeout first. Returns false for unknown or
// already-settled tasks.
func (r *Runner) Cancel(taskID, reason string) bool {
	if strings.TrimSpace(reason) == "" {
		reason = task.UserCancelReason
	}
	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel(&cancelCause{reason: reason})
	return true
}

// Stop cancels every in-flight task with the daemon-stop reason and waits
// for their workers to settle.
func (r *Runner) Stop() {
	r.rootCancel(&cancelCause{reason: task.DaemonStopReason})
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, def *Definition, taskID string, rec subject.Record) {
	logger := r.logger.With(
		logging.String(logging.FieldTaskID, taskID),
		logging.String(logging.FieldProfile, def.Profile),
	)

	fields := rec.Fields()
	current := def.EntryStep()

	r.registry.Update(taskID, func(t *task.Task) {
		t.Status = task.StatusRunning
		t.CurrentAction = current.Action
	})
	if r.notifier != nil {
		if snapshot, ok := r.registry.Get(taskID); ok {
			if err := r.notifier.NotifyTaskStarted(ctx, snapshot); err != nil {
				logger.Debug("start notification failed", logging.Error(err))
			}
		}
	}

	if problems := rec.Validate(); len(problems) > 0 {
		detail := "subject record invalid: " + strings.Join(problems, "; ")
		logger.Error("subject validation failed",
			logging.String("problems", strings.Join(problems, "; ")),
			logging.String(logging.FieldEventType, "subject_invalid"),
		)
		r.finish(ctx, logger, taskID, task.StatusFailed, task.Result{Detail: detail}, "Verification failed: invalid subject record")
		return
	}

	for {
		if err := ctx.Err(); err != nil {
			r.finishCancelled(ctx, logger, taskID)
			return
		}

		stepLogger := logger.With(logging.String(logging.FieldStep, current.Name))
		if missing := rec.RequireFields(current.RequiredFields); len(missing) > 0 {
			err := services.Wrap(services.ErrProtocol, current.Name, "validate", "missing required fields: "+strings.Join(missing, ", "), nil)
			r.finishFailure(ctx, stepLogger, taskID, err)
			return
		}

		r.registry.Update(taskID, func(t *task.Task) {
			t.CurrentAction = current.Action
		})

		req := StepRequest{
			Name:   current.Name,
			Kind:   current.Kind,
			Fields: fields,
		}
		if snapshot, ok := r.registry.Get(taskID); ok {
			req.VerificationID = snapshot.VerificationID
		}
		if current.Kind == KindUploadDocument {
			doc, err := r.generateDocument(ctx, current, fields)
			if err != nil {
				r.finishFailure(ctx, stepLogger, taskID, err)
				return
			}
			req.Document = doc
		}

		outcome, err := r.executeWithRetry(ctx, stepLogger, taskID, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				r.finishCancelled(ctx, logger, taskID)
				return
			}
			r.finishFailure(ctx, stepLogger, taskID, err)
			return
		}

		next, resolveErr := r.resolveNext(def, current, outcome)
		if resolveErr != nil {
			r.finishFailure(ctx, stepLogger, taskID, resolveErr)
			return
		}

		completed := 0
		r.registry.Update(taskID, func(t *task.Task) {
			t.CurrentStepIndex++
			completed = t.CurrentStepIndex
			t.AppendLog(fmt.Sprintf("Step %s complete", current.Name))
			if outcome.VerificationID != "" {
				t.VerificationID = outcome.VerificationID
			}
			if next != nil {
				if total := completed + def.PathLength(next.Name); total != t.TotalSteps {
					t.TotalSteps = total
				}
			}
		})
		stepLogger.Info("step complete",
			logging.Int("step_index", completed),
			logging.String("server_status", outcome.ServerStatus),
			logging.String(logging.FieldEventType, "step_complete"),
		)

		if next == nil {
			status := task.StatusApproved
			message := "Verification approved"
			if current.Outcome == OutcomePendingReview {
				status = task.StatusPendingReview
				message = "Verification submitted for review"
			}
			result := task.Result{
				RedirectURL: outcome.RedirectURL,
				RewardCode:  outcome.RewardCode,
			}
			r.finish(ctx, logger, taskID, status, result, message)
			return
		}
		current = next
	}
}

func (r *Runner) generateDocument(ctx context.Context, step *StepSpec, fields map[string]string) (*Document, error) {
	if r.documents == nil {
		return nil, services.Wrap(services.ErrProtocol, step.Name, "generate", "no document provider configured", nil)
	}
	doc, err := r.documents.Generate(ctx, step.Template, fields)
	if err != nil {
		if errors.Is(err, services.ErrProtocol) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrProtocol, step.Name, "generate", "document generation failed", err)
	}
	return doc, nil
}

// executeWithRetry drives the bounded retry loop for one step. Only transport
// failures retry; each failed attempt lands in the task log. The remote call
// itself is shielded from task cancellation so a step, once issued, runs to
// completion or its own timeout.
func (r *Runner) executeWithRetry(ctx context.Context, logger *slog.Logger, taskID string, req StepRequest) (*StepOutcome, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, context.Canceled
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.stepTimeout)
		callCtx = services.WithRequestID(services.WithStep(services.WithTaskID(callCtx, taskID), req.Name), uuid.NewString())
		outcome, err := r.client.ExecuteStep(callCtx, req)
		cancel()

		if err == nil {
			if outcome == nil {
				return nil, services.Wrap(services.ErrProtocol, req.Name, "execute", "step client returned no outcome", nil)
			}
			return outcome, nil
		}
		if !errors.Is(err, services.ErrTransport) {
			return nil, err
		}

		lastErr = err
		r.registry.Update(taskID, func(t *task.Task) {
			t.AppendLog(fmt.Sprintf("Step %s attempt %d/%d failed: %s", req.Name, attempt, r.maxAttempts, err))
		})
		logger.Warn("step attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.maxAttempts),
			logging.Error(err),
			logging.String(logging.FieldEventType, "step_retry"),
		)

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, context.Canceled
		case <-time.After(r.strategy.Delay(attempt)):
		}
	}
	return nil, lastErr
}

// resolveNext picks the step after current. Branch steps follow the remote's
// reported status; everything else follows list order. A terminal step has
// no successor.
func (r *Runner) resolveNext(def *Definition, current *StepSpec, outcome *StepOutcome) (*StepSpec, error) {
	if current.Terminal {
		return nil, nil
	}
	if current.Kind == KindBranchOnStatus {
		status := outcome.ServerStatus
		if status == "" {
			status = outcome.NextStepName
		}
		target, ok := current.NextOnStatus[status]
		if !ok {
			return nil, services.Wrap(services.ErrProtocol, current.Name, "branch",
				fmt.Sprintf("remote reported unmapped step %q", status), nil)
		}
		next, _ := def.Step(target)
		return next, nil
	}
	return def.Sequential(current.Name), nil
}

func (r *Runner) finishFailure(ctx context.Context, logger *slog.Logger, taskID string, err error) {
	status := services.FailureStatus(err)
	result := task.Result{}
	message := ""
	switch status {
	case task.StatusRejected:
		result.Reason = services.RejectionReason(err)
		message = "Verification rejected: " + result.Reason
		logger.Info("verification rejected",
			logging.String("reason", result.Reason),
			logging.String(logging.FieldEventType, "task_rejected"),
		)
	default:
		result.Detail = err.Error()
		message = "Verification failed"
		logger.Error("step failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_failed"),
		)
	}
	r.finish(ctx, logger, taskID, status, result, message)
}

func (r *Runner) finishCancelled(ctx context.Context, logger *slog.Logger, taskID string) {
	reason := task.UserCancelReason
	var cause *cancelCause
	if errors.As(context.Cause(ctx), &cause) && cause.reason != "" {
		reason = cause.reason
	}
	logger.Info("task cancelled",
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "task_cancelled"),
	)
	r.finish(ctx, logger, taskID, task.StatusCancelled, task.Result{Reason: reason}, "Cancelled: "+reason)
}

// finish records the terminal transition, persists the outcome, and notifies.
// Persistence and notification run outside the task lock and after the
// terminal snapshot is already visible to subscribers.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, taskID string, status task.Status, result task.Result, message string) {
	snapshot, ok := r.registry.Update(taskID, func(t *task.Task) {
		t.CurrentAction = ""
		t.AppendLog(message)
		t.SetResult(status, result)
	})
	if !ok {
		return
	}
	logger.Info("task finished",
		logging.String("status", string(status)),
		logging.String(logging.FieldEventType, "task_finished"),
	)

	// Shield cleanup from the task's own cancellation.
	tail := context.WithoutCancel(ctx)
	if r.outcomes != nil {
		if err := r.outcomes.RecordOutcome(tail, snapshot); err != nil {
			logger.Error("failed to persist outcome", logging.Error(err))
		}
	}
	if r.notifier != nil {
		if err := r.notifier.NotifyTaskFinished(tail, snapshot); err != nil {
			logger.Debug("finish notification failed", logging.Error(err))
		}
	}
}
