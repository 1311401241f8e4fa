package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"veriflow/internal/logging"
	"veriflow/internal/progress"
	"veriflow/internal/registry"
	"veriflow/internal/services"
	"veriflow/internal/services/sheerid"
	"veriflow/internal/store"
	"veriflow/internal/subject"
	"veriflow/internal/task"
	"veriflow/internal/workflow"
)

// ErrInvalidRequest marks submissions the caller must correct before
// retrying. HTTP handlers map it to a 400 response.
var ErrInvalidRequest = errors.New("invalid request")

// TaskStarter launches and cancels workflow tasks. *workflow.Runner
// implements it.
type TaskStarter interface {
	Start(def *workflow.Definition, rec subject.Record, verificationID string) (*task.Task, error)
	Cancel(taskID, reason string) bool
}

// SubjectSource hands out unused roster entries. *store.Store implements it.
type SubjectSource interface {
	NextUnusedSubject(ctx context.Context, profile string) (*store.StoredSubject, error)
}

// SubjectBinder associates a task with the roster entry it consumed so the
// entry can be retired when the task succeeds.
type SubjectBinder interface {
	BindSubject(taskID string, subjectID int64)
}

// OutcomeReader serves persisted terminal outcomes. *store.Store implements
// it.
type OutcomeReader interface {
	GetOutcome(ctx context.Context, taskID string) (*store.Outcome, error)
	ListOutcomes(ctx context.Context, filter store.OutcomeFilter) ([]*store.Outcome, error)
}

// ServiceOptions wires the service's collaborators. Registry, Runner, and
// Hub are required; the rest degrade gracefully when absent.
type ServiceOptions struct {
	Registry *registry.Registry
	Runner   TaskStarter
	Hub      *progress.Hub
	Profiles map[string]*workflow.Definition
	Subjects SubjectSource
	Outcomes OutcomeReader
	Binder   SubjectBinder
	Logger   *slog.Logger
}

// Service implements the operations behind the HTTP API. It owns no state of
// its own; every call delegates to the registry, runner, hub, or store.
type Service struct {
	registry *registry.Registry
	runner   TaskStarter
	hub      *progress.Hub
	profiles map[string]*workflow.Definition
	subjects SubjectSource
	outcomes OutcomeReader
	binder   SubjectBinder
	logger   *slog.Logger
}

// NewService constructs the API service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Registry == nil {
		return nil, errors.New("api service requires a registry")
	}
	if opts.Runner == nil {
		return nil, errors.New("api service requires a task starter")
	}
	if opts.Hub == nil {
		return nil, errors.New("api service requires a progress hub")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = make(map[string]*workflow.Definition)
	}
	return &Service{
		registry: opts.Registry,
		runner:   opts.Runner,
		hub:      opts.Hub,
		profiles: profiles,
		subjects: opts.Subjects,
		outcomes: opts.Outcomes,
		binder:   opts.Binder,
		logger:   logger,
	}, nil
}

// Submit validates the request, resolves the subject, and launches a task.
// The returned view is the task's initial pending snapshot.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (TaskView, error) {
	profile := strings.TrimSpace(req.Profile)
	if profile == "" {
		return TaskView{}, fmt.Errorf("%w: profile is required", ErrInvalidRequest)
	}
	def, ok := s.profiles[profile]
	if !ok {
		return TaskView{}, fmt.Errorf("%w: unknown profile %q", services.ErrNotFound, profile)
	}

	verificationID := strings.TrimSpace(req.VerificationID)
	if verificationID == "" {
		if url := strings.TrimSpace(req.VerificationURL); url != "" {
			id, found := sheerid.ParseVerificationID(url)
			if !found {
				return TaskView{}, fmt.Errorf("%w: verification url carries no verification id", ErrInvalidRequest)
			}
			verificationID = id
		}
	}

	var rec subject.Record
	var storedID int64
	switch {
	case req.Subject != nil && req.UseStoredSubject:
		return TaskView{}, fmt.Errorf("%w: provide an inline subject or useStoredSubject, not both", ErrInvalidRequest)
	case req.Subject != nil:
		rec = req.Subject.Record()
	case req.UseStoredSubject:
		if s.subjects == nil {
			return TaskView{}, fmt.Errorf("%w: no subject roster configured", ErrInvalidRequest)
		}
		stored, err := s.subjects.NextUnusedSubject(ctx, profile)
		if err != nil {
			return TaskView{}, fmt.Errorf("next unused subject: %w", err)
		}
		if stored == nil {
			return TaskView{}, fmt.Errorf("%w: subject roster exhausted for profile %q", services.ErrNotFound, profile)
		}
		rec = stored.Record
		storedID = stored.ID
	default:
		return TaskView{}, fmt.Errorf("%w: subject is required", ErrInvalidRequest)
	}

	snapshot, err := s.runner.Start(def, rec, verificationID)
	if err != nil {
		return TaskView{}, err
	}
	if storedID > 0 && s.binder != nil {
		s.binder.BindSubject(snapshot.ID, storedID)
	}

	s.logger.Info("task submitted",
		logging.String(logging.FieldTaskID, snapshot.ID),
		logging.String(logging.FieldProfile, profile),
	)
	return FromTask(snapshot), nil
}

// List returns tasks known to the in-memory registry, oldest first.
func (s *Service) List(filter registry.Filter) TaskListResponse {
	return TaskListResponse{Tasks: FromTasks(s.registry.List(filter))}
}

// Describe returns one task. Tasks absent from the registry fall back to the
// persisted outcome so finished work stays addressable across restarts.
func (s *Service) Describe(ctx context.Context, taskID string) (TaskView, error) {
	if snapshot, ok := s.registry.Get(taskID); ok {
		return FromTask(snapshot), nil
	}
	if s.outcomes != nil {
		outcome, err := s.outcomes.GetOutcome(ctx, taskID)
		if err != nil {
			return TaskView{}, fmt.Errorf("get outcome: %w", err)
		}
		if outcome != nil {
			return taskFromOutcome(outcome), nil
		}
	}
	return TaskView{}, fmt.Errorf("%w: task %s", services.ErrNotFound, taskID)
}

// Cancel requests cooperative cancellation. Cancelling an already-settled
// task is a no-op, not an error.
func (s *Service) Cancel(ctx context.Context, taskID, reason string) error {
	if s.runner.Cancel(taskID, reason) {
		return nil
	}
	if snapshot, ok := s.registry.Get(taskID); ok && snapshot.IsTerminal() {
		return nil
	}
	if s.outcomes != nil {
		outcome, err := s.outcomes.GetOutcome(ctx, taskID)
		if err == nil && outcome != nil {
			return nil
		}
	}
	return fmt.Errorf("%w: task %s", services.ErrNotFound, taskID)
}

// Events returns task snapshots published after the since cursor, blocking
// when wait is set and nothing is pending yet.
func (s *Service) Events(ctx context.Context, taskID string, since uint64, wait bool) (EventsResponse, error) {
	snaps, cursor, done, err := s.hub.Fetch(ctx, taskID, since, wait)
	if err != nil {
		return EventsResponse{}, err
	}
	if len(snaps) == 0 && cursor == since && !done {
		// The hub has no stream for this task: either it never existed or
		// the daemon restarted since it finished.
		if _, ok := s.registry.Get(taskID); !ok {
			if s.outcomes != nil {
				outcome, getErr := s.outcomes.GetOutcome(ctx, taskID)
				if getErr == nil && outcome != nil {
					resp := EventsResponse{Snapshots: []TaskView{}, Cursor: since, Done: true}
					if since == 0 {
						resp.Snapshots = append(resp.Snapshots, taskFromOutcome(outcome))
						resp.Cursor = 1
					}
					return resp, nil
				}
			}
			return EventsResponse{}, fmt.Errorf("%w: task %s", services.ErrNotFound, taskID)
		}
	}
	return EventsResponse{
		Snapshots: FromTasks(snaps),
		Cursor:    cursor,
		Done:      done,
	}, nil
}

// Profiles lists the loaded workflow profiles, sorted by name.
func (s *Service) Profiles() ProfileListResponse {
	views := make([]ProfileView, 0, len(s.profiles))
	for _, def := range s.profiles {
		views = append(views, FromDefinition(def))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return ProfileListResponse{Profiles: views}
}

// History lists persisted outcomes, most recently finished first.
func (s *Service) History(ctx context.Context, filter store.OutcomeFilter) (OutcomeListResponse, error) {
	if s.outcomes == nil {
		return OutcomeListResponse{Outcomes: []OutcomeView{}}, nil
	}
	outcomes, err := s.outcomes.ListOutcomes(ctx, filter)
	if err != nil {
		return OutcomeListResponse{}, fmt.Errorf("list outcomes: %w", err)
	}
	return OutcomeListResponse{Outcomes: FromOutcomes(outcomes)}, nil
}
