package daemon

import (
	"context"
	"sync"

	"log/slog"

	"veriflow/internal/logging"
	"veriflow/internal/store"
	"veriflow/internal/task"
)

// outcomeSink persists terminal snapshots and retires the roster entry a
// task consumed. A subject submitted to the remote verifier is burned for
// any settled outcome except cancellation or an engine-side failure, where
// no submission completed.
type outcomeSink struct {
	store  *store.Store
	logger *slog.Logger

	mu       sync.Mutex
	subjects map[string]int64
}

func newOutcomeSink(st *store.Store, logger *slog.Logger) *outcomeSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &outcomeSink{
		store:    st,
		logger:   logger,
		subjects: make(map[string]int64),
	}
}

// BindSubject remembers which roster entry a task consumed.
func (s *outcomeSink) BindSubject(taskID string, subjectID int64) {
	s.mu.Lock()
	s.subjects[taskID] = subjectID
	s.mu.Unlock()
}

// RecordOutcome persists the terminal snapshot and marks the bound roster
// entry used when the subject reached the remote verifier.
func (s *outcomeSink) RecordOutcome(ctx context.Context, snapshot *task.Task) error {
	if err := s.store.RecordOutcome(ctx, snapshot); err != nil {
		return err
	}

	s.mu.Lock()
	subjectID, bound := s.subjects[snapshot.ID]
	delete(s.subjects, snapshot.ID)
	s.mu.Unlock()
	if !bound || !subjectBurned(snapshot.Status) {
		return nil
	}

	if err := s.store.MarkSubjectUsed(ctx, subjectID); err != nil {
		s.logger.Warn("failed to mark subject used",
			logging.String(logging.FieldTaskID, snapshot.ID),
			logging.Int64("subject_id", subjectID),
			logging.Error(err),
		)
	}
	return nil
}

func subjectBurned(status task.Status) bool {
	switch status {
	case task.StatusApproved, task.StatusPendingReview, task.StatusRejected:
		return true
	default:
		return false
	}
}
