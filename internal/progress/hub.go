package progress

import (
	"context"
	"sync"

	"veriflow/internal/task"
)

// Hub fans task snapshots out to subscribers. Publishing never blocks on
// slow or absent consumers: snapshots accumulate in a per-task buffer and
// each subscriber drains at its own pace. A task produces a bounded number
// of snapshots (one per committed registry update), so buffers stay small
// and are never truncated — every subscriber observes every transition in
// write order.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	mu    sync.Mutex
	cond  *sync.Cond
	snaps []*task.Task
	done  bool
}

// NewHub constructs an empty snapshot hub.
func NewHub() *Hub {
	return &Hub{streams: make(map[string]*stream)}
}

// Publish appends a snapshot for the task. Snapshots arriving after the
// terminal one are dropped, mirroring the registry's terminal no-op rule.
func (h *Hub) Publish(snap *task.Task) {
	if h == nil || snap == nil {
		return
	}
	s := h.streamFor(snap.ID, true)

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.snaps = append(s.snaps, snap)
	if snap.IsTerminal() {
		s.done = true
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Subscribe returns a channel of snapshots for the task, beginning with the
// current snapshot (not history) and ending after the terminal snapshot or
// when ctx is cancelled. The second return is false when the task is unknown.
func (h *Hub) Subscribe(ctx context.Context, taskID string) (<-chan *task.Task, bool) {
	s := h.streamFor(taskID, false)
	if s == nil {
		return nil, false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	out := make(chan *task.Task)

	s.mu.Lock()
	cursor := len(s.snaps)
	if cursor > 0 {
		cursor--
	}
	s.mu.Unlock()

	stop := make(chan struct{})
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-stop:
			}
		}()
	}

	go func() {
		defer close(out)
		defer close(stop)
		for {
			s.mu.Lock()
			for cursor >= len(s.snaps) && !s.done && ctxAlive(ctx) {
				s.cond.Wait()
			}
			if !ctxAlive(ctx) {
				s.mu.Unlock()
				return
			}
			if cursor >= len(s.snaps) {
				// done with no pending snapshots left to deliver
				s.mu.Unlock()
				return
			}
			snap := s.snaps[cursor]
			cursor++
			s.mu.Unlock()

			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, true
}

// Fetch returns snapshots with sequence greater than since (1-indexed in
// publish order) for HTTP long-polling. When wait is true and nothing is
// pending, Fetch blocks until a snapshot arrives, the task finishes, or ctx
// ends. The returned cursor feeds the next call; done reports whether the
// terminal snapshot has been delivered at or before the cursor.
func (h *Hub) Fetch(ctx context.Context, taskID string, since uint64, wait bool) ([]*task.Task, uint64, bool, error) {
	s := h.streamFor(taskID, false)
	if s == nil {
		return nil, since, false, nil
	}

	stop := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-stop:
			}
		}()
	}
	defer close(stop)

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if uint64(len(s.snaps)) > since {
			out := make([]*task.Task, len(s.snaps)-int(since))
			copy(out, s.snaps[since:])
			next := uint64(len(s.snaps))
			return out, next, s.done, ctxErr(ctx)
		}
		if s.done || !wait {
			return nil, since, s.done, ctxErr(ctx)
		}
		if err := ctxErr(ctx); err != nil {
			return nil, since, false, err
		}
		s.cond.Wait()
		if err := ctxErr(ctx); err != nil {
			return nil, since, false, err
		}
	}
}

// Forget drops the buffered history for a task. Call after the terminal
// snapshot is persisted and no new subscribers are expected.
func (h *Hub) Forget(taskID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	delete(h.streams, taskID)
	h.mu.Unlock()
}

func (h *Hub) streamFor(taskID string, create bool) *stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.streams[taskID]
	if s == nil && create {
		s = &stream{}
		s.cond = sync.NewCond(&s.mu)
		h.streams[taskID] = s
	}
	return s
}

func ctxAlive(ctx context.Context) bool {
	return ctx == nil || ctx.Err() == nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
