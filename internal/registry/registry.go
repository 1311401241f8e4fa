package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"veriflow/internal/progress"
	"veriflow/internal/task"
)

// Registry is the concurrency-safe store of in-flight and completed
// verification tasks. The registry map is guarded by a read-write lock held
// only for lookups; each task carries its own mutex, so updates to different
// tasks never serialize on each other while readers of a single task never
// observe a half-applied mutation.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*entry
	hub   *progress.Hub
}

type entry struct {
	mu   sync.Mutex
	task *task.Task
}

// Filter narrows List results.
type Filter struct {
	Statuses []task.Status
	Profile  string
}

// New constructs an empty registry. Snapshots of every committed mutation are
// published to hub when one is supplied.
func New(hub *progress.Hub) *Registry {
	return &Registry{tasks: make(map[string]*entry), hub: hub}
}

// Create allocates a new pending task and returns its first snapshot.
func (r *Registry) Create(profile string, totalSteps int) *task.Task {
	now := time.Now().UTC()
	t := &task.Task{
		ID:         uuid.NewString(),
		Profile:    profile,
		Status:     task.StatusPending,
		TotalSteps: totalSteps,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	r.mu.Lock()
	r.tasks[t.ID] = &entry{task: t}
	r.mu.Unlock()

	snap := t.Clone()
	r.hub.Publish(snap)
	return snap.Clone()
}

// Get returns a snapshot of the task, or false when unknown.
func (r *Registry) Get(id string) (*task.Task, bool) {
	e := r.lookup(id)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), true
}

// Update applies fn to the task under its exclusive lock and returns the
// resulting snapshot. When the task is already terminal the mutation is not
// applied and the current snapshot is returned unchanged, so late-arriving
// updates from an overrun step cannot resurrect a finished task. The second
// return is false only when the task is unknown.
func (r *Registry) Update(id string, fn func(*task.Task)) (*task.Task, bool) {
	e := r.lookup(id)
	if e == nil {
		return nil, false
	}

	e.mu.Lock()
	if e.task.IsTerminal() {
		snap := e.task.Clone()
		e.mu.Unlock()
		return snap, true
	}
	fn(e.task)
	e.task.UpdatedAt = time.Now().UTC()
	snap := e.task.Clone()
	e.mu.Unlock()

	r.hub.Publish(snap)
	return snap.Clone(), true
}

// List returns snapshots matching the filter, ordered by creation time.
func (r *Registry) List(filter Filter) []*task.Task {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.tasks))
	for _, e := range r.tasks {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	statusSet := make(map[task.Status]struct{}, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statusSet[s] = struct{}{}
	}

	out := make([]*task.Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snap := e.task.Clone()
		e.mu.Unlock()

		if len(statusSet) > 0 {
			if _, ok := statusSet[snap.Status]; !ok {
				continue
			}
		}
		if filter.Profile != "" && snap.Profile != filter.Profile {
			continue
		}
		out = append(out, snap)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[id]
}
