// watch_registry.go tracks the completion polls currently running in this
// process.
//
// Task state itself lives in the agent service. The registry only records
// which task IDs a tool call is waiting on, so check_connection can report
// them and concurrent waits on the same task are visible in logs. Entries
// are ephemeral: added when a poll starts, removed on every exit path.
package main

import (
	"sync"
	"time"
)

// Watch is one in-flight poll.
type Watch struct {
	TaskID     string
	StartedAt  time.Time
	LastStatus Status
	LastPollAt time.Time
	Polls      int
}

// WatchSummary counts in-flight polls by the last status they observed.
type WatchSummary struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Attention int `json:"attention"`
	Other     int `json:"other"`
}

// WatchRegistry holds in-flight polls, protected by a mutex. Entries are
// stored in a map for lookup and a slice to keep start order for stable
// listings. Multiple watches on the same task ID are tracked separately.
type WatchRegistry struct {
	mu      sync.Mutex
	watches map[uint64]*Watch
	order   []uint64
	nextID  uint64
}

// NewWatchRegistry creates an empty registry.
func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{
		watches: make(map[uint64]*Watch),
	}
}

// Start registers a poll and returns a handle for Update and Done. A nil
// registry is valid and records nothing.
func (r *WatchRegistry) Start(taskID string, now time.Time) uint64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.watches[id] = &Watch{TaskID: taskID, StartedAt: now, LastStatus: StatusSubmitted}
	r.order = append(r.order, id)
	return id
}

// Update records the status observed by the latest poll.
func (r *WatchRegistry) Update(handle uint64, status Status, now time.Time) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.watches[handle]; ok {
		w.LastStatus = status
		w.LastPollAt = now
		w.Polls++
	}
}

// Done removes the poll. Safe to call more than once.
func (r *WatchRegistry) Done(handle uint64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watches[handle]; !ok {
		return
	}
	delete(r.watches, handle)
	for i, id := range r.order {
		if id == handle {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// List returns copies of all in-flight polls in start order.
func (r *WatchRegistry) List() []Watch {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Watch, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.watches[id])
	}
	return out
}

// Summary counts in-flight polls. The lock is held for the whole pass so
// the counts are consistent with each other.
func (r *WatchRegistry) Summary() WatchSummary {
	var s WatchSummary
	if r == nil {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		w := r.watches[id]
		s.Total++
		switch {
		case w.LastStatus.IsRunning():
			s.Running++
		case w.LastStatus.NeedsAttention():
			s.Attention++
		default:
			s.Other++
		}
	}
	return s
}
