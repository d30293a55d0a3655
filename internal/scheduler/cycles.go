package scheduler

import (
	"sort"

	"github.com/gammazero/toposort"
)

// DetectDeadlock looks for dependency cycles among queued tasks. Tasks that
// wait on each other, directly or through intermediaries, can never be
// admitted; this returns their IDs in sorted order so the caller can
// intervene. Read-only: the backlog is left untouched, and Submit still
// never fails. Returns nil when the backlog is cycle-free.
func (s *Scheduler) DetectDeadlock() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := make(map[string]*Task, len(s.backlog))
	for _, task := range s.backlog {
		queued[task.ID] = task
	}

	// Only edges between queued tasks can deadlock; dependencies that are
	// in flight or already terminal resolve on their own.
	var edges []toposort.Edge
	for id, task := range queued {
		hasQueuedDep := false
		for _, depID := range task.Dependencies {
			if _, ok := queued[depID]; ok {
				edges = append(edges, toposort.Edge{depID, id})
				hasQueuedDep = true
			}
		}
		if !hasQueuedDep {
			// Edge from nil ensures free-standing tasks stay in the sort
			edges = append(edges, toposort.Edge{nil, id})
		}
	}

	if _, err := toposort.Toposort(edges); err == nil {
		return nil
	}

	return cycleMembers(queued)
}

// cycleMembers isolates the tasks wedged in dependency cycles. It repeatedly
// peels tasks that cannot be stuck: those with no remaining queued dependency,
// and those no remaining task depends on. What survives lies on a cycle (or on
// a dependency path between two cycles, equally unresolvable).
func cycleMembers(queued map[string]*Task) []string {
	dependents := make(map[string][]string)
	for id, task := range queued {
		for _, depID := range task.Dependencies {
			if _, ok := queued[depID]; ok {
				dependents[depID] = append(dependents[depID], id)
			}
		}
	}

	remaining := make(map[string]bool, len(queued))
	for id := range queued {
		remaining[id] = true
	}

	for changed := true; changed; {
		changed = false
		for id := range remaining {
			blockedOnDep := false
			for _, depID := range queued[id].Dependencies {
				if remaining[depID] {
					blockedOnDep = true
					break
				}
			}
			blocksDependent := false
			for _, depID := range dependents[id] {
				if remaining[depID] {
					blocksDependent = true
					break
				}
			}
			if !blockedOnDep || !blocksDependent {
				delete(remaining, id)
				changed = true
			}
		}
	}

	cycle := make([]string, 0, len(remaining))
	for id := range remaining {
		cycle = append(cycle, id)
	}
	sort.Strings(cycle)
	return cycle
}
