package scheduler

import "sort"

// lockTable records exclusive resource ownership for in-flight tasks.
// Each resource maps to the single task holding it; exactly the tasks in the
// in-flight set hold locks. The table is guarded by the Scheduler's mutex,
// never accessed directly by callers.
type lockTable map[string]string

// holder returns the task currently holding a resource, if any.
func (lt lockTable) holder(resource string) (string, bool) {
	taskID, held := lt[resource]
	return taskID, held
}

// available reports whether every given resource is free or already held by
// taskID itself.
func (lt lockTable) available(taskID string, resources []string) bool {
	for _, resource := range resources {
		if holder, held := lt[resource]; held && holder != taskID {
			return false
		}
	}
	return true
}

// acquire records taskID as the holder of every given resource.
// The caller must have checked availability first.
func (lt lockTable) acquire(taskID string, resources []string) {
	for _, resource := range resources {
		lt[resource] = taskID
	}
}

// releaseAll removes every lock held by taskID and returns the freed
// resources in sorted order. Releasing a task that holds nothing is a no-op.
func (lt lockTable) releaseAll(taskID string) []string {
	var freed []string
	for resource, holder := range lt {
		if holder == taskID {
			freed = append(freed, resource)
		}
	}
	for _, resource := range freed {
		delete(lt, resource)
	}
	sort.Strings(freed)
	return freed
}
