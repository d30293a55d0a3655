package scheduler

import "testing"

// TestParsePriority verifies name-to-weight mapping and the medium fallback.
func TestParsePriority(t *testing.T) {
	tests := []struct {
		name string
		want Priority
	}{
		{"urgent", PriorityUrgent},
		{"high", PriorityHigh},
		{"medium", PriorityMedium},
		{"low", PriorityLow},
		{"", PriorityMedium},
		{"critical", PriorityMedium},
	}

	for _, tt := range tests {
		t.Run("parse "+tt.name, func(t *testing.T) {
			if got := ParsePriority(tt.name); got != tt.want {
				t.Errorf("ParsePriority(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// TestPriorityRoundTrip verifies String and ParsePriority agree.
func TestPriorityRoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent} {
		if got := ParsePriority(p.String()); got != p {
			t.Errorf("ParsePriority(%q) = %v, want %v", p.String(), got, p)
		}
	}
}

// TestStatusString verifies the names used in events and logs.
func TestStatusString(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   string
	}{
		{TaskQueued, "queued"},
		{TaskProcessing, "processing"},
		{TaskCompleted, "completed"},
		{TaskFailed, "failed"},
		{TaskStatus(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("TaskStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

// TestCloneTaskIndependence verifies clones share no slices with the original.
func TestCloneTaskIndependence(t *testing.T) {
	original := &Task{
		ID:           "A",
		Priority:     PriorityHigh,
		Resources:    []string{"web"},
		Dependencies: []string{"B"},
	}

	cp := cloneTask(original)
	cp.Resources[0] = "changed"
	cp.Dependencies[0] = "changed"

	if original.Resources[0] != "web" {
		t.Error("clone shares Resources slice with original")
	}
	if original.Dependencies[0] != "B" {
		t.Error("clone shares Dependencies slice with original")
	}

	if cloneTask(nil) != nil {
		t.Error("cloneTask(nil) should be nil")
	}
}
