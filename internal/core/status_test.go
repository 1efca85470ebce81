package core

import "testing"

func TestReviewStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from ReviewStatus
		to   ReviewStatus
		want bool
	}{
		{"pending to in_progress", StatusPending, StatusInProgress, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to completed skips in_progress", StatusPending, StatusCompleted, false},
		{"in_progress to completed", StatusInProgress, StatusCompleted, true},
		{"in_progress to failed", StatusInProgress, StatusFailed, true},
		{"in_progress to cancelled", StatusInProgress, StatusCancelled, true},
		{"completed is terminal", StatusCompleted, StatusCancelled, false},
		{"failed is terminal", StatusFailed, StatusInProgress, false},
		{"cancelled is terminal", StatusCancelled, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestReviewStatusIsTerminal(t *testing.T) {
	terminal := []ReviewStatus{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []ReviewStatus{StatusPending, StatusInProgress} {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestReviewStatusValid(t *testing.T) {
	for _, s := range []ReviewStatus{StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ReviewStatus("archived").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}
