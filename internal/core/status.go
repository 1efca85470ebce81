package core

// ReviewStatus is the lifecycle state of a review.
type ReviewStatus string

const (
	StatusPending    ReviewStatus = "pending"
	StatusInProgress ReviewStatus = "in_progress"
	StatusCompleted  ReviewStatus = "completed"
	StatusFailed     ReviewStatus = "failed"
	StatusCancelled  ReviewStatus = "cancelled"
)

// transitions is the allowed state graph. Terminal states have no entry, so
// any write out of them is refused.
var transitions = map[ReviewStatus][]ReviewStatus{
	StatusPending:    {StatusInProgress, StatusFailed, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusCancelled},
}

// IsTerminal reports whether no further transition is expected from s.
func (s ReviewStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known lifecycle states.
func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is allowed by the
// transition table.
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
