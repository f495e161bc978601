package domain

import "strings"

type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusInProgress      Status = "in_progress"
	StatusFulfilled       Status = "fulfilled"
	StatusClosed          Status = "closed"
	// StatusDeleted is reached only through soft delete, never through a
	// status update.
	StatusDeleted Status = "deleted"
)

// Statuses lists the workflow statuses in display order.
var Statuses = []Status{
	StatusPendingApproval,
	StatusApproved,
	StatusRejected,
	StatusInProgress,
	StatusFulfilled,
	StatusClosed,
}

var transitions = map[Status][]Status{
	StatusPendingApproval: {StatusApproved, StatusRejected},
	StatusApproved:        {StatusInProgress, StatusClosed},
	StatusRejected:        {StatusClosed},
	StatusInProgress:      {StatusFulfilled, StatusClosed},
	StatusFulfilled:       {StatusClosed},
	StatusClosed:          {},
}

// Valid reports whether s may be requested through a status update.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// CanTransition reports whether from -> to follows the workflow. Keeping
// the current status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsApprovalState() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) IsWorkState() bool {
	return s == StatusInProgress || s == StatusFulfilled || s == StatusClosed
}

// Notifies reports whether entering s sends a status change notification.
func (s Status) Notifies() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusFulfilled
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority defaults an empty value to medium.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", ErrInvalidPriority
	}
}
