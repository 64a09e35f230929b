package domain

import (
	"strings"
	"time"
)

// InProgressLimit caps simultaneous in-progress tasks per owner.
const InProgressLimit = 2

// StatusUpdate is the set of field changes approved for a status transition.
// Zero-valued BlockedReason and CompletedAt mean the stored fields are
// cleared, keeping them coupled to the blocked and done states.
type StatusUpdate struct {
	Status        Status
	BlockedReason string
	CompletedAt   int64
	UpdatedAt     int64
	NoOp          bool
}

// PendingTransition is a suspended transition into the blocked state. The
// caller obtained it without a reason and resolves it once the reason has
// been collected.
type PendingTransition struct {
	TaskID string
	Target Status
}

// Transition decides whether task may move to target and derives the field
// updates to persist. inProgress is the owner's current in-progress count,
// excluding the task itself. It performs no I/O.
func Transition(task Task, target Status, reason string, inProgress int, now time.Time) (StatusUpdate, error) {
	if !target.Valid() {
		return StatusUpdate{}, ValidationError{Field: "status", Reason: "unknown status " + string(target)}
	}
	if target == task.Status {
		return StatusUpdate{Status: target, NoOp: true}, nil
	}

	switch target {
	case StatusInProgress:
		if inProgress >= InProgressLimit {
			return StatusUpdate{}, ErrLimitExceeded
		}
	case StatusBlocked:
		if strings.TrimSpace(reason) == "" {
			return StatusUpdate{}, ErrMissingReason
		}
	}

	upd := StatusUpdate{Status: target, UpdatedAt: now.UnixMilli()}
	switch target {
	case StatusDone:
		upd.CompletedAt = now.UnixMilli()
	case StatusBlocked:
		upd.BlockedReason = strings.TrimSpace(reason)
	}
	return upd, nil
}

// Begin evaluates a transition request that may not yet carry a blocked
// reason. When the target is blocked and no reason is supplied, it suspends
// the transition and returns a PendingTransition instead of an error; every
// other case behaves exactly like Transition.
func Begin(task Task, target Status, inProgress int, now time.Time) (StatusUpdate, *PendingTransition, error) {
	if target == StatusBlocked && target != task.Status {
		return StatusUpdate{}, &PendingTransition{TaskID: task.ID, Target: target}, nil
	}
	upd, err := Transition(task, target, "", inProgress, now)
	return upd, nil, err
}

// Resolve completes a suspended blocked transition with the collected reason.
func (p PendingTransition) Resolve(task Task, reason string, now time.Time) (StatusUpdate, error) {
	return Transition(task, p.Target, reason, 0, now)
}

// CountInProgress returns how many of tasks are in progress, excluding the
// task with id excludeID.
func CountInProgress(tasks []Task, excludeID string) int {
	n := 0
	for _, t := range tasks {
		if t.ID != excludeID && t.Status == StatusInProgress {
			n++
		}
	}
	return n
}
