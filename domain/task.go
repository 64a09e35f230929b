package domain

// Status is the lifecycle state of a board task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// Statuses lists the board columns in display order.
var Statuses = [4]Status{StatusTodo, StatusInProgress, StatusBlocked, StatusDone}

// Valid reports whether s is one of the four board states.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// Task represents a single board item.
type Task struct {
	ID            string `json:"id"`
	OwnerID       string `json:"-"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Status        Status `json:"status"`
	BlockedReason string `json:"blockedReason,omitempty"`
	CompletedAt   int64  `json:"completedAt,omitempty"`
	LinkedTopicID string `json:"linkedTopicId,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}
