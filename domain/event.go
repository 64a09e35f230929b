package domain

import "encoding/json"

const (
	TaskCreated          = "task-created"
	TaskUpdated          = "task-updated"
	TaskStatusChanged    = "task-status-changed"
	TaskDeleted          = "task-deleted"
	TopicUpserted        = "topic-upserted"
	TopicDeleted         = "topic-deleted"
	LearningTopicAdded   = "learning-topic-added"
	LearningTopicToggled = "learning-topic-toggled"
	LearningTopicDeleted = "learning-topic-deleted"
)

// Event records a change to the owner's data, enqueued for downstream
// consumers after the write has been applied.
type Event struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Time       int64           `json:"time"`
	UserID     string          `json:"userId"`
}
