package api

import (
	"context"
	"encoding/json"

	"github.com/Prakash8999/focusboard-pro/domain"
)

// TaskStore abstracts task persistence for handlers.
type TaskStore interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (domain.Task, error)
	InsertTask(ctx context.Context, task domain.Task) error
	UpdateTaskFields(ctx context.Context, ownerID, id string, title, description *string, updatedAt int64) error
	ApplyStatus(ctx context.Context, ownerID, id string, change domain.StatusUpdate) error
	LinkTopic(ctx context.Context, ownerID, taskID, topicID string, updatedAt int64) error
	DeleteTask(ctx context.Context, ownerID, id string) error
	DeleteTasks(ctx context.Context, ownerID string, ids []string) error
}

// TopicStore abstracts study-topic persistence.
type TopicStore interface {
	ListTopics(ctx context.Context, ownerID string) ([]domain.Topic, error)
	GetTopic(ctx context.Context, ownerID, id string) (domain.Topic, error)
	UpsertTopic(ctx context.Context, topic domain.Topic) error
	DeleteTopic(ctx context.Context, ownerID, id string) error
}

// LearningStore abstracts the learning checklist.
type LearningStore interface {
	ListLearningTopics(ctx context.Context, ownerID string) ([]domain.LearningTopic, error)
	InsertLearningTopics(ctx context.Context, topics []domain.LearningTopic) error
	SetLearningTopicCompleted(ctx context.Context, ownerID, id string, completed bool, completedAt int64) error
	DeleteLearningTopic(ctx context.Context, ownerID, id string) error
}

// EventSink receives change events after a write has been applied.
type EventSink interface {
	EnqueueEvents(ctx context.Context, events []domain.Event) error
}

// Storage is the full persistence surface the API depends on.
type Storage interface {
	TaskStore
	TopicStore
	LearningStore
	EventSink
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the write fails.
	Remove(ctx context.Context, userID, key string) error
}

// Locker serializes status transitions per owner. Lock returns a release
// function; implementations may degrade to a no-op when the lock backend is
// unavailable.
type Locker interface {
	Lock(ctx context.Context, ownerID string) func()
}

// Notifier fans a board change out to stream subscribers and downstream
// consumers. Implementations are best-effort and must not fail the request.
type Notifier interface {
	BoardChanged(ctx context.Context, userID string, events []domain.Event)
}

// Uploader forwards a validated image to the hosting endpoint and returns its
// durable URL.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, size int64, data []byte) (string, error)
}

// Assistant generates text (or a JSON document) for a prompt.
type Assistant interface {
	Chat(ctx context.Context, prompt string) (string, error)
	ChatJSON(ctx context.Context, prompt string) (json.RawMessage, error)
}
