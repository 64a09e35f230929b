package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/Prakash8999/focusboard-pro/domain"
)

// Azure Table transactions are capped at 100 operations per batch.
const maxBatchSize = 100

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	taskTable     *aztables.Client
	topicTable    *aztables.Client
	learningTable *aztables.Client
	eventQueue    *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, topicsTable, learningTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:     svc.NewClient(tasksTable),
		topicTable:    svc.NewClient(topicsTable),
		learningTable: svc.NewClient(learningTable),
		eventQueue:    eq,
	}, nil
}

// ListTasks retrieves all tasks for the provided owner in store order.
func (s *Storage) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.toDomain())
		}
	}
	return tasks, nil
}

// GetTask retrieves one task; domain.ErrNotFound when it does not exist.
func (s *Storage) GetTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, ownerID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.toDomain(), nil
}

// InsertTask persists a newly created task.
func (s *Storage) InsertTask(ctx context.Context, task domain.Task) error {
	payload, err := json.Marshal(newTaskEntity(task))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// UpdateTaskFields merges title/description edits into an existing task.
func (s *Storage) UpdateTaskFields(ctx context.Context, ownerID, id string, title, description *string, updatedAt int64) error {
	upd := taskUpdate{Entity: Entity{PartitionKey: ownerID, RowKey: id}, Title: title, Description: description}
	setUpdatedAt(&upd, updatedAt)
	return s.mergeTask(ctx, upd)
}

// ApplyStatus persists an approved status transition. Cleared derived fields
// are written explicitly so stale blockedReason/completedAt values cannot
// survive the transition.
func (s *Storage) ApplyStatus(ctx context.Context, ownerID, id string, change domain.StatusUpdate) error {
	status := string(change.Status)
	upd := taskUpdate{
		Entity:        Entity{PartitionKey: ownerID, RowKey: id},
		Status:        &status,
		BlockedReason: &change.BlockedReason,
		CompletedAt:   &change.CompletedAt,
	}
	t := EdmInt64
	upd.CompletedAtType = &t
	setUpdatedAt(&upd, change.UpdatedAt)
	return s.mergeTask(ctx, upd)
}

// LinkTopic sets (or clears, with an empty topicID) the task's topic
// back-reference.
func (s *Storage) LinkTopic(ctx context.Context, ownerID, taskID, topicID string, updatedAt int64) error {
	upd := taskUpdate{Entity: Entity{PartitionKey: ownerID, RowKey: taskID}, LinkedTopicID: &topicID}
	setUpdatedAt(&upd, updatedAt)
	return s.mergeTask(ctx, upd)
}

// DeleteTask removes a single task.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, ownerID, id, nil)
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

// DeleteTasks removes the given tasks as one table transaction: the batch is
// applied atomically or not at all.
func (s *Storage) DeleteTasks(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > maxBatchSize {
		return domain.ValidationError{Field: "ids", Reason: fmt.Sprintf("at most %d tasks can be deleted per request", maxBatchSize)}
	}
	actions := make([]aztables.TransactionAction, 0, len(ids))
	for _, id := range ids {
		payload, err := json.Marshal(Entity{PartitionKey: ownerID, RowKey: id})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeDelete,
			Entity:     payload,
		})
	}
	_, err := s.taskTable.SubmitTransaction(ctx, actions, nil)
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

// ListTopics retrieves all study topics for the owner.
func (s *Storage) ListTopics(ctx context.Context, ownerID string) ([]domain.Topic, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.topicTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	topics := []domain.Topic{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent topicEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			topic, err := ent.toDomain()
			if err != nil {
				return nil, err
			}
			topics = append(topics, topic)
		}
	}
	return topics, nil
}

// GetTopic retrieves one topic; domain.ErrNotFound when it does not exist.
func (s *Storage) GetTopic(ctx context.Context, ownerID, id string) (domain.Topic, error) {
	resp, err := s.topicTable.GetEntity(ctx, ownerID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Topic{}, domain.ErrNotFound
		}
		return domain.Topic{}, err
	}
	var ent topicEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Topic{}, err
	}
	return ent.toDomain()
}

// UpsertTopic creates or replaces a study topic document.
func (s *Storage) UpsertTopic(ctx context.Context, topic domain.Topic) error {
	ent, err := newTopicEntity(topic)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.topicTable.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// DeleteTopic removes a study topic.
func (s *Storage) DeleteTopic(ctx context.Context, ownerID, id string) error {
	_, err := s.topicTable.DeleteEntity(ctx, ownerID, id, nil)
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

// ListLearningTopics retrieves the owner's learning checklist.
func (s *Storage) ListLearningTopics(ctx context.Context, ownerID string) ([]domain.LearningTopic, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.learningTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	topics := []domain.LearningTopic{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent learningTopicEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			topics = append(topics, ent.toDomain())
		}
	}
	return topics, nil
}

// InsertLearningTopics persists one or more checklist entries; multiple
// entries go through a single table transaction so a bulk add is atomic.
func (s *Storage) InsertLearningTopics(ctx context.Context, topics []domain.LearningTopic) error {
	if len(topics) == 0 {
		return nil
	}
	if len(topics) == 1 {
		payload, err := json.Marshal(newLearningTopicEntity(topics[0]))
		if err != nil {
			return err
		}
		_, err = s.learningTable.AddEntity(ctx, payload, nil)
		return err
	}
	if len(topics) > maxBatchSize {
		return fmt.Errorf("bulk add of %d topics exceeds the %d entity transaction limit", len(topics), maxBatchSize)
	}
	actions := make([]aztables.TransactionAction, 0, len(topics))
	for _, topic := range topics {
		payload, err := json.Marshal(newLearningTopicEntity(topic))
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeAdd,
			Entity:     payload,
		})
	}
	_, err := s.learningTable.SubmitTransaction(ctx, actions, nil)
	return err
}

// SetLearningTopicCompleted toggles a checklist entry, stamping or clearing
// completedAt to match.
func (s *Storage) SetLearningTopicCompleted(ctx context.Context, ownerID, id string, completed bool, completedAt int64) error {
	boolType := EdmBoolean
	intType := EdmInt64
	upd := struct {
		Entity
		Completed       bool   `json:"Completed"`
		CompletedType   string `json:"Completed@odata.type"`
		CompletedAt     int64  `json:"CompletedAt,string"`
		CompletedAtType string `json:"CompletedAt@odata.type"`
	}{
		Entity:          Entity{PartitionKey: ownerID, RowKey: id},
		Completed:       completed,
		CompletedType:   boolType,
		CompletedAt:     completedAt,
		CompletedAtType: intType,
	}
	payload, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.learningTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

// DeleteLearningTopic removes a checklist entry.
func (s *Storage) DeleteLearningTopic(ctx context.Context, ownerID, id string) error {
	_, err := s.learningTable.DeleteEntity(ctx, ownerID, id, nil)
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

// EnqueueEvents sends change events to the events queue for downstream
// consumers.
func (s *Storage) EnqueueEvents(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := s.eventQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) mergeTask(ctx context.Context, upd taskUpdate) error {
	payload, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

func setUpdatedAt(upd *taskUpdate, updatedAt int64) {
	if updatedAt == 0 {
		return
	}
	t := EdmInt64
	upd.UpdatedAt = &updatedAt
	upd.UpdatedAtType = &t
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
