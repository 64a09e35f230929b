package storage

import (
	"encoding/json"

	"github.com/Prakash8999/focusboard-pro/domain"
)

// Entity carries the base table keys. Tasks, topics and learning topics are
// all partitioned by owner id with the document id as row key.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

const (
	EdmInt64   = "Edm.Int64"
	EdmBoolean = "Edm.Boolean"
)

type taskEntity struct {
	Entity
	Title           string `json:"Title"`
	Description     string `json:"Description,omitempty"`
	Status          string `json:"Status"`
	BlockedReason   string `json:"BlockedReason,omitempty"`
	CompletedAt     int64  `json:"CompletedAt,string"`
	CompletedAtType string `json:"CompletedAt@odata.type"`
	LinkedTopicID   string `json:"LinkedTopicId,omitempty"`
	CreatedAt       int64  `json:"CreatedAt,string"`
	CreatedAtType   string `json:"CreatedAt@odata.type"`
	UpdatedAt       int64  `json:"UpdatedAt,string"`
	UpdatedAtType   string `json:"UpdatedAt@odata.type"`
}

// taskUpdate carries a partial merge; nil fields are left untouched by the
// table service, non-nil zero values overwrite (used to clear blockedReason
// and completedAt on transitions away from blocked/done).
type taskUpdate struct {
	Entity
	Title           *string `json:"Title,omitempty"`
	Description     *string `json:"Description,omitempty"`
	Status          *string `json:"Status,omitempty"`
	BlockedReason   *string `json:"BlockedReason,omitempty"`
	CompletedAt     *int64  `json:"CompletedAt,omitempty,string"`
	CompletedAtType *string `json:"CompletedAt@odata.type,omitempty"`
	LinkedTopicID   *string `json:"LinkedTopicId,omitempty"`
	UpdatedAt       *int64  `json:"UpdatedAt,omitempty,string"`
	UpdatedAtType   *string `json:"UpdatedAt@odata.type,omitempty"`
}

type topicEntity struct {
	Entity
	Title         string `json:"Title"`
	Content       string `json:"Content,omitempty"`
	Images        string `json:"Images,omitempty"`
	LinkedTaskIDs string `json:"LinkedTaskIds,omitempty"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type learningTopicEntity struct {
	Entity
	Title           string `json:"Title"`
	Completed       bool   `json:"Completed"`
	CompletedType   string `json:"Completed@odata.type"`
	CreatedAt       int64  `json:"CreatedAt,string"`
	CreatedAtType   string `json:"CreatedAt@odata.type"`
	CompletedAt     int64  `json:"CompletedAt,string"`
	CompletedAtType string `json:"CompletedAt@odata.type"`
}

func newTaskEntity(t domain.Task) taskEntity {
	return taskEntity{
		Entity:          Entity{PartitionKey: t.OwnerID, RowKey: t.ID},
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(t.Status),
		BlockedReason:   t.BlockedReason,
		CompletedAt:     t.CompletedAt,
		CompletedAtType: EdmInt64,
		LinkedTopicID:   t.LinkedTopicID,
		CreatedAt:       t.CreatedAt,
		CreatedAtType:   EdmInt64,
		UpdatedAt:       t.UpdatedAt,
		UpdatedAtType:   EdmInt64,
	}
}

func (e taskEntity) toDomain() domain.Task {
	return domain.Task{
		ID:            e.RowKey,
		OwnerID:       e.PartitionKey,
		Title:         e.Title,
		Description:   e.Description,
		Status:        domain.Status(e.Status),
		BlockedReason: e.BlockedReason,
		CompletedAt:   e.CompletedAt,
		LinkedTopicID: e.LinkedTopicID,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func newTopicEntity(t domain.Topic) (topicEntity, error) {
	images, err := encodeStrings(t.Images)
	if err != nil {
		return topicEntity{}, err
	}
	linked, err := encodeStrings(t.LinkedTaskIDs)
	if err != nil {
		return topicEntity{}, err
	}
	return topicEntity{
		Entity:        Entity{PartitionKey: t.OwnerID, RowKey: t.ID},
		Title:         t.Title,
		Content:       t.Content,
		Images:        images,
		LinkedTaskIDs: linked,
		CreatedAt:     t.CreatedAt,
		CreatedAtType: EdmInt64,
		UpdatedAt:     t.UpdatedAt,
		UpdatedAtType: EdmInt64,
	}, nil
}

func (e topicEntity) toDomain() (domain.Topic, error) {
	images, err := decodeStrings(e.Images)
	if err != nil {
		return domain.Topic{}, err
	}
	linked, err := decodeStrings(e.LinkedTaskIDs)
	if err != nil {
		return domain.Topic{}, err
	}
	return domain.Topic{
		ID:            e.RowKey,
		OwnerID:       e.PartitionKey,
		Title:         e.Title,
		Content:       e.Content,
		Images:        images,
		LinkedTaskIDs: linked,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}, nil
}

func newLearningTopicEntity(t domain.LearningTopic) learningTopicEntity {
	return learningTopicEntity{
		Entity:          Entity{PartitionKey: t.OwnerID, RowKey: t.ID},
		Title:           t.Title,
		Completed:       t.Completed,
		CompletedType:   EdmBoolean,
		CreatedAt:       t.CreatedAt,
		CreatedAtType:   EdmInt64,
		CompletedAt:     t.CompletedAt,
		CompletedAtType: EdmInt64,
	}
}

func (e learningTopicEntity) toDomain() domain.LearningTopic {
	return domain.LearningTopic{
		ID:          e.RowKey,
		OwnerID:     e.PartitionKey,
		Title:       e.Title,
		Completed:   e.Completed,
		CreatedAt:   e.CreatedAt,
		CompletedAt: e.CompletedAt,
	}
}

func encodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	data, err := json.Marshal(values)
	return string(data), err
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}
