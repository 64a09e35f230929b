package domain

import "sort"

// Topic is a study note with rich content and image attachments.
type Topic struct {
	ID            string   `json:"id"`
	OwnerID       string   `json:"-"`
	Title         string   `json:"title"`
	Content       string   `json:"content,omitempty"`
	Images        []string `json:"images,omitempty"`
	LinkedTaskIDs []string `json:"linkedTaskIds,omitempty"`
	CreatedAt     int64    `json:"createdAt"`
	UpdatedAt     int64    `json:"updatedAt"`
}

// LearningTopic is one checklist entry of the learning tracker.
type LearningTopic struct {
	ID          string `json:"id"`
	OwnerID     string `json:"-"`
	Title       string `json:"title"`
	Completed   bool   `json:"completed"`
	CreatedAt   int64  `json:"createdAt"`
	CompletedAt int64  `json:"completedAt,omitempty"`
}

// SortLearningTopics orders the checklist for display: incomplete entries
// first, newest first within each group. The sort is stable so entries
// created at the same instant keep store order.
func SortLearningTopics(topics []LearningTopic) {
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Completed != topics[j].Completed {
			return !topics[i].Completed
		}
		return topics[i].CreatedAt > topics[j].CreatedAt
	})
}
