package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Prakash8999/focusboard-pro/domain"
)

type topicsResponse struct {
	Topics []domain.Topic `json:"topics"`
}

func getTopics(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		topics, err := store.ListTopics(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, topicsResponse{Topics: topics})
	}
}

type upsertTopicRequest struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Images        []string `json:"images"`
	LinkedTaskIDs []string `json:"linkedTaskIds"`
}

func upsertTopic(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		var req upsertTopicRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", err)
		}
		if strings.TrimSpace(req.Title) == "" {
			return writeError(c, domain.ValidationError{Field: "title", Reason: "must not be empty"})
		}

		now := time.Now().UnixMilli()
		topic := domain.Topic{
			ID:            id,
			OwnerID:       userID,
			Title:         strings.TrimSpace(req.Title),
			Content:       req.Content,
			Images:        req.Images,
			LinkedTaskIDs: req.LinkedTaskIDs,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		// Preserve the original creation stamp when the document already exists.
		if existing, err := d.Store.GetTopic(ctx, userID, id); err == nil {
			topic.CreatedAt = existing.CreatedAt
		}

		if err := d.Store.UpsertTopic(ctx, topic); err != nil {
			return writeError(c, err)
		}

		notify(c, d, userID, newEvent(userID, "topic", id, domain.TopicUpserted, topic))
		return c.JSON(http.StatusOK, topic)
	}
}

func deleteTopic(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		if err := d.Store.DeleteTopic(ctx, userID, id); err != nil {
			return writeError(c, err)
		}

		notify(c, d, userID, newEvent(userID, "topic", id, domain.TopicDeleted, nil))
		return c.NoContent(http.StatusNoContent)
	}
}

type learningTopicsResponse struct {
	Topics    []domain.LearningTopic `json:"topics"`
	Completed int                    `json:"completed"`
	Total     int                    `json:"total"`
}

func getLearningTopics(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		topics, err := store.ListLearningTopics(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}
		domain.SortLearningTopics(topics)
		completed := 0
		for _, t := range topics {
			if t.Completed {
				completed++
			}
		}
		return c.JSON(http.StatusOK, learningTopicsResponse{Topics: topics, Completed: completed, Total: len(topics)})
	}
}

type addLearningTopicsRequest struct {
	Title  string   `json:"title"`
	Titles []string `json:"titles"`
}

func addLearningTopics(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req addLearningTopicsRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", err)
		}

		titles := req.Titles
		if req.Title != "" {
			titles = append([]string{req.Title}, titles...)
		}
		cleaned := make([]string, 0, len(titles))
		for _, t := range titles {
			if t = strings.TrimSpace(t); t != "" {
				cleaned = append(cleaned, t)
			}
		}
		if len(cleaned) == 0 {
			return writeError(c, domain.ValidationError{Field: "title", Reason: "must not be empty"})
		}

		now := time.Now().UnixMilli()
		topics := make([]domain.LearningTopic, 0, len(cleaned))
		events := make([]domain.Event, 0, len(cleaned))
		for _, title := range cleaned {
			topic := domain.LearningTopic{
				ID:        newID(),
				OwnerID:   userID,
				Title:     title,
				CreatedAt: now,
			}
			topics = append(topics, topic)
			events = append(events, newEvent(userID, "learning-topic", topic.ID, domain.LearningTopicAdded, topic))
		}

		if err := d.Store.InsertLearningTopics(ctx, topics); err != nil {
			return writeError(c, err)
		}

		notify(c, d, userID, events...)
		return c.JSON(http.StatusCreated, learningTopicsResponse{Topics: topics, Total: len(topics)})
	}
}

func toggleLearningTopic(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		topics, err := d.Store.ListLearningTopics(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}
		var current *domain.LearningTopic
		for i := range topics {
			if topics[i].ID == id {
				current = &topics[i]
				break
			}
		}
		if current == nil {
			return writeError(c, domain.ErrNotFound)
		}

		completed := !current.Completed
		completedAt := int64(0)
		if completed {
			completedAt = time.Now().UnixMilli()
		}
		if err := d.Store.SetLearningTopicCompleted(ctx, userID, id, completed, completedAt); err != nil {
			return writeError(c, err)
		}

		current.Completed = completed
		current.CompletedAt = completedAt
		notify(c, d, userID, newEvent(userID, "learning-topic", id, domain.LearningTopicToggled, current))
		return c.JSON(http.StatusOK, current)
	}
}

func deleteLearningTopic(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		if err := d.Store.DeleteLearningTopic(ctx, userID, id); err != nil {
			return writeError(c, err)
		}

		notify(c, d, userID, newEvent(userID, "learning-topic", id, domain.LearningTopicDeleted, nil))
		return c.NoContent(http.StatusNoContent)
	}
}
