package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Prakash8999/focusboard-pro/domain"
)

const requestBodyMaxSize = 256 * 1024 // 256 KiB

// Deps bundles the collaborators the API handlers depend on.
type Deps struct {
	Store     Storage
	Auth      Authenticator
	Deduper   Deduper
	Locker    Locker
	Notifier  Notifier
	Uploader  Uploader
	Assistant Assistant
	Broker    *Broker
	Logger    *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", healthz(d.Store))

	e.GET("/api/tasks", getTasks(d.Store, d.Auth))
	e.GET("/api/board", getBoard(d.Store, d.Auth, d.Logger))
	e.POST("/api/tasks", createTask(d))
	e.PATCH("/api/tasks/:id", updateTask(d))
	e.POST("/api/tasks/:id/status", changeStatus(d))
	e.PATCH("/api/tasks/:id/topic", linkTopic(d))
	e.DELETE("/api/tasks/:id", deleteTask(d))
	e.POST("/api/tasks/delete", bulkDeleteTasks(d))

	e.GET("/api/topics", getTopics(d.Store, d.Auth))
	e.PUT("/api/topics/:id", upsertTopic(d))
	e.DELETE("/api/topics/:id", deleteTopic(d))

	e.GET("/api/learning-topics", getLearningTopics(d.Store, d.Auth))
	e.POST("/api/learning-topics", addLearningTopics(d))
	e.POST("/api/learning-topics/:id/toggle", toggleLearningTopic(d))
	e.DELETE("/api/learning-topics/:id", deleteLearningTopic(d))

	e.POST("/api/images", uploadImage(d.Uploader, d.Auth))
	e.POST("/api/assistant", assistantChat(d.Assistant, d.Auth))

	if d.Broker != nil {
		e.GET("/api/stream", streamBoard(d))
	}
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tasks, err := store.ListTasks(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func getBoard(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		ref := time.Time{}
		if raw := strings.TrimSpace(c.QueryParam("date")); raw != "" {
			parsed, parseErr := time.Parse("2006-01-02", raw)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_date")
				err = jsonError(c, http.StatusBadRequest, "validation", domain.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"})
				return err
			}
			ref = parsed
			metrics.SetDateFiltered(true)
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx, userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = writeError(c, fetchErr)
			return err
		}

		board := domain.Project(tasks, ref, time.Now().UTC())
		metrics.SetTasksReturned(board.Todo.Count + board.InProgress.Count + board.Blocked.Count + board.Done.Count)
		err = c.JSON(http.StatusOK, board)
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func createTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", err)
		}
		if strings.TrimSpace(req.Title) == "" {
			return writeError(c, domain.ValidationError{Field: "title", Reason: "must not be empty"})
		}

		idemKey := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
		if idemKey != "" && d.Deduper != nil {
			added, err := d.Deduper.Add(ctx, userID, idemKey)
			if err != nil {
				return writeError(c, err)
			}
			if !added {
				return jsonError(c, http.StatusConflict, "duplicate", errDuplicateRequest)
			}
		}

		now := time.Now().UnixMilli()
		task := domain.Task{
			ID:          newID(),
			OwnerID:     userID,
			Title:       strings.TrimSpace(req.Title),
			Description: req.Description,
			Status:      domain.StatusTodo,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := d.Store.InsertTask(ctx, task); err != nil {
			if idemKey != "" && d.Deduper != nil {
				_ = d.Deduper.Remove(ctx, userID, idemKey)
			}
			return writeError(c, err)
		}

		notify(c, d, userID, newEvent(userID, "task", task.ID, domain.TaskCreated, task))
		return c.JSON(http.StatusCreated, task)
	}
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func updateTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", err)
		}
		if req.Title == nil && req.Description == nil {
			return writeError(c, domain.ValidationError{Field: "body", Reason: "nothing to update"})
		}
		if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
			return writeError(c, domain.ValidationError{Field: "title", Reason: "must not be empty"})
		}

		if _, err := d.Store.GetTask(ctx, userID, id); err != nil {
			return writeError(c, err)
		}
		if err := d.Store.UpdateTaskFields(ctx, userID, id, req.Title, req.Description, time.Now().UnixMilli()); err != nil {
			return writeError(c, err)
		}
		task, err := d.Store.GetTask(ctx, userID, id)
		if err != nil {
			return writeError(c, err)
		}

		notify(c, d, userID, newEvent(userID, "task", id, domain.TaskUpdated, task))
		return c.JSON(http.StatusOK, task)
	}
}

type changeStatusRequest struct {
	Status        domain.Status `json:"status"`
	BlockedReason string        `json:"blockedReason"`
}

func changeStatus(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		var req changeStatusRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", err)
		}

		if d.Locker != nil {
			unlock := d.Locker.Lock(ctx, userID)
			defer unlock()
		}

		task, err := d.Store.GetTask(ctx, userID, id)
		if err != nil {
			return writeError(c, err)
		}
		tasks, err := d.Store.ListTasks(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}
		inProgress := domain.CountInProgress(tasks, task.ID)

		now := time.Now()
		upd, pending, err := domain.Begin(task, req.Status, inProgress, now)
		if err != nil {
			return writeError(c, err)
		}
		if pending != nil {
			// Blocked entry is two-phase: without a reason the transition
			// stays suspended and the client re-submits with one.
			upd, err = pending.Resolve(task, req.BlockedReason, now)
			if err != nil {
				return writeError(c, err)
			}
		}
		if upd.NoOp {
			return c.JSON(http.StatusOK, task)
		}

		if err := d.Store.ApplyStatus(ctx, userID, id, upd); err != nil {
			return writeError(c, err)
		}

		task.Status = upd.Status
		task.BlockedReason = upd.BlockedReason
		task.CompletedAt = upd.CompletedAt
		task.UpdatedAt = upd.UpdatedAt

		notify(c, d, userID, newEvent(userID, "task", id, domain.TaskStatusChanged, task))
		return c.JSON(http.StatusOK, task)
	}
}

type linkTopicRequest struct {
	TopicID string `json:"topicId"`
}

func linkTopic(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		var req linkTopicRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", err)
		}

		current, err := d.Store.GetTask(ctx, userID, id)
		if err != nil {
			return writeError(c, err)
		}
		var target domain.Topic
		if req.TopicID != "" {
			if target, err = d.Store.GetTopic(ctx, userID, req.TopicID); err != nil {
				return writeError(c, err)
			}
		}
		now := time.Now().UnixMilli()
		if err := d.Store.LinkTopic(ctx, userID, id, req.TopicID, now); err != nil {
			return writeError(c, err)
		}

		// The link is two-sided: the topic's linkedTaskIds must track the
		// task's linkedTopicId.
		events := []domain.Event{}
		if prev := current.LinkedTopicID; prev != "" && prev != req.TopicID {
			if old, err := d.Store.GetTopic(ctx, userID, prev); err == nil {
				old.LinkedTaskIDs = removeString(old.LinkedTaskIDs, id)
				old.UpdatedAt = now
				if err := d.Store.UpsertTopic(ctx, old); err != nil {
					return writeError(c, err)
				}
				events = append(events, newEvent(userID, "topic", prev, domain.TopicUpserted, old))
			}
		}
		if req.TopicID != "" && req.TopicID != current.LinkedTopicID {
			target.LinkedTaskIDs = appendUnique(target.LinkedTaskIDs, id)
			target.UpdatedAt = now
			if err := d.Store.UpsertTopic(ctx, target); err != nil {
				return writeError(c, err)
			}
			events = append(events, newEvent(userID, "topic", req.TopicID, domain.TopicUpserted, target))
		}

		task, err := d.Store.GetTask(ctx, userID, id)
		if err != nil {
			return writeError(c, err)
		}

		events = append(events, newEvent(userID, "task", id, domain.TaskUpdated, task))
		notify(c, d, userID, events...)
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if !confirmed(c.QueryParam("confirm")) {
			return writeError(c, domain.ValidationError{Field: "confirm", Reason: "delete requires confirmation"})
		}
		id := c.Param("id")

		if _, err := d.Store.GetTask(ctx, userID, id); err != nil {
			return writeError(c, err)
		}
		if err := d.Store.DeleteTask(ctx, userID, id); err != nil {
			return writeError(c, err)
		}

		notify(c, d, userID, newEvent(userID, "task", id, domain.TaskDeleted, nil))
		return c.NoContent(http.StatusNoContent)
	}
}

type bulkDeleteRequest struct {
	IDs     []string `json:"ids"`
	Confirm bool     `json:"confirm"`
}

type bulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

func bulkDeleteTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req bulkDeleteRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", err)
		}
		if !req.Confirm {
			return writeError(c, domain.ValidationError{Field: "confirm", Reason: "delete requires confirmation"})
		}
		if len(req.IDs) == 0 {
			return writeError(c, domain.ValidationError{Field: "ids", Reason: "must not be empty"})
		}

		// Single batch: either every selected task is removed or none are.
		if err := d.Store.DeleteTasks(ctx, userID, req.IDs); err != nil {
			return writeError(c, err)
		}

		events := make([]domain.Event, 0, len(req.IDs))
		for _, id := range req.IDs {
			events = append(events, newEvent(userID, "task", id, domain.TaskDeleted, nil))
		}
		notify(c, d, userID, events...)
		return c.JSON(http.StatusOK, bulkDeleteResponse{Deleted: len(req.IDs)})
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := http.MaxBytesReader(c.Response(), c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func confirmed(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func notify(c echo.Context, d Deps, userID string, events ...domain.Event) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.BoardChanged(c.Request().Context(), userID, events)
}
