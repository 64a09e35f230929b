package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Prakash8999/focusboard-pro/domain"
)

type mockStore struct {
	mu sync.Mutex

	tasks    []domain.Task
	topics   []domain.Topic
	learning []domain.LearningTopic

	err       error
	insertErr error

	inserted      []domain.Task
	applied       map[string]domain.StatusUpdate
	updatedFields map[string][2]*string
	linked        map[string]string
	deleted       []string
	bulkDeleted   [][]string
	upserted      []domain.Topic
	learningAdded []domain.LearningTopic
	toggled       map[string]bool
	events        []domain.Event
}

func newMockStore() *mockStore {
	return &mockStore{
		applied:       map[string]domain.StatusUpdate{},
		updatedFields: map[string][2]*string{},
		linked:        map[string]string{},
		toggled:       map[string]bool{},
	}
}

func (m *mockStore) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks, m.err
}

func (m *mockStore) GetTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	if m.err != nil {
		return domain.Task{}, m.err
	}
	for _, t := range m.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, domain.ErrNotFound
}

func (m *mockStore) InsertTask(ctx context.Context, task domain.Task) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, task)
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockStore) UpdateTaskFields(ctx context.Context, ownerID, id string, title, description *string, updatedAt int64) error {
	if m.err != nil {
		return m.err
	}
	m.updatedFields[id] = [2]*string{title, description}
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			if title != nil {
				m.tasks[i].Title = *title
			}
			if description != nil {
				m.tasks[i].Description = *description
			}
			m.tasks[i].UpdatedAt = updatedAt
		}
	}
	return nil
}

func (m *mockStore) ApplyStatus(ctx context.Context, ownerID, id string, change domain.StatusUpdate) error {
	if m.err != nil {
		return m.err
	}
	m.applied[id] = change
	return nil
}

func (m *mockStore) LinkTopic(ctx context.Context, ownerID, taskID, topicID string, updatedAt int64) error {
	if m.err != nil {
		return m.err
	}
	m.linked[taskID] = topicID
	for i := range m.tasks {
		if m.tasks[i].ID == taskID {
			m.tasks[i].LinkedTopicID = topicID
			m.tasks[i].UpdatedAt = updatedAt
		}
	}
	return nil
}

func (m *mockStore) DeleteTask(ctx context.Context, ownerID, id string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStore) DeleteTasks(ctx context.Context, ownerID string, ids []string) error {
	if m.err != nil {
		return m.err
	}
	m.bulkDeleted = append(m.bulkDeleted, ids)
	return nil
}

func (m *mockStore) ListTopics(ctx context.Context, ownerID string) ([]domain.Topic, error) {
	return m.topics, m.err
}

func (m *mockStore) GetTopic(ctx context.Context, ownerID, id string) (domain.Topic, error) {
	for _, t := range m.topics {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Topic{}, domain.ErrNotFound
}

func (m *mockStore) UpsertTopic(ctx context.Context, topic domain.Topic) error {
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, topic)
	return nil
}

func (m *mockStore) DeleteTopic(ctx context.Context, ownerID, id string) error {
	return m.err
}

func (m *mockStore) ListLearningTopics(ctx context.Context, ownerID string) ([]domain.LearningTopic, error) {
	return m.learning, m.err
}

func (m *mockStore) InsertLearningTopics(ctx context.Context, topics []domain.LearningTopic) error {
	if m.err != nil {
		return m.err
	}
	m.learningAdded = append(m.learningAdded, topics...)
	return nil
}

func (m *mockStore) SetLearningTopicCompleted(ctx context.Context, ownerID, id string, completed bool, completedAt int64) error {
	if m.err != nil {
		return m.err
	}
	m.toggled[id] = completed
	return nil
}

func (m *mockStore) DeleteLearningTopic(ctx context.Context, ownerID, id string) error {
	return m.err
}

func (m *mockStore) EnqueueEvents(ctx context.Context, events []domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(string) (string, error) { return "user", nil }

type deniedAuth struct{}

func (deniedAuth) UserIDFromAuthHeader(string) (string, error) {
	return "", errors.New("missing authorization header")
}

type recordingNotifier struct {
	mu     sync.Mutex
	users  []string
	events []domain.Event
}

func (n *recordingNotifier) BoardChanged(ctx context.Context, userID string, events []domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	n.events = append(n.events, events...)
}

type mockDeduper struct {
	added   bool
	removed []string
	err     error
}

func (d *mockDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return d.added, d.err
}

func (d *mockDeduper) Remove(ctx context.Context, userID, key string) error {
	d.removed = append(d.removed, key)
	return nil
}

type countingLocker struct {
	locks    int
	releases int
}

func (l *countingLocker) Lock(ctx context.Context, ownerID string) func() {
	l.locks++
	return func() { l.releases++ }
}

func testDeps(store *mockStore) (Deps, *recordingNotifier) {
	notifier := &recordingNotifier{}
	return Deps{
		Store:    store,
		Auth:     mockAuth{},
		Notifier: notifier,
		Locker:   &countingLocker{},
		Logger:   log.New(),
	}, notifier
}

func newJSONContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestGetTasks(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "1", Title: "write tests", Status: domain.StatusTodo}}
	c, rec := newJSONContext(e, http.MethodGet, "/api/tasks", "")

	if err := getTasks(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "1" {
		t.Fatalf("unexpected tasks: %#v", resp.Tasks)
	}
}

func TestGetTasksUnauthorized(t *testing.T) {
	e := echo.New()
	c, rec := newJSONContext(e, http.MethodGet, "/api/tasks", "")

	if err := getTasks(newMockStore(), deniedAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestGetBoardGroupsByStatus(t *testing.T) {
	now := time.Now()
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{
		{ID: "1", Status: domain.StatusTodo},
		{ID: "2", Status: domain.StatusInProgress},
		{ID: "3", Status: domain.StatusBlocked, BlockedReason: "waiting on review"},
		{ID: "4", Status: domain.StatusDone, CompletedAt: now.UnixMilli()},
	}
	c, rec := newJSONContext(e, http.MethodGet, "/api/board", "")

	if err := getBoard(store, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var board domain.Board
	if err := sonic.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if board.Todo.Count != 1 || board.InProgress.Count != 1 || board.Blocked.Count != 1 || board.Done.Count != 1 {
		t.Fatalf("unexpected column counts: %#v", board)
	}
}

func TestGetBoardDateFilter(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{
		{ID: "old-done", Status: domain.StatusDone, CompletedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli()},
		{ID: "match-done", Status: domain.StatusDone, CompletedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).UnixMilli()},
	}
	c, rec := newJSONContext(e, http.MethodGet, "/api/board?date=2026-03-02", "")

	if err := getBoard(store, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var board domain.Board
	if err := sonic.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if board.Done.Count != 1 || board.Done.Tasks[0].ID != "match-done" {
		t.Fatalf("expected only the matching done task, got %#v", board.Done)
	}
}

func TestGetBoardInvalidDate(t *testing.T) {
	e := echo.New()
	c, rec := newJSONContext(e, http.MethodGet, "/api/board?date=tomorrow", "")

	if err := getBoard(newMockStore(), mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestCreateTask(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	d, notifier := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", `{"title":"  Learn goroutines  ","description":"channels next"}`)

	if err := createTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(store.inserted))
	}
	task := store.inserted[0]
	if task.Title != "Learn goroutines" {
		t.Fatalf("expected trimmed title, got %q", task.Title)
	}
	if task.Status != domain.StatusTodo {
		t.Fatalf("new tasks must start in todo, got %q", task.Status)
	}
	if task.OwnerID != "user" || task.ID == "" {
		t.Fatalf("unexpected identity fields: %#v", task)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != domain.TaskCreated {
		t.Fatalf("expected a TaskCreated notification, got %#v", notifier.events)
	}
}

func TestCreateTaskEmptyTitle(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", `{"title":"   "}`)

	if err := createTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("expected no insert, got %d", len(store.inserted))
	}
}

func TestCreateTaskDuplicateIdempotencyKey(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	d, _ := testDeps(store)
	d.Deduper = &mockDeduper{added: false}
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", `{"title":"once"}`)
	c.Request().Header.Set("Idempotency-Key", "abc")

	if err := createTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("duplicate request must not insert, got %d inserts", len(store.inserted))
	}
}

func TestCreateTaskReleasesKeyOnStoreFailure(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.insertErr = errors.New("table offline")
	deduper := &mockDeduper{added: true}
	d, _ := testDeps(store)
	d.Deduper = deduper
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", `{"title":"once"}`)
	c.Request().Header.Set("Idempotency-Key", "abc")

	if err := createTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
	if len(deduper.removed) != 1 || deduper.removed[0] != "abc" {
		t.Fatalf("expected the key to be released, got %#v", deduper.removed)
	}
}

func TestUpdateTask(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Title: "old", Status: domain.StatusTodo}}
	d, notifier := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1", `{"title":"new title"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := updateTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	fields, ok := store.updatedFields["t1"]
	if !ok || fields[0] == nil || *fields[0] != "new title" || fields[1] != nil {
		t.Fatalf("unexpected field update: %#v", fields)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != domain.TaskUpdated {
		t.Fatalf("expected a TaskUpdated notification, got %#v", notifier.events)
	}
}

func TestUpdateTaskNothingToUpdate(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := updateTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/missing", `{"title":"x"}`)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	if err := updateTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestChangeStatusToInProgress(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{
		{ID: "t1", OwnerID: "user", Status: domain.StatusTodo},
		{ID: "t2", OwnerID: "user", Status: domain.StatusInProgress},
	}
	locker := &countingLocker{}
	d, notifier := testDeps(store)
	d.Locker = locker
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/t1/status", `{"status":"in_progress"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := changeStatus(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	upd, ok := store.applied["t1"]
	if !ok || upd.Status != domain.StatusInProgress {
		t.Fatalf("unexpected applied change: %#v", upd)
	}
	if locker.locks != 1 || locker.releases != 1 {
		t.Fatalf("expected lock/release pair, got %d/%d", locker.locks, locker.releases)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != domain.TaskStatusChanged {
		t.Fatalf("expected a status change notification, got %#v", notifier.events)
	}
}

func TestChangeStatusInProgressLimit(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{
		{ID: "t1", OwnerID: "user", Status: domain.StatusTodo},
		{ID: "t2", OwnerID: "user", Status: domain.StatusInProgress},
		{ID: "t3", OwnerID: "user", Status: domain.StatusInProgress},
	}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/t1/status", `{"status":"in_progress"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := changeStatus(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
	if len(store.applied) != 0 {
		t.Fatalf("limit violation must not write, got %#v", store.applied)
	}
}

func TestChangeStatusMovingInProgressTaskIgnoresItself(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{
		{ID: "t1", OwnerID: "user", Status: domain.StatusInProgress},
		{ID: "t2", OwnerID: "user", Status: domain.StatusInProgress},
	}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/t1/status", `{"status":"done"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := changeStatus(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	upd := store.applied["t1"]
	if upd.Status != domain.StatusDone || upd.CompletedAt == 0 {
		t.Fatalf("expected done with completion stamp, got %#v", upd)
	}
}

func TestChangeStatusBlockedRequiresReason(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusInProgress}}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/t1/status", `{"status":"blocked"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := changeStatus(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if len(store.applied) != 0 {
		t.Fatalf("missing reason must not write, got %#v", store.applied)
	}
}

func TestChangeStatusBlockedWithReason(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusInProgress}}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/t1/status", `{"status":"blocked","blockedReason":"waiting on API keys"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := changeStatus(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	upd := store.applied["t1"]
	if upd.Status != domain.StatusBlocked || upd.BlockedReason != "waiting on API keys" {
		t.Fatalf("unexpected applied change: %#v", upd)
	}
}

func TestChangeStatusNoOpSkipsWrite(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusTodo}}
	d, notifier := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/t1/status", `{"status":"todo"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := changeStatus(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if len(store.applied) != 0 {
		t.Fatalf("no-op must not write, got %#v", store.applied)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("no-op must not notify, got %#v", notifier.events)
	}
}

func TestChangeStatusInvalidTarget(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusTodo}}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/t1/status", `{"status":"parked"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := changeStatus(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestLinkTopicValidatesTopic(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusTodo}}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1/topic", `{"topicId":"missing"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := linkTopic(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestLinkTopicUpdatesBothSides(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusTodo}}
	store.topics = []domain.Topic{{ID: "top1", OwnerID: "user", Title: "Goroutines"}}
	d, notifier := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1/topic", `{"topicId":"top1"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := linkTopic(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if store.linked["t1"] != "top1" {
		t.Fatalf("task side not linked: %#v", store.linked)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected the topic to be upserted, got %#v", store.upserted)
	}
	topic := store.upserted[0]
	if topic.ID != "top1" || len(topic.LinkedTaskIDs) != 1 || topic.LinkedTaskIDs[0] != "t1" {
		t.Fatalf("topic side not linked: %#v", topic)
	}
	var sawTopic, sawTask bool
	for _, ev := range notifier.events {
		switch ev.Type {
		case domain.TopicUpserted:
			sawTopic = true
		case domain.TaskUpdated:
			sawTask = true
		}
	}
	if !sawTopic || !sawTask {
		t.Fatalf("expected topic and task notifications, got %#v", notifier.events)
	}
}

func TestLinkTopicMoveRewiresBothTopics(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusTodo, LinkedTopicID: "top1"}}
	store.topics = []domain.Topic{
		{ID: "top1", OwnerID: "user", Title: "Old", LinkedTaskIDs: []string{"t1", "t9"}},
		{ID: "top2", OwnerID: "user", Title: "New"},
	}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1/topic", `{"topicId":"top2"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := linkTopic(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if len(store.upserted) != 2 {
		t.Fatalf("expected both topics to be upserted, got %#v", store.upserted)
	}
	byID := map[string]domain.Topic{}
	for _, topic := range store.upserted {
		byID[topic.ID] = topic
	}
	if old := byID["top1"]; len(old.LinkedTaskIDs) != 1 || old.LinkedTaskIDs[0] != "t9" {
		t.Fatalf("old topic should drop the task, got %#v", old.LinkedTaskIDs)
	}
	if next := byID["top2"]; len(next.LinkedTaskIDs) != 1 || next.LinkedTaskIDs[0] != "t1" {
		t.Fatalf("new topic should gain the task, got %#v", next.LinkedTaskIDs)
	}
}

func TestLinkTopicUnlinkRemovesFromTopic(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusTodo, LinkedTopicID: "top1"}}
	store.topics = []domain.Topic{{ID: "top1", OwnerID: "user", Title: "Goroutines", LinkedTaskIDs: []string{"t1", "t9"}}}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1/topic", `{"topicId":""}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := linkTopic(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := store.linked["t1"]; got != "" {
		t.Fatalf("expected the task link to be cleared, got %q", got)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected the topic to be upserted, got %#v", store.upserted)
	}
	if topic := store.upserted[0]; topic.ID != "top1" || len(topic.LinkedTaskIDs) != 1 || topic.LinkedTaskIDs[0] != "t9" {
		t.Fatalf("topic should drop only the unlinked task, got %#v", store.upserted[0])
	}
}

func TestLinkTopicRelinkSameTopicDoesNotDuplicate(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusTodo, LinkedTopicID: "top1"}}
	store.topics = []domain.Topic{{ID: "top1", OwnerID: "user", Title: "Goroutines", LinkedTaskIDs: []string{"t1"}}}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1/topic", `{"topicId":"top1"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := linkTopic(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if len(store.upserted) != 0 {
		t.Fatalf("relinking the same topic should not rewrite it, got %#v", store.upserted)
	}
}

func TestLinkTopicClearsLink(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user", Status: domain.StatusTodo, LinkedTopicID: "top1"}}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1/topic", `{"topicId":""}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := linkTopic(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got, ok := store.linked["t1"]; !ok || got != "" {
		t.Fatalf("expected the link to be cleared, got %q", got)
	}
}

func TestDeleteTaskRequiresConfirmation(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user"}}
	d, _ := testDeps(store)
	c, rec := newJSONContext(e, http.MethodDelete, "/api/tasks/t1", "")
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := deleteTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("unconfirmed delete must not remove, got %#v", store.deleted)
	}
}

func TestDeleteTaskConfirmed(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.tasks = []domain.Task{{ID: "t1", OwnerID: "user"}}
	d, notifier := testDeps(store)
	c, rec := newJSONContext(e, http.MethodDelete, "/api/tasks/t1?confirm=1", "")
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := deleteTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "t1" {
		t.Fatalf("unexpected deletions: %#v", store.deleted)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != domain.TaskDeleted {
		t.Fatalf("expected a TaskDeleted notification, got %#v", notifier.events)
	}
}

func TestBulkDeleteTasks(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	d, notifier := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/delete", `{"ids":["a","b","c"],"confirm":true}`)

	if err := bulkDeleteTasks(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if len(store.bulkDeleted) != 1 || len(store.bulkDeleted[0]) != 3 {
		t.Fatalf("expected a single batch of 3, got %#v", store.bulkDeleted)
	}
	var resp bulkDeleteResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Deleted != 3 {
		t.Fatalf("expected 3 deletions reported, got %d", resp.Deleted)
	}
	if len(notifier.events) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(notifier.events))
	}
}

func TestBulkDeleteTasksRejections(t *testing.T) {
	testCases := map[string]string{
		"unconfirmed": `{"ids":["a"],"confirm":false}`,
		"empty_ids":   `{"ids":[],"confirm":true}`,
	}
	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			store := newMockStore()
			d, _ := testDeps(store)
			c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/delete", body)

			if err := bulkDeleteTasks(d)(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			if len(store.bulkDeleted) != 0 {
				t.Fatalf("expected no batch, got %#v", store.bulkDeleted)
			}
		})
	}
}

func TestBulkDeleteTasksAtomicFailure(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.err = errors.New("transaction aborted")
	d, notifier := testDeps(store)
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks/delete", `{"ids":["a","b"],"confirm":true}`)

	if err := bulkDeleteTasks(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("failed batch must not notify, got %#v", notifier.events)
	}
}

func TestDecodeBodyRejectsUnknownFields(t *testing.T) {
	e := echo.New()
	d, _ := testDeps(newMockStore())
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", `{"title":"x","nope":true}`)

	if err := createTask(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}
