package api

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Prakash8999/focusboard-pro/domain"
)

func TestNextTimestampStrictlyIncreases(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastTimestamp, 0)
	})
	atomic.StoreInt64(&lastTimestamp, time.Now().Add(time.Second).UnixNano())

	prev := nextTimestamp()
	for i := 0; i < 1000; i++ {
		next := nextTimestamp()
		if next <= prev {
			t.Fatalf("timestamp did not increase: %d -> %d", prev, next)
		}
		prev = next
	}
}

func TestNextTimestampConcurrentUniqueness(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastTimestamp, 0)
	})

	const workers = 8
	const perWorker = 200
	var wg sync.WaitGroup
	results := make([][]int64, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			out := make([]int64, perWorker)
			for i := range out {
				out[i] = nextTimestamp()
			}
			results[idx] = out
		}(w)
	}
	wg.Wait()

	seen := make(map[int64]struct{}, workers*perWorker)
	for _, batch := range results {
		for _, ts := range batch {
			if _, dup := seen[ts]; dup {
				t.Fatalf("duplicate timestamp %d", ts)
			}
			seen[ts] = struct{}{}
		}
	}
}

func TestNewEventCarriesPayload(t *testing.T) {
	task := domain.Task{ID: "t1", Title: "payload"}
	ev := newEvent("user", "task", "t1", domain.TaskCreated, task)

	if ev.ID == "" || ev.Time == 0 {
		t.Fatalf("expected identity and time to be set: %#v", ev)
	}
	if ev.UserID != "user" || ev.EntityType != "task" || ev.EntityID != "t1" {
		t.Fatalf("unexpected envelope: %#v", ev)
	}
	var decoded domain.Task
	if err := sonic.Unmarshal(ev.Data, &decoded); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if decoded.Title != "payload" {
		t.Fatalf("unexpected payload: %#v", decoded)
	}
}

func TestNewEventWithoutPayload(t *testing.T) {
	ev := newEvent("user", "task", "t1", domain.TaskDeleted, nil)
	if len(ev.Data) != 0 {
		t.Fatalf("expected empty data, got %s", ev.Data)
	}
}
