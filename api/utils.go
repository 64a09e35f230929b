package api

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/Prakash8999/focusboard-pro/domain"
)

var errDuplicateRequest = errors.New("duplicate request")

var lastTimestamp int64

// nextTimestamp returns a strictly increasing unix-nano timestamp so events
// emitted within the same nanosecond still order deterministically.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

func newID() string {
	return uuid.NewString()
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func newEvent(userID, entityType, entityID, evType string, data any) domain.Event {
	ev := domain.Event{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		Type:       evType,
		Time:       nextTimestamp(),
		UserID:     userID,
	}
	if data != nil {
		if payload, err := sonic.Marshal(data); err == nil {
			ev.Data = payload
		}
	}
	return ev
}
