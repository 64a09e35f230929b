package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Prakash8999/focusboard-pro/domain"
)

// Broker fans board-change signals out to the SSE connections of one
// instance. Signals are coalesced per subscriber: a slow consumer misses
// intermediate wakeups but always re-fetches the latest board.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *Broker) subscribe(userID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan struct{}]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(userID string, ch chan struct{}) {
	b.mu.Lock()
	if subs := b.subs[userID]; subs != nil {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.subs, userID)
		}
	}
	b.mu.Unlock()
}

// Notify wakes every subscriber of userID.
func (b *Broker) Notify(userID string) {
	b.mu.Lock()
	for ch := range b.subs[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// SubscribeUpdates relays board-change messages from the Redis channel into
// the broker so mutations performed through other instances reach this
// instance's SSE clients. It reconnects on channel loss until ctx is done.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, broker *Broker) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev updateMessage
				if err := sonic.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.WithError(err).Error("unable to parse board update")
					continue
				}
				broker.Notify(ev.UserID)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func streamBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := d.Auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "streaming unsupported")
		}

		ctx := c.Request().Context()
		ch := d.Broker.subscribe(userID)
		defer d.Broker.unsubscribe(userID, ch)

		for {
			tasks, err := d.Store.ListTasks(ctx, userID)
			if err != nil {
				d.Logger.WithError(err).Error("unable to load tasks for stream")
				return nil
			}
			board := domain.Project(tasks, time.Time{}, time.Now().UTC())
			data, err := sonic.Marshal(board)
			if err != nil {
				d.Logger.WithError(err).Error("unable to encode board for stream")
				return nil
			}
			if _, err = c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err = c.Response().Write(data); err != nil {
				return nil
			}
			if _, err = c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case <-ch:
			}
		}
	}
}
