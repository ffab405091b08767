package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/markdave123-py/Studya/internal/platform/logger"
)

type redisBus struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisBus connects to Redis and verifies the connection before use.
func NewRedisBus(addr string, log *logger.Logger) (Bus, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{log: log.With("component", "RedisProgressBus"), rdb: rdb}, nil
}

func (b *redisBus) PublishProgress(ctx context.Context, ev ProgressEvent) error {
	return b.publish(ctx, jobTopic(ev.JobID), ev)
}

func (b *redisBus) PublishLifecycle(ctx context.Context, ev LifecycleEvent) error {
	return b.publish(ctx, notebookTopic(ev.NotebookID), ev)
}

func (b *redisBus) publish(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, topic, raw).Err()
}

func (b *redisBus) SubscribeJob(ctx context.Context, jobID string) (<-chan ProgressEvent, func(), error) {
	out := make(chan ProgressEvent, 16)
	cancel, err := b.forward(ctx, jobTopic(jobID), func(payload []byte) {
		var ev ProgressEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			b.log.Warn("bad progress payload", "error", err)
			return
		}
		select {
		case out <- ev:
		default:
			// Slow subscriber: drop rather than block the forwarder.
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return out, cancel, nil
}

func (b *redisBus) SubscribeNotebook(ctx context.Context, notebookID string) (<-chan LifecycleEvent, func(), error) {
	out := make(chan LifecycleEvent, 16)
	cancel, err := b.forward(ctx, notebookTopic(notebookID), func(payload []byte) {
		var ev LifecycleEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			b.log.Warn("bad lifecycle payload", "error", err)
			return
		}
		select {
		case out <- ev:
		default:
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return out, cancel, nil
}

// forward subscribes to one topic and pumps raw payloads into onMsg until
// the returned cancel func runs or ctx is done.
func (b *redisBus) forward(ctx context.Context, topic string, onMsg func(payload []byte)) (func(), error) {
	sub := b.rdb.Subscribe(ctx, topic)

	// Ensure the subscription actually started.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case <-done:
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				onMsg([]byte(m.Payload))
			}
		}
	}()

	// Cancel may be called from multiple goroutines; done closes once.
	var stop sync.Once
	return func() { stop.Do(func() { close(done) }) }, nil
}

func (b *redisBus) Close() error {
	return b.rdb.Close()
}
