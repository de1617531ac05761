package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/types"
)

// StatusEvent is published on every document status transition.
type StatusEvent struct {
	DocumentID string               `json:"document_id"`
	Status     types.DocumentStatus `json:"status"`
	At         time.Time            `json:"at"`
}

type StatusBus interface {
	Publish(ctx context.Context, ev StatusEvent) error
	Subscribe(ctx context.Context, onEvent func(ev StatusEvent)) error
	Close() error
}

type statusBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewStatusBusFromEnv returns (nil, nil) when REDIS_ADDR is unset; callers
// treat a nil bus as "no status fanout configured".
func NewStatusBusFromEnv(log *logger.Logger) (StatusBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_STATUS_CHANNEL"))
	if ch == "" {
		ch = "document_status"
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

	return &statusBus{
		log:     log.With("service", "RedisStatusBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *statusBus) Publish(ctx context.Context, ev StatusEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis status bus not initialized")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *statusBus) Subscribe(ctx context.Context, onEvent func(ev StatusEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis status bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev StatusEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad redis status payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func (b *statusBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
