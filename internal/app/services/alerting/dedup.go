package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

// Deduper suppresses repeat notifications for the same key within a window.
type Deduper interface {
	// ShouldSend reports whether the key has not fired within the window and
	// marks it as fired.
	ShouldSend(ctx context.Context, key string, window time.Duration) bool
}

// RedisDeduper coordinates suppression across replicas with SET NX. Redis
// outages fail open so alerts are never silently dropped.
type RedisDeduper struct {
	client *redis.Client
	log    *logger.Logger
}

func NewRedisDeduper(client *redis.Client, log *logger.Logger) *RedisDeduper {
	if log == nil {
		log = logger.NewDefault("alert-dedup")
	}
	return &RedisDeduper{client: client, log: log}
}

func (d *RedisDeduper) ShouldSend(ctx context.Context, key string, window time.Duration) bool {
	ok, err := d.client.SetNX(ctx, "alert:dedup:"+key, 1, window).Result()
	if err != nil {
		d.log.WithError(err).Warn("dedup check failed, sending anyway")
		return true
	}
	return ok
}

// MemoryDeduper is the single-process fallback when Redis is not configured.
type MemoryDeduper struct {
	mu    sync.Mutex
	fired map[string]time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{fired: make(map[string]time.Time)}
}

func (d *MemoryDeduper) ShouldSend(_ context.Context, key string, window time.Duration) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if until, ok := d.fired[key]; ok && now.Before(until) {
		return false
	}
	d.fired[key] = now.Add(window)

	// Opportunistic sweep of expired keys.
	if len(d.fired) > 1000 {
		for k, until := range d.fired {
			if now.After(until) {
				delete(d.fired, k)
			}
		}
	}
	return true
}
