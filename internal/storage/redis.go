package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"security-gate/internal/domain"

	"github.com/go-redis/redis/v8"
)

// DefaultEventsKey é a lista onde os eventos são gravados
const DefaultEventsKey = "security:events"

// redisListClient é o subconjunto de redis.Cmdable usado pelo sink
type redisListClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisEventSink implementa domain.EventSink numa lista Redis limitada
type RedisEventSink struct {
	client   redisListClient
	key      string
	capacity int64
	logger   domain.Logger
}

// NewRedisEventSink conecta ao Redis e cria o sink
func NewRedisEventSink(config *RedisConfig, capacity int, logger domain.Logger) (*RedisEventSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.Database,

		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger != nil {
		logger.Info("Redis connection established", map[string]interface{}{
			"host": config.Host,
			"port": config.Port,
			"db":   config.Database,
		})
	}

	return newRedisEventSink(rdb, config.EventsKey, capacity, logger), nil
}

func newRedisEventSink(client redisListClient, key string, capacity int, logger domain.Logger) *RedisEventSink {
	if key == "" {
		key = DefaultEventsKey
	}
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &RedisEventSink{
		client:   client,
		key:      key,
		capacity: int64(capacity),
		logger:   logger,
	}
}

// Record grava o evento no início da lista e corta o excedente
func (r *RedisEventSink) Record(ctx context.Context, event domain.SecurityEvent) error {
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		r.logStorageOperation("LPUSH", false, start, err)
		return fmt.Errorf("failed to push event %s: %w", event.ID, err)
	}

	if err := r.client.LTrim(ctx, r.key, 0, r.capacity-1).Err(); err != nil {
		r.logStorageOperation("LTRIM", false, start, err)
		return fmt.Errorf("failed to trim events list: %w", err)
	}

	r.logStorageOperation("RECORD", true, start, nil)
	return nil
}

// Recent retorna os eventos mais recentes primeiro
func (r *RedisEventSink) Recent(ctx context.Context, limit int) ([]domain.SecurityEvent, error) {
	start := time.Now()

	if limit <= 0 || int64(limit) > r.capacity {
		limit = int(r.capacity)
	}

	items, err := r.client.LRange(ctx, r.key, 0, int64(limit)-1).Result()
	if err != nil {
		r.logStorageOperation("LRANGE", false, start, err)
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	events := make([]domain.SecurityEvent, 0, len(items))
	for _, item := range items {
		var event domain.SecurityEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			// Entradas corrompidas são ignoradas
			if r.logger != nil {
				r.logger.Warn("Skipping malformed event", map[string]interface{}{"error": err.Error()})
			}
			continue
		}
		events = append(events, event)
	}

	r.logStorageOperation("RECENT", true, start, nil)
	return events, nil
}

// Health verifica se o Redis está acessível
func (r *RedisEventSink) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: Redis health check failed: %v", domain.ErrSinkUnavailable, err)
	}
	return nil
}

// Close fecha a conexão com o Redis
func (r *RedisEventSink) Close() error {
	if client, ok := r.client.(*redis.Client); ok {
		if err := client.Close(); err != nil {
			if r.logger != nil {
				r.logger.Error("Failed to close Redis connection", err, nil)
			}
			return err
		}
		if r.logger != nil {
			r.logger.Info("Redis connection closed", nil)
		}
	}
	return nil
}

// logStorageOperation registra operações de storage
func (r *RedisEventSink) logStorageOperation(operation string, success bool, start time.Time, err error) {
	if r.logger == nil {
		return
	}

	fields := map[string]interface{}{
		"operation":  operation,
		"key":        r.key,
		"latency_ms": time.Since(start).Seconds() * 1000,
	}

	if success {
		r.logger.Debug("Storage operation completed", fields)
	} else {
		r.logger.Error("Storage operation failed", err, fields)
	}
}
