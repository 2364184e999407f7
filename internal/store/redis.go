package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/scholar/config"
	"github.com/mohammad-safakhou/scholar/internal/research"
)

const (
	taskKeyPrefix = "scholar:task:"
	taskIndexKey  = "scholar:tasks"
)

// RedisStore persists tasks as JSON documents with a list index preserving
// insertion order.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) SaveTask(ctx context.Context, task *research.ResearchTask) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	key := taskKeyPrefix + task.ID
	created, err := s.client.SetNX(ctx, key, doc, 0).Result()
	if err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	if created {
		if err := s.client.RPush(ctx, taskIndexKey, task.ID).Err(); err != nil {
			return fmt.Errorf("indexing task %s: %w", task.ID, err)
		}
		return nil
	}
	if err := s.client.Set(ctx, key, doc, 0).Err(); err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

func (s *RedisStore) GetTask(ctx context.Context, id string) (*research.ResearchTask, error) {
	doc, err := s.client.Get(ctx, taskKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	var task research.ResearchTask
	if err := json.Unmarshal(doc, &task); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &task, nil
}

func (s *RedisStore) ListTasks(ctx context.Context) ([]*research.ResearchTask, error) {
	ids, err := s.client.LRange(ctx, taskIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	out := make([]*research.ResearchTask, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}
