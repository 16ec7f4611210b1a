package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient fronts the durable board store with a canvas snapshot cache so
// initial page loads skip postgres for recently-active boards. The cache is
// an optimization only: every write path goes through the database first.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects and pings the cache.
func NewRedisClient(addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client, ttl: ttl}, nil
}

func canvasKey(boardID string) string {
	return "board:" + boardID + ":canvas"
}

// SetCanvas stores the serialized scene document for a board.
func (r *RedisClient) SetCanvas(ctx context.Context, boardID string, data []byte) error {
	if err := r.client.Set(ctx, canvasKey(boardID), data, r.ttl).Err(); err != nil {
		log.Printf("[Redis] Failed to cache canvas for board %s: %v", boardID, err)
		return err
	}
	return nil
}

// GetCanvas returns the cached scene document, or nil on a miss.
func (r *RedisClient) GetCanvas(ctx context.Context, boardID string) ([]byte, error) {
	data, err := r.client.Get(ctx, canvasKey(boardID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// InvalidateCanvas drops the cached document, forcing the next load to hit
// the database.
func (r *RedisClient) InvalidateCanvas(ctx context.Context, boardID string) error {
	return r.client.Del(ctx, canvasKey(boardID)).Err()
}

// Close shuts the client down.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
