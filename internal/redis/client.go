package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saviobatista/groundstation/internal/types"
)

// tleTTL bounds how long a cached element set is trusted after its last refresh
const tleTTL = 7 * 24 * time.Hour

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client caches orbital elements in Redis
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

func tleKey(noradID int) string {
	return fmt.Sprintf("tle:%d", noradID)
}

// StoreTLE caches the element set of a satellite
func (c *Client) StoreTLE(ctx context.Context, noradID int, tle types.TLE) error {
	data, err := json.Marshal(tle)
	if err != nil {
		return fmt.Errorf("failed to marshal TLE: %w", err)
	}

	if err := c.client.Set(ctx, tleKey(noradID), data, tleTTL).Err(); err != nil {
		return fmt.Errorf("failed to store TLE: %w", err)
	}
	return nil
}

// GetTLE returns the cached element set of a satellite, or nil when none is cached
func (c *Client) GetTLE(ctx context.Context, noradID int) (*types.TLE, error) {
	var tle types.TLE
	found, err := c.getData(ctx, tleKey(noradID), &tle, "TLE")
	if err != nil || !found {
		return nil, err
	}
	return &tle, nil
}

// DeleteTLE removes the cached element set of a satellite
func (c *Client) DeleteTLE(ctx context.Context, noradID int) error {
	return c.client.Del(ctx, tleKey(noradID)).Err()
}

// getData retrieves data from Redis and unmarshals it into the target
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}
