package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docshare/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetSignals caches analysis output keyed by content hash so resubmission of
// unchanged content skips the analyzer.
func (c *Client) SetSignals(ctx context.Context, contentHash string, signals interface{}, ttl time.Duration) error {
	data, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("signals:%s", contentHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set signals cache: %w", err)
	}

	logger.Debug("Analysis signals cached", zap.String("content_hash", contentHash))
	return nil
}

func (c *Client) GetSignals(ctx context.Context, contentHash string, signals interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("signals:%s", contentHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get signals cache: %w", err)
	}

	err = json.Unmarshal(data, signals)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal signals: %w", err)
	}

	logger.Debug("Analysis signals cache hit", zap.String("content_hash", contentHash))
	return true, nil
}

func (c *Client) IncrementUnread(ctx context.Context, userID string) error {
	return c.client.Incr(ctx, fmt.Sprintf("unread:%s", userID)).Err()
}

func (c *Client) ResetUnread(ctx context.Context, userID string) error {
	return c.client.Del(ctx, fmt.Sprintf("unread:%s", userID)).Err()
}

func (c *Client) GetUnread(ctx context.Context, userID string) (int64, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("unread:%s", userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
