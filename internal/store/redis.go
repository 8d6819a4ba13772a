package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each name under one string key.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBackendWithClient(client), nil
}

func NewRedisBackendWithClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: "sitecms:collection:",
	}
}

func (b *RedisBackend) key(name string) string {
	return b.prefix + name
}

func (b *RedisBackend) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	return data, nil
}

func (b *RedisBackend) Write(ctx context.Context, name string, data []byte) error {
	if err := b.client.Set(ctx, b.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
