package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"city311-api/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

var (
	ErrCacheMiss        = errors.New("cache miss")
	ErrCacheUnavailable = errors.New("redis not connected")
)

// CacheService fronts Redis for short-lived response caching and for the
// model run event channel. The zero value is a disconnected service: reads
// miss, writes are dropped.
type CacheService struct {
	client *redis.Client
}

// NewCacheService connects to Redis, retrying while the server comes up. On
// failure it still returns a usable, disconnected service.
func NewCacheService(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, connectBackoff)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			logger.Info("redis connected", zap.String("addr", client.Options().Addr))
			return &CacheService{client: client}, nil
		}
		logger.Warn("redis ping failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", connectAttempts),
			zap.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			client.Close()
			return &CacheService{}, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}

	client.Close()
	return &CacheService{}, fmt.Errorf("redis ping failed after %d attempts: %w", connectAttempts, lastErr)
}

// NewCacheServiceFromClient wraps an existing client.
func NewCacheServiceFromClient(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

func (s *CacheService) Available() bool {
	return s != nil && s.client != nil
}

// Get decodes the JSON value at key into dest.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	if !s.Available() {
		return ErrCacheMiss
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Set stores value as JSON under key for ttl.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Publish sends message to channel as JSON. Without a connection the event is
// dropped silently.
func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns a confirmed subscription to channel. The caller closes it.
func (s *CacheService) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	if !s.Available() {
		return nil, ErrCacheUnavailable
	}
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return ps, nil
}

func (s *CacheService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}
