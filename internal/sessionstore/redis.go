package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/calendar"
	"github.com/redis/go-redis/v9"
)

// Redis stores snapshots as JSON envelopes with a TTL
type Redis struct {
	client *redis.Client
}

// NewRedis connects to url (redis://...) and checks the connection
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, userID uuid.UUID) (*calendar.Snapshot, error) {
	raw, err := r.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snap calendar.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode calendar session: %w", err)
	}
	return &snap, nil
}

func (r *Redis) Put(ctx context.Context, userID uuid.UUID, snap calendar.Snapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key(userID), raw, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.client.Del(ctx, key(userID)).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
