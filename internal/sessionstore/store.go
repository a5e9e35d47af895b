// Package sessionstore persists calendar session snapshots so an agent's
// staging area and unsaved changes survive reloads and restarts.
package sessionstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/calendar"
)

// Store keeps one snapshot per user. Get returns nil, nil on a miss.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*calendar.Snapshot, error)
	Put(ctx context.Context, userID uuid.UUID, snap calendar.Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

func key(userID uuid.UUID) string {
	return "calendar:session:" + userID.String()
}
