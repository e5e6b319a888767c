package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveSession is the cached snapshot of an in-progress session, keyed by
// EV id for DB-free liveness lookups.
type ActiveSession struct {
	SessionID   int64     `json:"session_id"`
	EVID        string    `json:"ev_id"`
	ConnectorID int       `json:"connector_id"`
	StartTime   time.Time `json:"start_time"`
}

// Store manages the active session cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns a redis-backed store. A non-positive ttl falls back
// to 24 hours.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(evID string) string {
	return fmt.Sprintf("sessions:active:%s", evID)
}

// Save caches the active session for an EV.
func (s *Store) Save(ctx context.Context, session ActiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.EVID), data, s.ttl).Err()
}

// Get returns the cached session, or nil when the EV has none active.
func (s *Store) Get(ctx context.Context, evID string) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, s.key(evID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete clears the cached session for an EV.
func (s *Store) Delete(ctx context.Context, evID string) error {
	return s.client.Del(ctx, s.key(evID)).Err()
}
