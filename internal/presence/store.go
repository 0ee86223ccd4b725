// Package presence tracks which users hold a live connection to an auction
// room, in Redis so every node in the deployment sees the same view. Keys
// carry a TTL and each node refreshes its own connections; a crashed node's
// entries simply age out.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "auction:presence:%s:%s" // auction:presence:<auctionID>:<userID>

// Store records per-auction connection presence with a TTL.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis and returns a presence store.
func New(addr string, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Store{rdb: rdb, ttl: ttl}, nil
}

// Touch marks the user as present in the auction, refreshing the TTL.
func (s *Store) Touch(ctx context.Context, auctionID, userID uuid.UUID) error {
	key := fmt.Sprintf(keyPrefix, auctionID, userID)
	if err := s.rdb.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("set presence key: %w", err)
	}
	return nil
}

// Clear removes the user's presence entry.
func (s *Store) Clear(ctx context.Context, auctionID, userID uuid.UUID) error {
	key := fmt.Sprintf(keyPrefix, auctionID, userID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete presence key: %w", err)
	}
	return nil
}

// Online lists the users currently present in an auction across all nodes.
func (s *Store) Online(ctx context.Context, auctionID uuid.UUID) ([]uuid.UUID, error) {
	pattern := fmt.Sprintf(keyPrefix, auctionID, "*")
	var (
		users  []uuid.UUID
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan presence keys: %w", err)
		}
		for _, key := range keys {
			id, err := uuid.Parse(key[len(key)-36:])
			if err != nil {
				log.Warn().Str("key", key).Msg("malformed presence key")
				continue
			}
			users = append(users, id)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return users, nil
}

// RefreshLoop periodically re-touches a connection's presence until ctx is
// cancelled. The gateway runs one per connection.
func (s *Store) RefreshLoop(ctx context.Context, auctionID, userID uuid.UUID) {
	interval := s.ttl / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Touch(ctx, auctionID, userID); err != nil {
				log.Warn().Err(err).Msg("presence refresh failed")
			}
		}
	}
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
