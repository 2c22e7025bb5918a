// internal/app/store/drafts/draftstore.go
package draftstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/mindpath/internal/domain/models"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long an abandoned draft survives.
const DefaultTTL = 14 * 24 * time.Hour

const keyPrefix = "mindpath:"

// Store keeps autosaved answer buffers in Redis as JSON with a TTL. It is a
// convenience cache: losing a draft is tolerated, losing a submission is not.
type Store struct {
	rdb *goredis.Client
	ttl time.Duration
}

// New wraps an existing client. A non-positive ttl uses DefaultTTL.
func New(rdb *goredis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Connect dials addr and pings it, closing the client on failure.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Save overwrites the draft stored under key and refreshes its TTL.
func (s *Store) Save(ctx context.Context, key string, answers models.Answers) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return s.rdb.Set(ctx, keyPrefix+key, raw, s.ttl).Err()
}

// Load returns the stored draft; ok is false when none exists.
func (s *Store) Load(ctx context.Context, key string) (models.Answers, bool, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var answers models.Answers
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, false, fmt.Errorf("decode draft %s: %w", key, err)
	}
	return answers.Normalize(), true, nil
}

// Delete removes the draft under key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, keyPrefix+key).Err()
}
